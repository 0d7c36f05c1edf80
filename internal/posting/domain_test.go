package posting

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/inventory"
)

func TestValidateDraftPerType(t *testing.T) {
	warehouseID := uuid.New()
	productID := uuid.New()
	unitID := uuid.New()
	accountID := uuid.New()

	_, err := NewDocument(NewDocumentInput{Type: "BOGUS", PartyName: "x", Actor: "tester", At: testTime,
		Lines: []DocumentLine{{AccountID: &accountID, Amount: dec("1")}}})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeCashReceipt, PartyName: "x", Actor: "tester", At: testTime})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeSalesInvoice, PartyName: "x", Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrWarehouseRequired)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeSalesInvoice, PartyName: "x", WarehouseID: &warehouseID, Actor: "tester", At: testTime,
		Lines: []DocumentLine{{UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrProductRequired)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeSalesInvoice, PartyName: "x", WarehouseID: &warehouseID, Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("0"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrQuantityInvalid)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeSalesInvoice, PartyName: "x", WarehouseID: &warehouseID, VATRate: dec("1.5"), Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrVATRateInvalid)

	_, err = NewDocument(NewDocumentInput{Type: DocTypePurchaseReturn, PartyName: "x", WarehouseID: &warehouseID, Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrRelatedRequired)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeCashReceipt, PartyName: "x", Actor: "tester", At: testTime,
		Lines: []DocumentLine{{Amount: dec("10")}}})
	require.ErrorIs(t, err, ErrAccountRequired)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeCashPayment, PartyName: "x", Actor: "tester", At: testTime,
		Lines: []DocumentLine{{AccountID: &accountID, Amount: dec("0")}}})
	require.ErrorIs(t, err, ErrAmountInvalid)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeStockAdjustment, PartyName: "x", WarehouseID: &warehouseID, Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1")}}})
	require.ErrorIs(t, err, ErrDirectionInvalid)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeStockAdjustment, PartyName: "x", WarehouseID: &warehouseID, Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), Direction: inventory.MovementIn}}})
	require.ErrorIs(t, err, ErrAdjustCostInvalid)

	_, err = NewDocument(NewDocumentInput{Type: DocTypeStockAdjustment, PartyName: "x", WarehouseID: &warehouseID, VATRate: dec("0.14"), Actor: "tester", At: testTime,
		Lines: []DocumentLine{{ProductID: &productID, UnitID: &unitID, Quantity: dec("1"), UnitPrice: dec("1"), Direction: inventory.MovementIn}}})
	require.ErrorIs(t, err, ErrVATNotAllowed)
}

func TestDocumentTotals(t *testing.T) {
	warehouseID := uuid.New()
	productID := uuid.New()
	unitID := uuid.New()

	doc, err := NewDocument(NewDocumentInput{
		Type:        DocTypeSalesInvoice,
		Date:        testTime,
		PartyName:   "Nile Trading",
		WarehouseID: &warehouseID,
		VATRate:     dec("0.14"),
		Actor:       "tester",
		At:          testTime,
		Lines: []DocumentLine{
			{ProductID: &productID, UnitID: &unitID, Quantity: dec("5"), UnitPrice: dec("20")},
			{ProductID: &productID, UnitID: &unitID, Quantity: dec("3"), UnitPrice: dec("7.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, doc.Lines[0].LineNo)
	require.Equal(t, 2, doc.Lines[1].LineNo)

	require.True(t, doc.NetTotal().Equal(dec("122.5")))
	require.True(t, doc.VATAmount().Equal(dec("17.15")))
	require.True(t, doc.GrossTotal().Equal(dec("139.65")))
}

func TestMarkPostedIsIrreversible(t *testing.T) {
	accountID := uuid.New()
	doc, err := NewDocument(NewDocumentInput{Type: DocTypeCashReceipt, Date: testTime, PartyName: "x", Actor: "tester", At: testTime,
		Lines: []DocumentLine{{AccountID: &accountID, Amount: dec("10")}}})
	require.NoError(t, err)

	entryID := uuid.New()
	require.NoError(t, doc.MarkPosted("CR-00001", &entryID, nil, "tester", testTime))
	require.Equal(t, DocStatusPosted, doc.Status)
	require.Equal(t, "CR-00001", doc.Number)
	require.ErrorIs(t, doc.MarkPosted("CR-00002", &entryID, nil, "tester", testTime), ErrDocumentNotDraft)
}
