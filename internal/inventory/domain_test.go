package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWeightedAverage(t *testing.T) {
	// 10 units at 10.00 plus 5 units at 16.00 -> 12.00
	got := WeightedAverage(dec("10"), dec("10"), dec("5"), dec("16"))
	require.True(t, got.Equal(dec("12")), got.String())

	// first receipt into empty stock takes the receipt cost as-is
	got = WeightedAverage(decimal.Zero, decimal.Zero, dec("7"), dec("3.5"))
	require.True(t, got.Equal(dec("3.5")), got.String())

	// repeating decimals round to 4 places
	got = WeightedAverage(dec("3"), dec("10"), dec("3"), dec("11"))
	require.True(t, got.Equal(dec("10.5")), got.String())
	got = WeightedAverage(dec("1"), dec("10"), dec("2"), dec("20"))
	require.True(t, got.Equal(dec("16.6667")), got.String())
}

func TestApplyReceipt(t *testing.T) {
	p, err := NewProduct("P-001", "منتج", "Widget", "piece", "tester", testTime)
	require.NoError(t, err)
	require.True(t, p.WeightedAverageCost.IsZero())

	require.NoError(t, p.ApplyReceipt(decimal.Zero, dec("10"), dec("10"), "tester", testTime))
	require.True(t, p.WeightedAverageCost.Equal(dec("10")))

	require.NoError(t, p.ApplyReceipt(dec("10"), dec("5"), dec("16"), "tester", testTime))
	require.True(t, p.WeightedAverageCost.Equal(dec("12")))

	require.ErrorIs(t, p.ApplyReceipt(dec("15"), decimal.Zero, dec("16"), "tester", testTime), ErrQuantityNotPositive)
	require.ErrorIs(t, p.ApplyReceipt(dec("15"), dec("5"), dec("-1"), "tester", testTime), ErrUnitCostNegative)
}

func TestRestoreWeightedAverageCost(t *testing.T) {
	p, err := NewProduct("P-001", "منتج", "Widget", "piece", "tester", testTime)
	require.NoError(t, err)
	require.NoError(t, p.ApplyReceipt(decimal.Zero, dec("10"), dec("12"), "tester", testTime))

	require.NoError(t, p.RestoreWeightedAverageCost(dec("10"), "tester", testTime))
	require.True(t, p.WeightedAverageCost.Equal(dec("10")))
	require.ErrorIs(t, p.RestoreWeightedAverageCost(dec("-1"), "tester", testTime), ErrCostNegative)
}

func TestUnitsAndConversion(t *testing.T) {
	p, err := NewProduct("P-001", "منتج", "Widget", "piece", "tester", testTime)
	require.NoError(t, err)

	base, ok := p.BaseUnit()
	require.True(t, ok)
	require.True(t, base.ConversionFactor.Equal(dec("1")))

	box, err := p.AddUnit("box", dec("12"), false)
	require.NoError(t, err)

	_, err = p.AddUnit("Box", dec("24"), false)
	require.ErrorIs(t, err, ErrDuplicateUnit)
	_, err = p.AddUnit("pallet", dec("0"), false)
	require.ErrorIs(t, err, ErrFactorNotPositive)
	_, err = p.AddUnit("each", dec("2"), true)
	require.ErrorIs(t, err, ErrBaseUnitFactor)
	_, err = p.AddUnit("each", dec("1"), true)
	require.ErrorIs(t, err, ErrDuplicateUnit)

	qty, err := p.ToBaseQuantity(box.ID, dec("3"))
	require.NoError(t, err)
	require.True(t, qty.Equal(dec("36")))

	_, err = p.ToBaseQuantity(uuid.New(), dec("3"))
	require.ErrorIs(t, err, ErrUnitNotFound)
}

func TestBalanceIncreaseDecrease(t *testing.T) {
	w := NewWarehouseProduct(uuid.New(), uuid.New(), "tester", testTime)

	require.ErrorIs(t, w.Increase(decimal.Zero, "tester", testTime), ErrQuantityNotPositive)
	require.NoError(t, w.Increase(dec("100"), "tester", testTime))
	require.True(t, w.CanFulfill(dec("100")))
	require.False(t, w.CanFulfill(dec("100.0001")))

	require.ErrorIs(t, w.Decrease(dec("101"), "tester", testTime), ErrInsufficientStock)
	require.True(t, w.Quantity.Equal(dec("100")))

	require.NoError(t, w.Decrease(dec("40"), "tester", testTime))
	require.True(t, w.Quantity.Equal(dec("60")))
}

func TestNewMovementValidation(t *testing.T) {
	base := MovementInput{
		WarehouseID:  uuid.New(),
		ProductID:    uuid.New(),
		Direction:    MovementIn,
		UnitID:       uuid.New(),
		Quantity:     dec("5"),
		BaseQuantity: dec("5"),
		UnitCost:     dec("10"),
		BalanceAfter: dec("15"),
		PriorAvgCost: dec("9"),
		SourceModule: "PURCHASE_INVOICE",
		SourceID:     uuid.New(),
		OccurredAt:   testTime,
		Actor:        "tester",
	}

	m, err := NewMovement(base)
	require.NoError(t, err)
	require.True(t, m.TotalCost.Equal(dec("50")))
	require.True(t, m.PriorAvgCost.Equal(dec("9")))

	in := base
	in.Quantity = decimal.Zero
	_, err = NewMovement(in)
	require.ErrorIs(t, err, ErrQuantityNotPositive)

	in = base
	in.UnitCost = dec("-1")
	_, err = NewMovement(in)
	require.ErrorIs(t, err, ErrUnitCostNegative)

	in = base
	in.BalanceAfter = dec("-1")
	_, err = NewMovement(in)
	require.ErrorIs(t, err, ErrInsufficientStock)

	in = base
	in.SourceModule = ""
	_, err = NewMovement(in)
	require.ErrorIs(t, err, ErrSourceRequired)

	in = base
	in.UnitCost = dec("10.00001")
	_, err = NewMovement(in)
	require.ErrorIs(t, err, ErrScaleExceeded)
}
