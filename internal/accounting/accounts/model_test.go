package accounts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T, code string, level int, parentID *uuid.UUID) *Account {
	t.Helper()
	account, err := NewAccount(NewAccountInput{
		Code:         code,
		NameAr:       "حساب",
		NameEn:       "Account",
		Type:         AccountTypeAsset,
		ParentID:     parentID,
		Level:        level,
		CurrencyCode: "EGP",
		Actor:        "tester",
		At:           testTime,
	})
	require.NoError(t, err)
	return account
}

func TestNewAccountValidation(t *testing.T) {
	parent := uuid.New()

	_, err := NewAccount(NewAccountInput{Code: "11", NameAr: "x", Type: AccountTypeAsset, Level: 1, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrCodeFormat)

	_, err = NewAccount(NewAccountInput{Code: "11a1", NameAr: "x", Type: AccountTypeAsset, Level: 1, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrCodeFormat)

	_, err = NewAccount(NewAccountInput{Code: "1111", NameAr: "  ", Type: AccountTypeAsset, Level: 1, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = NewAccount(NewAccountInput{Code: "1111", NameAr: "x", Type: "BOGUS", Level: 1, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = NewAccount(NewAccountInput{Code: "1111", NameAr: "x", Type: AccountTypeAsset, Level: 5, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrInvalidLevel)

	_, err = NewAccount(NewAccountInput{Code: "1000", NameAr: "x", Type: AccountTypeAsset, Level: 1, ParentID: &parent, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrParentForbidden)

	_, err = NewAccount(NewAccountInput{Code: "1100", NameAr: "x", Type: AccountTypeAsset, Level: 2, CurrencyCode: "EGP"})
	require.ErrorIs(t, err, ErrParentRequired)

	_, err = NewAccount(NewAccountInput{Code: "1111", NameAr: "x", Type: AccountTypeAsset, Level: 1, CurrencyCode: "E1"})
	require.ErrorIs(t, err, ErrCurrencyFormat)
}

func TestNewAccountPostingFlags(t *testing.T) {
	root := newTestAccount(t, "1000", 1, nil)
	require.True(t, root.IsLeaf)
	require.False(t, root.AllowPosting)
	require.False(t, root.CanReceivePostings())

	leaf := newTestAccount(t, "1111", MaxLevel, &root.ID)
	require.True(t, leaf.AllowPosting)
	require.True(t, leaf.CanReceivePostings())

	leaf.MarkAsParent("tester", testTime)
	require.False(t, leaf.IsLeaf)
	require.False(t, leaf.CanReceivePostings())
}

func TestNormalBalanceDerivedFromType(t *testing.T) {
	require.Equal(t, BalanceSideDebit, AccountTypeAsset.NormalBalance())
	require.Equal(t, BalanceSideDebit, AccountTypeCOGS.NormalBalance())
	require.Equal(t, BalanceSideDebit, AccountTypeExpense.NormalBalance())
	require.Equal(t, BalanceSideDebit, AccountTypeOtherExpense.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeLiability.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeEquity.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeRevenue.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeOtherIncome.NormalBalance())
}

func TestChangeTypeGuards(t *testing.T) {
	account := newTestAccount(t, "1000", 1, nil)

	require.NoError(t, account.ChangeType(AccountTypeExpense, "tester", testTime))
	require.Equal(t, AccountTypeExpense, account.Type)
	require.Equal(t, BalanceSideDebit, account.NormalBalance())

	account.MarkHasPostings("tester", testTime)
	require.ErrorIs(t, account.ChangeType(AccountTypeRevenue, "tester", testTime), ErrHasPostings)

	system := newTestAccount(t, "2000", 1, nil)
	system.IsSystem = true
	require.ErrorIs(t, system.ChangeType(AccountTypeRevenue, "tester", testTime), ErrSystemAccount)
	require.ErrorIs(t, system.Deactivate("tester", testTime), ErrSystemAccount)
}

func TestSoftDeleteGuards(t *testing.T) {
	account := newTestAccount(t, "1000", 1, nil)

	account.MarkAsParent("tester", testTime)
	require.ErrorIs(t, account.SoftDelete("tester", testTime), ErrNotLeaf)

	leaf := newTestAccount(t, "3000", 1, nil)
	leaf.MarkHasPostings("tester", testTime)
	require.ErrorIs(t, leaf.SoftDelete("tester", testTime), ErrHasPostings)

	clean := newTestAccount(t, "4000", 1, nil)
	require.NoError(t, clean.SoftDelete("tester", testTime))
	require.False(t, clean.IsActive)
	require.True(t, clean.Meta.IsDeleted())
	require.ErrorIs(t, clean.SoftDelete("tester", testTime), ErrAlreadyDeleted)
	require.ErrorIs(t, clean.Activate("tester", testTime), ErrAlreadyDeleted)
}

func TestValidateChildCode(t *testing.T) {
	require.NoError(t, ValidateChildCode("1100", "1110", 2))
	require.ErrorIs(t, ValidateChildCode("1100", "1210", 2), ErrChildCodePrefix)
	require.ErrorIs(t, ValidateChildCode("110", "1110", 2), ErrCodeFormat)
	require.ErrorIs(t, ValidateChildCode("1100", "1110", 4), ErrInvalidLevel)
}
