package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset        AccountType = "ASSET"
	AccountTypeLiability    AccountType = "LIABILITY"
	AccountTypeEquity       AccountType = "EQUITY"
	AccountTypeRevenue      AccountType = "REVENUE"
	AccountTypeCOGS         AccountType = "COGS"
	AccountTypeExpense      AccountType = "EXPENSE"
	AccountTypeOtherIncome  AccountType = "OTHER_INCOME"
	AccountTypeOtherExpense AccountType = "OTHER_EXPENSE"
)

// BalanceSide indicates the side an account naturally increases on.
type BalanceSide string

const (
	BalanceSideDebit  BalanceSide = "DEBIT"
	BalanceSideCredit BalanceSide = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue,
		AccountTypeCOGS, AccountTypeExpense, AccountTypeOtherIncome, AccountTypeOtherExpense:
		return true
	}
	return false
}

// NormalBalance derives the natural balance side from the account type.
// It is never stored or set independently.
func (t AccountType) NormalBalance() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeCOGS, AccountTypeExpense, AccountTypeOtherExpense:
		return BalanceSideDebit
	default:
		return BalanceSideCredit
	}
}

// CodeLength is the fixed width of chart-of-accounts codes.
const CodeLength = 4

// MaxLevel is the depth of the chart; only MaxLevel leaves may receive postings.
const MaxLevel = 4

var (
	ErrCodeFormat        = acctshared.Violation(acctshared.AggregateAccount, "code must be exactly 4 numeric digits")
	ErrNameRequired      = acctshared.Violation(acctshared.AggregateAccount, "arabic name is required")
	ErrInvalidType       = acctshared.Violation(acctshared.AggregateAccount, "unknown account type")
	ErrInvalidLevel      = acctshared.Violation(acctshared.AggregateAccount, "level must be between 1 and 4")
	ErrParentRequired    = acctshared.Violation(acctshared.AggregateAccount, "parent is required for levels below the root")
	ErrParentForbidden   = acctshared.Violation(acctshared.AggregateAccount, "root accounts cannot have a parent")
	ErrCurrencyFormat    = acctshared.Violation(acctshared.AggregateAccount, "currency must be a 3-letter ISO code")
	ErrChildCodePrefix   = acctshared.Violation(acctshared.AggregateAccount, "child code must start with the parent code prefix")
	ErrSystemAccount     = acctshared.Violation(acctshared.AggregateAccount, "system accounts cannot be modified")
	ErrHasPostings       = acctshared.Violation(acctshared.AggregateAccount, "account already has postings")
	ErrNotLeaf           = acctshared.Violation(acctshared.AggregateAccount, "account has children")
	ErrAlreadyDeleted    = acctshared.Violation(acctshared.AggregateAccount, "account is deleted")
	ErrCannotReceive     = acctshared.Violation(acctshared.AggregateAccount, "account cannot receive postings")
	ErrAccountNotFound   = acctshared.Violation(acctshared.AggregateAccount, "account not found")
	ErrDuplicateCode     = acctshared.Violation(acctshared.AggregateAccount, "account code already exists")
	ErrParentLevelChain  = acctshared.Violation(acctshared.AggregateAccount, "child level must be exactly one below its parent")
	ErrParentNotEligible = acctshared.Violation(acctshared.AggregateAccount, "parent account is deleted or inactive")
)

// Account models a chart of accounts node.
type Account struct {
	ID           uuid.UUID         `json:"id"`
	Code         string            `json:"code"`
	NameAr       string            `json:"name_ar"`
	NameEn       string            `json:"name_en"`
	Type         AccountType       `json:"type"`
	ParentID     *uuid.UUID        `json:"parent_id,omitempty"`
	Level        int               `json:"level"`
	IsLeaf       bool              `json:"is_leaf"`
	AllowPosting bool              `json:"allow_posting"`
	IsActive     bool              `json:"is_active"`
	IsSystem     bool              `json:"is_system"`
	CurrencyCode string            `json:"currency_code"`
	HasPostings  bool              `json:"has_postings"`
	Meta         shared.RecordMeta `json:"meta"`
}

// NewAccountInput groups construction parameters.
type NewAccountInput struct {
	Code         string
	NameAr       string
	NameEn       string
	Type         AccountType
	ParentID     *uuid.UUID
	Level        int
	CurrencyCode string
	IsSystem     bool
	Actor        string
	At           time.Time
}

// NewAccount constructs a validated Account. Construction fails fast on the
// first broken invariant.
func NewAccount(in NewAccountInput) (*Account, error) {
	if !validCode(in.Code) {
		return nil, ErrCodeFormat
	}
	if strings.TrimSpace(in.NameAr) == "" {
		return nil, ErrNameRequired
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}
	if in.Level < 1 || in.Level > MaxLevel {
		return nil, ErrInvalidLevel
	}
	if in.Level == 1 && in.ParentID != nil {
		return nil, ErrParentForbidden
	}
	if in.Level > 1 && in.ParentID == nil {
		return nil, ErrParentRequired
	}
	if !validCurrency(in.CurrencyCode) {
		return nil, ErrCurrencyFormat
	}
	return &Account{
		ID:           uuid.New(),
		Code:         in.Code,
		NameAr:       strings.TrimSpace(in.NameAr),
		NameEn:       strings.TrimSpace(in.NameEn),
		Type:         in.Type,
		ParentID:     in.ParentID,
		Level:        in.Level,
		IsLeaf:       true,
		AllowPosting: in.Level == MaxLevel,
		IsActive:     true,
		IsSystem:     in.IsSystem,
		CurrencyCode: strings.ToUpper(in.CurrencyCode),
		Meta:         shared.NewRecordMeta(in.Actor, in.At),
	}, nil
}

// NormalBalance is derived from the account type.
func (a *Account) NormalBalance() BalanceSide {
	return a.Type.NormalBalance()
}

// CanReceivePostings reports whether journal lines may target this account.
func (a *Account) CanReceivePostings() bool {
	return a.IsActive && a.IsLeaf && a.AllowPosting && !a.Meta.IsDeleted()
}

// MarkAsParent is called the moment the first child is added. A parent can
// never be a posting target again.
func (a *Account) MarkAsParent(actor string, at time.Time) {
	a.IsLeaf = false
	a.AllowPosting = false
	a.Meta.Touch(actor, at)
}

// MarkHasPostings records that at least one posted line references the account.
func (a *Account) MarkHasPostings(actor string, at time.Time) {
	if a.HasPostings {
		return
	}
	a.HasPostings = true
	a.Meta.Touch(actor, at)
}

// ChangeType switches the account category. Refused once the account has
// postings or is system-flagged, since either would rewrite reported truth.
func (a *Account) ChangeType(t AccountType, actor string, at time.Time) error {
	if a.IsSystem {
		return ErrSystemAccount
	}
	if a.HasPostings {
		return ErrHasPostings
	}
	if !t.Valid() {
		return ErrInvalidType
	}
	a.Type = t
	a.Meta.Touch(actor, at)
	return nil
}

// Deactivate hides the account from new postings.
func (a *Account) Deactivate(actor string, at time.Time) error {
	if a.IsSystem {
		return ErrSystemAccount
	}
	a.IsActive = false
	a.Meta.Touch(actor, at)
	return nil
}

// Activate re-enables the account.
func (a *Account) Activate(actor string, at time.Time) error {
	if a.Meta.IsDeleted() {
		return ErrAlreadyDeleted
	}
	a.IsActive = true
	a.Meta.Touch(actor, at)
	return nil
}

// SoftDelete marks the account deleted. Refused for system accounts, accounts
// with postings, and non-leaves.
func (a *Account) SoftDelete(actor string, at time.Time) error {
	if a.IsSystem {
		return ErrSystemAccount
	}
	if a.HasPostings {
		return ErrHasPostings
	}
	if !a.IsLeaf {
		return ErrNotLeaf
	}
	if a.Meta.IsDeleted() {
		return ErrAlreadyDeleted
	}
	a.IsActive = false
	a.Meta.MarkDeleted(actor, at)
	return nil
}

// ValidateChildCode enforces the hierarchical numbering rule: the child's
// first parentLevel digits must equal the parent's. It is the single
// authority for chart integrity at insert time.
func ValidateChildCode(parentCode, childCode string, parentLevel int) error {
	if !validCode(parentCode) || !validCode(childCode) {
		return ErrCodeFormat
	}
	if parentLevel < 1 || parentLevel >= MaxLevel {
		return ErrInvalidLevel
	}
	if childCode[:parentLevel] != parentCode[:parentLevel] {
		return ErrChildCodePrefix
	}
	return nil
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
