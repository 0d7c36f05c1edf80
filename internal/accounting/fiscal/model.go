package fiscal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// YearStatus enumerates fiscal year lifecycle stages. Transitions are
// one-way: SETUP -> ACTIVE -> CLOSED.
type YearStatus string

const (
	YearStatusSetup  YearStatus = "SETUP"
	YearStatusActive YearStatus = "ACTIVE"
	YearStatusClosed YearStatus = "CLOSED"
)

// PeriodStatus enumerates period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// PeriodsPerYear is fixed: one period per calendar month.
const PeriodsPerYear = 12

var (
	ErrInvalidYear       = acctshared.Violation(acctshared.AggregateFiscalYear, "year out of supported range")
	ErrYearNotSetup      = acctshared.Violation(acctshared.AggregateFiscalYear, "year can only be activated from setup")
	ErrYearNotActive     = acctshared.Violation(acctshared.AggregateFiscalYear, "year is not active")
	ErrYearClosed        = acctshared.Violation(acctshared.AggregateFiscalYear, "year is closed")
	ErrPeriodsIncomplete = acctshared.Violation(acctshared.AggregateFiscalYear, "year must contain exactly 12 periods")
	ErrPeriodsNotLocked  = acctshared.Violation(acctshared.AggregateFiscalYear, "all periods must be locked")
	ErrActiveYearExists  = acctshared.Violation(acctshared.AggregateFiscalYear, "another fiscal year is already active")
	ErrDuplicateYear     = acctshared.Violation(acctshared.AggregateFiscalYear, "fiscal year already exists")
	ErrNoActiveYear      = acctshared.Violation(acctshared.AggregateFiscalYear, "no active fiscal year")

	ErrPeriodNotOpen    = acctshared.Violation(acctshared.AggregateFiscalPeriod, "period is not open")
	ErrPeriodNotLocked  = acctshared.Violation(acctshared.AggregateFiscalPeriod, "period is not locked")
	ErrPeriodLocked     = acctshared.Violation(acctshared.AggregateFiscalPeriod, "period is locked")
	ErrActorRequired    = acctshared.Violation(acctshared.AggregateFiscalPeriod, "actor identity is required")
	ErrUnlockReason     = acctshared.Violation(acctshared.AggregateFiscalPeriod, "unlock requires a justification")
	ErrLockOutOfOrder   = acctshared.Violation(acctshared.AggregateFiscalPeriod, "earlier periods must be locked first")
	ErrUnlockNotLatest  = acctshared.Violation(acctshared.AggregateFiscalPeriod, "only the most recently locked period may unlock")
	ErrPeriodNotFound   = acctshared.Violation(acctshared.AggregateFiscalPeriod, "period not found")
	ErrNoPeriodForDate  = acctshared.Violation(acctshared.AggregateFiscalPeriod, "no period contains the given date")
)

// FiscalYear owns exactly twelve FiscalPeriod children, created atomically
// with the year. It always spans January 1 to December 31.
type FiscalYear struct {
	ID        uuid.UUID         `json:"id"`
	Year      int               `json:"year"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	Status    YearStatus        `json:"status"`
	ClosedAt  *time.Time        `json:"closed_at,omitempty"`
	Periods   []FiscalPeriod    `json:"periods,omitempty"`
	Meta      shared.RecordMeta `json:"meta"`
}

// FiscalPeriod is one calendar month of its owning year.
type FiscalPeriod struct {
	ID           uuid.UUID         `json:"id"`
	YearID       uuid.UUID         `json:"year_id"`
	Number       int               `json:"number"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      time.Time         `json:"end_date"`
	Status       PeriodStatus      `json:"status"`
	LockedBy     *string           `json:"locked_by,omitempty"`
	LockedAt     *time.Time        `json:"locked_at,omitempty"`
	UnlockReason string            `json:"unlock_reason,omitempty"`
	Meta         shared.RecordMeta `json:"meta"`
}

// NewFiscalYear builds a year in SETUP state with its twelve monthly periods.
func NewFiscalYear(year int, actor string, at time.Time) (*FiscalYear, error) {
	if year < 1900 || year > 2999 {
		return nil, ErrInvalidYear
	}
	y := &FiscalYear{
		ID:        uuid.New(),
		Year:      year,
		StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		Status:    YearStatusSetup,
		Meta:      shared.NewRecordMeta(actor, at),
	}
	for m := 1; m <= PeriodsPerYear; m++ {
		start := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		y.Periods = append(y.Periods, FiscalPeriod{
			ID:        uuid.New(),
			YearID:    y.ID,
			Number:    m,
			StartDate: start,
			EndDate:   start.AddDate(0, 1, -1),
			Status:    PeriodStatusOpen,
			Meta:      shared.NewRecordMeta(actor, at),
		})
	}
	return y, nil
}

// Activate moves the year from SETUP to ACTIVE. Requires the full period set.
func (y *FiscalYear) Activate(actor string, at time.Time) error {
	if y.Status != YearStatusSetup {
		return ErrYearNotSetup
	}
	if len(y.Periods) != PeriodsPerYear {
		return ErrPeriodsIncomplete
	}
	y.Status = YearStatusActive
	y.Meta.Touch(actor, at)
	return nil
}

// Close is the point of no return for the year. Every period must be locked.
func (y *FiscalYear) Close(actor string, at time.Time) error {
	if y.Status != YearStatusActive {
		return ErrYearNotActive
	}
	if len(y.Periods) != PeriodsPerYear {
		return ErrPeriodsIncomplete
	}
	for i := range y.Periods {
		if y.Periods[i].Status != PeriodStatusLocked {
			return ErrPeriodsNotLocked
		}
	}
	y.Status = YearStatusClosed
	y.ClosedAt = &at
	y.Meta.Touch(actor, at)
	return nil
}

// ContainsDate is a pure range check, inclusive on both ends.
func (y *FiscalYear) ContainsDate(d time.Time) bool {
	day := d.Truncate(24 * time.Hour)
	return !day.Before(y.StartDate) && !day.After(y.EndDate.Add(24*time.Hour-time.Nanosecond))
}

// PeriodContaining maps a date to its owning period.
func (y *FiscalYear) PeriodContaining(d time.Time) (*FiscalPeriod, bool) {
	for i := range y.Periods {
		if y.Periods[i].ContainsDate(d) {
			return &y.Periods[i], true
		}
	}
	return nil, false
}

// ContainsDate is a pure range check, inclusive on both ends.
func (p *FiscalPeriod) ContainsDate(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}

// Lock closes the period for posting. Requires actor identity for the audit
// trail. Ordering relative to sibling periods is the service's concern.
func (p *FiscalPeriod) Lock(actor string, at time.Time) error {
	if strings.TrimSpace(actor) == "" {
		return ErrActorRequired
	}
	if p.Status != PeriodStatusOpen {
		return ErrPeriodNotOpen
	}
	p.Status = PeriodStatusLocked
	p.LockedBy = &actor
	p.LockedAt = &at
	p.Meta.Touch(actor, at)
	return nil
}

// Unlock is the admin escape hatch. The justification is mandatory and is
// persisted for audit.
func (p *FiscalPeriod) Unlock(actor, reason string, at time.Time) error {
	if strings.TrimSpace(actor) == "" {
		return ErrActorRequired
	}
	if strings.TrimSpace(reason) == "" {
		return ErrUnlockReason
	}
	if p.Status != PeriodStatusLocked {
		return ErrPeriodNotLocked
	}
	p.Status = PeriodStatusOpen
	p.LockedBy = nil
	p.LockedAt = nil
	p.UnlockReason = strings.TrimSpace(reason)
	p.Meta.Touch(actor, at)
	return nil
}
