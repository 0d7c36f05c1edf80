package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// AuditPort records fiscal lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CloseLock guards the year-close critical section against duplicate runs.
type CloseLock interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Service coordinates the fiscal calendar. Sequencing policies that need
// visibility across sibling periods (lock in order, latest-only unlock,
// single active year) live here rather than on the entities.
type Service struct {
	repo      Repository
	audit     AuditPort
	closeLock CloseLock
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, closeLock CloseLock) *Service {
	return &Service{repo: repo, audit: audit, closeLock: closeLock, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateYear bootstraps a year with its twelve periods atomically.
func (s *Service) CreateYear(ctx context.Context, year int, actor string) (*FiscalYear, error) {
	y, err := NewFiscalYear(year, actor, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetYearByNumber(ctx, year); err == nil {
		return nil, ErrDuplicateYear
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if err := s.repo.InsertYear(ctx, y); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "fiscal_year.create", "fiscal_year", y.ID, nil, yearSnapshot(y))
	return y, nil
}

// ActivateYear moves a year to ACTIVE, enforcing the single-active-year rule.
func (s *Service) ActivateYear(ctx context.Context, id uuid.UUID, actor string) (*FiscalYear, error) {
	active, err := s.repo.FindActiveYear(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveYear) {
		return nil, err
	}
	if active != nil && active.ID != id {
		return nil, ErrActiveYearExists
	}
	y, err := s.repo.GetYear(ctx, id)
	if err != nil {
		return nil, err
	}
	before := yearSnapshot(y)
	if err := y.Activate(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateYear(ctx, y); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "fiscal_year.activate", "fiscal_year", y.ID, before, yearSnapshot(y))
	return y, nil
}

// CloseYear permanently closes a year. All twelve periods must already be
// locked; the redis lease prevents two administrators racing the close.
func (s *Service) CloseYear(ctx context.Context, id uuid.UUID, actor string) (*FiscalYear, error) {
	y, err := s.repo.GetYear(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.closeLock != nil {
		key := shared.YearCloseLockKey(y.Year)
		if err := s.closeLock.Acquire(ctx, key); err != nil {
			return nil, err
		}
		defer func() { _ = s.closeLock.Release(ctx, key) }()
	}
	before := yearSnapshot(y)
	if err := y.Close(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateYear(ctx, y); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "fiscal_year.close", "fiscal_year", y.ID, before, yearSnapshot(y))
	return y, nil
}

// LockPeriod locks period n of its year. Every earlier period must already
// be locked so the ledger closes front to back.
func (s *Service) LockPeriod(ctx context.Context, periodID uuid.UUID, actor string) (*FiscalPeriod, error) {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	y, err := s.repo.GetYear(ctx, period.YearID)
	if err != nil {
		return nil, err
	}
	if y.Status == YearStatusClosed {
		return nil, ErrYearClosed
	}
	for i := range y.Periods {
		if y.Periods[i].Number < period.Number && y.Periods[i].Status != PeriodStatusLocked {
			return nil, ErrLockOutOfOrder
		}
	}
	before := periodSnapshot(period)
	if err := period.Lock(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "fiscal_period.lock", "fiscal_period", period.ID, before, periodSnapshot(period))
	return period, nil
}

// UnlockPeriod reopens a locked period. Only the most recently locked period
// of the year may unlock, and a justification is mandatory.
func (s *Service) UnlockPeriod(ctx context.Context, periodID uuid.UUID, actor, reason string) (*FiscalPeriod, error) {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	y, err := s.repo.GetYear(ctx, period.YearID)
	if err != nil {
		return nil, err
	}
	if y.Status == YearStatusClosed {
		return nil, ErrYearClosed
	}
	for i := range y.Periods {
		if y.Periods[i].Number > period.Number && y.Periods[i].Status == PeriodStatusLocked {
			return nil, ErrUnlockNotLatest
		}
	}
	before := periodSnapshot(period)
	if err := period.Unlock(actor, reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "fiscal_period.unlock", "fiscal_period", period.ID, before, periodSnapshot(period))
	return period, nil
}

// FindActiveYear returns the single ACTIVE year with its periods.
func (s *Service) FindActiveYear(ctx context.Context) (*FiscalYear, error) {
	return s.repo.FindActiveYear(ctx)
}

// ListYears returns year headers without periods.
func (s *Service) ListYears(ctx context.Context) ([]FiscalYear, error) {
	return s.repo.ListYears(ctx)
}

// ResolvePostingPeriod maps a document date to the active year's owning
// period and rejects dates outside the year or inside a locked period.
func (s *Service) ResolvePostingPeriod(ctx context.Context, date time.Time) (*FiscalYear, *FiscalPeriod, error) {
	y, err := s.repo.FindActiveYear(ctx)
	if err != nil {
		return nil, nil, err
	}
	period, ok := y.PeriodContaining(date)
	if !ok {
		return nil, nil, ErrNoPeriodForDate
	}
	if period.Status == PeriodStatusLocked {
		return nil, nil, ErrPeriodLocked
	}
	return y, period, nil
}

func (s *Service) record(ctx context.Context, actor, action, entity string, id uuid.UUID, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: id.String(),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func yearSnapshot(y *FiscalYear) map[string]any {
	return map[string]any{"year": y.Year, "status": string(y.Status)}
}

func periodSnapshot(p *FiscalPeriod) map[string]any {
	snap := map[string]any{"number": p.Number, "status": string(p.Status)}
	if p.UnlockReason != "" {
		snap["unlock_reason"] = p.UnlockReason
	}
	return snap
}
