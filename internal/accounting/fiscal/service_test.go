package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

type memoryRepo struct {
	years map[uuid.UUID]*FiscalYear
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{years: make(map[uuid.UUID]*FiscalYear)}
}

func (r *memoryRepo) InsertYear(ctx context.Context, y *FiscalYear) error {
	cp := *y
	r.years[y.ID] = &cp
	return nil
}

func (r *memoryRepo) GetYear(ctx context.Context, id uuid.UUID) (*FiscalYear, error) {
	y, ok := r.years[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *y
	return &cp, nil
}

func (r *memoryRepo) GetYearByNumber(ctx context.Context, year int) (*FiscalYear, error) {
	for _, y := range r.years {
		if y.Year == year {
			cp := *y
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindActiveYear(ctx context.Context) (*FiscalYear, error) {
	for _, y := range r.years {
		if y.Status == YearStatusActive {
			cp := *y
			return &cp, nil
		}
	}
	return nil, ErrNoActiveYear
}

func (r *memoryRepo) GetPeriod(ctx context.Context, id uuid.UUID) (*FiscalPeriod, error) {
	for _, y := range r.years {
		for i := range y.Periods {
			if y.Periods[i].ID == id {
				cp := y.Periods[i]
				return &cp, nil
			}
		}
	}
	return nil, ErrPeriodNotFound
}

func (r *memoryRepo) UpdateYear(ctx context.Context, y *FiscalYear) error {
	stored, ok := r.years[y.ID]
	if !ok {
		return shared.ErrNotFound
	}
	periods := stored.Periods
	cp := *y
	cp.Periods = periods
	r.years[y.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdatePeriod(ctx context.Context, p *FiscalPeriod) error {
	y, ok := r.years[p.YearID]
	if !ok {
		return shared.ErrNotFound
	}
	for i := range y.Periods {
		if y.Periods[i].ID == p.ID {
			y.Periods[i] = *p
			return nil
		}
	}
	return ErrPeriodNotFound
}

func (r *memoryRepo) ListYears(ctx context.Context) ([]FiscalYear, error) {
	out := make([]FiscalYear, 0, len(r.years))
	for _, y := range r.years {
		out = append(out, *y)
	}
	return out, nil
}

type stubLock struct {
	held     bool
	acquired int
	released int
}

func (l *stubLock) Acquire(ctx context.Context, key string) error {
	if l.held {
		return shared.ErrLockHeld
	}
	l.acquired++
	return nil
}

func (l *stubLock) Release(ctx context.Context, key string) error {
	l.released++
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *stubLock) {
	t.Helper()
	repo := newMemoryRepo()
	lock := &stubLock{}
	svc := NewService(repo, nil, lock)
	svc.WithNow(func() time.Time { return testTime })
	return svc, repo, lock
}

func TestCreateYearRejectsDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	_, err = svc.CreateYear(ctx, 2025, "tester")
	require.ErrorIs(t, err, ErrDuplicateYear)
}

func TestSingleActiveYear(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	second, err := svc.CreateYear(ctx, 2026, "tester")
	require.NoError(t, err)

	_, err = svc.ActivateYear(ctx, first.ID, "tester")
	require.NoError(t, err)
	_, err = svc.ActivateYear(ctx, second.ID, "tester")
	require.ErrorIs(t, err, ErrActiveYearExists)
}

func TestLockPeriodsInOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	y, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	_, err = svc.ActivateYear(ctx, y.ID, "tester")
	require.NoError(t, err)
	stored := repo.years[y.ID]

	_, err = svc.LockPeriod(ctx, stored.Periods[2].ID, "tester")
	require.ErrorIs(t, err, ErrLockOutOfOrder)

	_, err = svc.LockPeriod(ctx, stored.Periods[0].ID, "tester")
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, stored.Periods[1].ID, "tester")
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, stored.Periods[2].ID, "tester")
	require.NoError(t, err)
}

func TestUnlockOnlyLatestLockedPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	y, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	_, err = svc.ActivateYear(ctx, y.ID, "tester")
	require.NoError(t, err)
	stored := repo.years[y.ID]

	_, err = svc.LockPeriod(ctx, stored.Periods[0].ID, "tester")
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, stored.Periods[1].ID, "tester")
	require.NoError(t, err)

	_, err = svc.UnlockPeriod(ctx, stored.Periods[0].ID, "admin", "correction")
	require.ErrorIs(t, err, ErrUnlockNotLatest)

	p, err := svc.UnlockPeriod(ctx, stored.Periods[1].ID, "admin", "correction")
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, p.Status)
}

func TestCloseYearUsesAdvisoryLock(t *testing.T) {
	svc, repo, lock := newTestService(t)
	ctx := context.Background()

	y, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	_, err = svc.ActivateYear(ctx, y.ID, "tester")
	require.NoError(t, err)
	stored := repo.years[y.ID]
	for i := range stored.Periods {
		_, err = svc.LockPeriod(ctx, stored.Periods[i].ID, "tester")
		require.NoError(t, err)
	}

	lock.held = true
	_, err = svc.CloseYear(ctx, y.ID, "tester")
	require.ErrorIs(t, err, shared.ErrLockHeld)

	lock.held = false
	closed, err := svc.CloseYear(ctx, y.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, YearStatusClosed, closed.Status)
	require.Equal(t, 1, lock.acquired)
	require.Equal(t, 1, lock.released)
}

func TestResolvePostingPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ResolvePostingPeriod(ctx, testTime)
	require.ErrorIs(t, err, ErrNoActiveYear)

	y, err := svc.CreateYear(ctx, 2025, "tester")
	require.NoError(t, err)
	_, err = svc.ActivateYear(ctx, y.ID, "tester")
	require.NoError(t, err)
	stored := repo.years[y.ID]

	_, p, err := svc.ResolvePostingPeriod(ctx, time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 6, p.Number)

	_, _, err = svc.ResolvePostingPeriod(ctx, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoPeriodForDate)

	_, err = svc.LockPeriod(ctx, stored.Periods[0].ID, "tester")
	require.NoError(t, err)
	_, _, err = svc.ResolvePostingPeriod(ctx, time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrPeriodLocked)
}
