package accounts

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

type memoryRepo struct {
	byCode map[string]*Account
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byCode: make(map[string]*Account)}
}

func (r *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	for _, a := range r.byCode {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (*Account, error) {
	a, ok := r.byCode[code]
	if !ok || a.Meta.IsDeleted() {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context, includeDeleted bool) ([]Account, error) {
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	var out []Account
	for _, code := range codes {
		a := r.byCode[code]
		if !includeDeleted && a.Meta.IsDeleted() {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memoryRepo) ListPostable(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.byCode {
		if a.CanReceivePostings() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) Insert(ctx context.Context, a *Account) error {
	if _, ok := r.byCode[a.Code]; ok {
		return ErrDuplicateCode
	}
	cp := *a
	r.byCode[a.Code] = &cp
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, a *Account) error {
	if _, ok := r.byCode[a.Code]; !ok {
		return shared.ErrNotFound
	}
	cp := *a
	r.byCode[a.Code] = &cp
	return nil
}

func newAccountService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return testTime })
	return svc, repo
}

func TestCreateChildAssignsLevelAndFlipsParent(t *testing.T) {
	svc, _ := newAccountService()
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Code: "1000", NameAr: "الأصول", NameEn: "Assets", Type: AccountTypeAsset, CurrencyCode: "EGP", Actor: "tester"})
	require.NoError(t, err)
	require.Equal(t, 1, root.Level)
	require.True(t, root.IsLeaf)

	child, err := svc.Create(ctx, CreateInput{Code: "1100", NameAr: "متداولة", Type: AccountTypeAsset, ParentCode: "1000", CurrencyCode: "EGP", Actor: "tester"})
	require.NoError(t, err)
	require.Equal(t, 2, child.Level)
	require.Equal(t, root.ID, *child.ParentID)

	stored, err := svc.GetByCode(ctx, "1000")
	require.NoError(t, err)
	require.False(t, stored.IsLeaf)
	require.False(t, stored.AllowPosting)

	_, err = svc.Create(ctx, CreateInput{Code: "2100", NameAr: "خطأ", Type: AccountTypeAsset, ParentCode: "1000", CurrencyCode: "EGP", Actor: "tester"})
	require.ErrorIs(t, err, ErrChildCodePrefix)

	_, err = svc.Create(ctx, CreateInput{Code: "9100", NameAr: "يتيم", Type: AccountTypeAsset, ParentCode: "9000", CurrencyCode: "EGP", Actor: "tester"})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateRejectsDeactivatedParent(t *testing.T) {
	svc, _ := newAccountService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "1000", NameAr: "الأصول", Type: AccountTypeAsset, CurrencyCode: "EGP", Actor: "tester"})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, "1000", "tester")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "1100", NameAr: "فرع", Type: AccountTypeAsset, ParentCode: "1000", CurrencyCode: "EGP", Actor: "tester"})
	require.ErrorIs(t, err, ErrParentNotEligible)
}

func TestTreeBuildsForestByCode(t *testing.T) {
	svc, _ := newAccountService()
	ctx := context.Background()

	for _, in := range []CreateInput{
		{Code: "1000", NameAr: "الأصول", Type: AccountTypeAsset, CurrencyCode: "EGP", Actor: "tester"},
		{Code: "2000", NameAr: "الالتزامات", Type: AccountTypeLiability, CurrencyCode: "EGP", Actor: "tester"},
		{Code: "1100", NameAr: "متداولة", Type: AccountTypeAsset, ParentCode: "1000", CurrencyCode: "EGP", Actor: "tester"},
		{Code: "1200", NameAr: "ثابتة", Type: AccountTypeAsset, ParentCode: "1000", CurrencyCode: "EGP", Actor: "tester"},
		{Code: "1110", NameAr: "نقدية", Type: AccountTypeAsset, ParentCode: "1100", CurrencyCode: "EGP", Actor: "tester"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	nodes, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "1000", nodes[0].Account.Code)
	require.Equal(t, "2000", nodes[1].Account.Code)

	require.Len(t, nodes[0].Children, 2)
	require.Equal(t, "1100", nodes[0].Children[0].Account.Code)
	require.Equal(t, "1200", nodes[0].Children[1].Account.Code)
	require.Len(t, nodes[0].Children[0].Children, 1)
	require.Equal(t, "1110", nodes[0].Children[0].Children[0].Account.Code)
	require.Empty(t, nodes[1].Children)
}

func TestSoftDeleteHidesAccount(t *testing.T) {
	svc, repo := newAccountService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "1000", NameAr: "الأصول", Type: AccountTypeAsset, CurrencyCode: "EGP", Actor: "tester"})
	require.NoError(t, err)

	_, err = svc.SoftDelete(ctx, "1000", "tester")
	require.NoError(t, err)

	_, err = svc.GetByCode(ctx, "1000")
	require.ErrorIs(t, err, shared.ErrNotFound)

	accounts, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, accounts)
}
