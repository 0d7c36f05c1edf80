package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// AuditPort records product lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides product/unit management and stock queries. All stock
// mutations happen inside the posting orchestrator's transaction; exposing
// them here would open a path around the ledger.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateProductInput describes a new product with its base unit.
type CreateProductInput struct {
	Code         string
	NameAr       string
	NameEn       string
	BaseUnitName string
	Actor        string
}

// CreateProduct registers a product and its base unit.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error) {
	product, err := NewProduct(in.Code, in.NameAr, in.NameEn, in.BaseUnitName, in.Actor, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertProduct(ctx, product); err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "product.create",
			Entity:   "product",
			EntityID: product.ID.String(),
			After:    map[string]any{"code": product.Code, "name_ar": product.NameAr},
			At:       s.now(),
		})
	}
	return product, nil
}

// AddUnit registers an alternative unit of measure for a product.
func (s *Service) AddUnit(ctx context.Context, productID uuid.UUID, name string, factor decimal.Decimal) (*ProductUnit, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	unit, err := product.AddUnit(name, factor, false)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertUnit(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// GetProduct returns a product with its units.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetBalance returns the base-unit balance for a (warehouse, product) pair.
func (s *Service) GetBalance(ctx context.Context, warehouseID, productID uuid.UUID) (*WarehouseProduct, error) {
	return s.repo.GetBalance(ctx, warehouseID, productID)
}

// StockCard lists the movement trail for a (warehouse, product) pair.
func (s *Service) StockCard(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// CheckAvailability verifies that qty expressed in the given unit can leave
// the warehouse. Insufficient stock is a hard failure.
func (s *Service) CheckAvailability(ctx context.Context, warehouseID, productID, unitID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrQuantityNotPositive
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	baseQty, err := product.ToBaseQuantity(unitID, qty)
	if err != nil {
		return err
	}
	balance, err := s.repo.GetBalance(ctx, warehouseID, productID)
	if err != nil {
		return err
	}
	if !balance.CanFulfill(baseQty) {
		return ErrInsufficientStock
	}
	return nil
}
