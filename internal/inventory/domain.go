package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

var (
	ErrQuantityNotPositive = acctshared.Violation(acctshared.AggregateInventory, "quantity must be positive")
	ErrUnitCostNegative    = acctshared.Violation(acctshared.AggregateInventory, "unit cost cannot be negative")
	ErrInsufficientStock   = acctshared.Violation(acctshared.AggregateInventory, "insufficient stock")
	ErrDuplicateUnit       = acctshared.Violation(acctshared.AggregateInventory, "unit already exists for product")
	ErrBaseUnitFactor      = acctshared.Violation(acctshared.AggregateInventory, "base unit conversion factor must be 1")
	ErrFactorNotPositive   = acctshared.Violation(acctshared.AggregateInventory, "conversion factor must be positive")
	ErrUnitNotFound        = acctshared.Violation(acctshared.AggregateInventory, "product unit not found")
	ErrCostNegative        = acctshared.Violation(acctshared.AggregateInventory, "weighted average cost cannot be negative")
	ErrProductName         = acctshared.Violation(acctshared.AggregateInventory, "arabic product name is required")
	ErrProductNotFound     = acctshared.Violation(acctshared.AggregateInventory, "product not found")
	ErrSourceRequired      = acctshared.Violation(acctshared.AggregateInventory, "movement requires a source document reference")
	ErrScaleExceeded       = acctshared.Violation(acctshared.AggregateInventory, "amounts allow at most 4 decimal places")
)

// ProductUnit converts a transaction unit into the base unit. The base unit
// always has factor 1; all stock balances are recorded in base units.
type ProductUnit struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	Name             string          `json:"name"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	IsBase           bool            `json:"is_base"`
}

// Product tracks the rolling weighted-average cost across all warehouses.
type Product struct {
	ID                  uuid.UUID         `json:"id"`
	Code                string            `json:"code"`
	NameAr              string            `json:"name_ar"`
	NameEn              string            `json:"name_en"`
	WeightedAverageCost decimal.Decimal   `json:"weighted_average_cost"`
	Units               []ProductUnit     `json:"units,omitempty"`
	IsActive            bool              `json:"is_active"`
	Meta                shared.RecordMeta `json:"meta"`
}

// NewProduct constructs a product with its base unit.
func NewProduct(code, nameAr, nameEn, baseUnitName, actor string, at time.Time) (*Product, error) {
	if strings.TrimSpace(nameAr) == "" {
		return nil, ErrProductName
	}
	if strings.TrimSpace(baseUnitName) == "" {
		return nil, ErrUnitNotFound
	}
	id := uuid.New()
	return &Product{
		ID:                  id,
		Code:                strings.TrimSpace(code),
		NameAr:              strings.TrimSpace(nameAr),
		NameEn:              strings.TrimSpace(nameEn),
		WeightedAverageCost: decimal.Zero,
		Units: []ProductUnit{{
			ID:               uuid.New(),
			ProductID:        id,
			Name:             strings.TrimSpace(baseUnitName),
			ConversionFactor: decimal.NewFromInt(1),
			IsBase:           true,
		}},
		IsActive: true,
		Meta:     shared.NewRecordMeta(actor, at),
	}, nil
}

// AddUnit registers an alternative unit of measure. Duplicates are rejected.
func (p *Product) AddUnit(name string, factor decimal.Decimal, isBase bool) (*ProductUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnitNotFound
	}
	if !factor.IsPositive() {
		return nil, ErrFactorNotPositive
	}
	if isBase {
		if !factor.Equal(decimal.NewFromInt(1)) {
			return nil, ErrBaseUnitFactor
		}
		for i := range p.Units {
			if p.Units[i].IsBase {
				return nil, ErrDuplicateUnit
			}
		}
	}
	for i := range p.Units {
		if strings.EqualFold(p.Units[i].Name, name) {
			return nil, ErrDuplicateUnit
		}
	}
	unit := ProductUnit{
		ID:               uuid.New(),
		ProductID:        p.ID,
		Name:             name,
		ConversionFactor: factor,
		IsBase:           isBase,
	}
	p.Units = append(p.Units, unit)
	return &p.Units[len(p.Units)-1], nil
}

// BaseUnit returns the unit stock balances are recorded in.
func (p *Product) BaseUnit() (*ProductUnit, bool) {
	for i := range p.Units {
		if p.Units[i].IsBase {
			return &p.Units[i], true
		}
	}
	return nil, false
}

// UnitByID resolves one of the product's units.
func (p *Product) UnitByID(id uuid.UUID) (*ProductUnit, bool) {
	for i := range p.Units {
		if p.Units[i].ID == id {
			return &p.Units[i], true
		}
	}
	return nil, false
}

// ToBaseQuantity converts qty expressed in the given unit into base units.
func (p *Product) ToBaseQuantity(unitID uuid.UUID, qty decimal.Decimal) (decimal.Decimal, error) {
	unit, ok := p.UnitByID(unitID)
	if !ok {
		return decimal.Zero, ErrUnitNotFound
	}
	return qty.Mul(unit.ConversionFactor), nil
}

// WeightedAverage computes the value-weighted mean cost after a receipt.
// With zero pre-receipt stock the result is the receipt's unit cost.
// The result is rounded to 4 places.
func WeightedAverage(existingQty, oldCost, receivedQty, unitCost decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return acctshared.Round4(unitCost)
	}
	total := existingQty.Add(receivedQty)
	if total.IsZero() {
		return acctshared.Round4(unitCost)
	}
	value := existingQty.Mul(oldCost).Add(receivedQty.Mul(unitCost))
	return acctshared.Round4(value.Div(total))
}

// ApplyReceipt recomputes the weighted-average cost from a purchase receipt.
// existingQty is the pre-receipt stock summed across all warehouses, in base
// units.
func (p *Product) ApplyReceipt(existingQty, receivedQty, unitCost decimal.Decimal, actor string, at time.Time) error {
	if !receivedQty.IsPositive() {
		return ErrQuantityNotPositive
	}
	if unitCost.IsNegative() {
		return ErrUnitCostNegative
	}
	if existingQty.IsNegative() {
		return ErrQuantityNotPositive
	}
	p.WeightedAverageCost = WeightedAverage(existingQty, p.WeightedAverageCost, receivedQty, unitCost)
	p.Meta.Touch(actor, at)
	return nil
}

// RestoreWeightedAverageCost sets the cost directly. The receipt formula is
// not invertible in general, so undoing a purchase restores the cost known
// before that receipt, supplied by the orchestrator from the receipt record.
func (p *Product) RestoreWeightedAverageCost(cost decimal.Decimal, actor string, at time.Time) error {
	if cost.IsNegative() {
		return ErrCostNegative
	}
	p.WeightedAverageCost = acctshared.Round4(cost)
	p.Meta.Touch(actor, at)
	return nil
}

// WarehouseProduct is the current balance per (warehouse, product) pair,
// always in base units.
type WarehouseProduct struct {
	ID          uuid.UUID         `json:"id"`
	WarehouseID uuid.UUID         `json:"warehouse_id"`
	ProductID   uuid.UUID         `json:"product_id"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Meta        shared.RecordMeta `json:"meta"`
}

// NewWarehouseProduct opens a zero balance.
func NewWarehouseProduct(warehouseID, productID uuid.UUID, actor string, at time.Time) *WarehouseProduct {
	return &WarehouseProduct{
		ID:          uuid.New(),
		WarehouseID: warehouseID,
		ProductID:   productID,
		Quantity:    decimal.Zero,
		Meta:        shared.NewRecordMeta(actor, at),
	}
}

// CanFulfill reports whether qty base units can leave this warehouse.
func (w *WarehouseProduct) CanFulfill(qty decimal.Decimal) bool {
	return qty.IsPositive() && w.Quantity.GreaterThanOrEqual(qty)
}

// Increase adds stock; the delta must be positive.
func (w *WarehouseProduct) Increase(qty decimal.Decimal, actor string, at time.Time) error {
	if !qty.IsPositive() {
		return ErrQuantityNotPositive
	}
	w.Quantity = w.Quantity.Add(qty)
	w.Meta.Touch(actor, at)
	return nil
}

// Decrease removes stock; a delta that would drive the balance below zero is
// a hard failure and leaves the balance unchanged.
func (w *WarehouseProduct) Decrease(qty decimal.Decimal, actor string, at time.Time) error {
	if !qty.IsPositive() {
		return ErrQuantityNotPositive
	}
	if w.Quantity.LessThan(qty) {
		return ErrInsufficientStock
	}
	w.Quantity = w.Quantity.Sub(qty)
	w.Meta.Touch(actor, at)
	return nil
}

// MovementDirection tells whether stock entered or left the warehouse.
type MovementDirection string

const (
	MovementIn  MovementDirection = "IN"
	MovementOut MovementDirection = "OUT"
)

// InventoryMovement is one append-only audit row per stock change. It is
// immutable once created; corrections are recorded as opposite movements.
type InventoryMovement struct {
	ID           uuid.UUID         `json:"id"`
	WarehouseID  uuid.UUID         `json:"warehouse_id"`
	ProductID    uuid.UUID         `json:"product_id"`
	Direction    MovementDirection `json:"direction"`
	UnitID       uuid.UUID         `json:"unit_id"`
	Quantity     decimal.Decimal   `json:"quantity"`
	BaseQuantity decimal.Decimal   `json:"base_quantity"`
	UnitCost     decimal.Decimal   `json:"unit_cost"`
	TotalCost    decimal.Decimal   `json:"total_cost"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	PriorAvgCost decimal.Decimal   `json:"prior_avg_cost"`
	SourceModule string            `json:"source_module"`
	SourceID     uuid.UUID         `json:"source_id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	CreatedBy    string            `json:"created_by"`
	CreatedAt    time.Time         `json:"created_at"`
}

// MovementInput groups the fields required to record a movement.
type MovementInput struct {
	WarehouseID  uuid.UUID
	ProductID    uuid.UUID
	Direction    MovementDirection
	UnitID       uuid.UUID
	Quantity     decimal.Decimal
	BaseQuantity decimal.Decimal
	UnitCost     decimal.Decimal
	BalanceAfter decimal.Decimal
	PriorAvgCost decimal.Decimal
	SourceModule string
	SourceID     uuid.UUID
	OccurredAt   time.Time
	Actor        string
}

// NewMovement validates and freezes one audit trail row.
func NewMovement(in MovementInput) (*InventoryMovement, error) {
	if !in.Quantity.IsPositive() || !in.BaseQuantity.IsPositive() {
		return nil, ErrQuantityNotPositive
	}
	if in.UnitCost.IsNegative() {
		return nil, ErrUnitCostNegative
	}
	if in.BalanceAfter.IsNegative() {
		return nil, ErrInsufficientStock
	}
	if in.SourceModule == "" || in.SourceID == uuid.Nil {
		return nil, ErrSourceRequired
	}
	if !acctshared.WithinScale(in.UnitCost) || !acctshared.WithinScale(in.BaseQuantity) {
		return nil, ErrScaleExceeded
	}
	return &InventoryMovement{
		ID:           uuid.New(),
		WarehouseID:  in.WarehouseID,
		ProductID:    in.ProductID,
		Direction:    in.Direction,
		UnitID:       in.UnitID,
		Quantity:     in.Quantity,
		BaseQuantity: in.BaseQuantity,
		UnitCost:     in.UnitCost,
		TotalCost:    acctshared.Round4(in.BaseQuantity.Mul(in.UnitCost)),
		BalanceAfter: in.BalanceAfter,
		PriorAvgCost: in.PriorAvgCost,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		OccurredAt:   in.OccurredAt,
		CreatedBy:    in.Actor,
		CreatedAt:    in.OccurredAt,
	}, nil
}
