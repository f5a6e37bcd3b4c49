package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind enumerates supported inventory movement directions.
type MovementKind string

const (
	MovementIn         MovementKind = "in"
	MovementOut        MovementKind = "out"
	MovementAdjustment MovementKind = "adjustment"
)

// ValidMovementKind reports whether kind is one of the supported values.
func ValidMovementKind(kind string) bool {
	switch MovementKind(kind) {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// StockMovement records a single inventory change for a product.
type StockMovement struct {
	ID         uuid.UUID    `json:"id"`
	TenantID   uuid.UUID    `json:"tenant_id"`
	ProductID  uuid.UUID    `json:"product_id"`
	Kind       MovementKind `json:"kind"`
	Quantity   int          `json:"quantity"`
	Reason     string       `json:"reason"`
	Reference  string       `json:"reference"`
	OccurredAt time.Time    `json:"occurred_at"`
	CreatedBy  uuid.UUID    `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewStockMovement creates a new stock movement with immutable pattern
func NewStockMovement(tenantID, productID uuid.UUID, kind MovementKind, quantity int) StockMovement {
	now := time.Now()
	return StockMovement{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ProductID:  productID,
		Kind:       kind,
		Quantity:   quantity,
		OccurredAt: now,
		CreatedAt:  now,
	}
}
