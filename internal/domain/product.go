package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product represents a sellable item scoped to a tenant.
type Product struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	Stock       int        `json:"stock"`
	MinStock    int        `json:"min_stock"`
	Unit        string     `json:"unit"`
	SupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
	Placeholder bool       `json:"placeholder"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewProduct creates a new product with immutable pattern
func NewProduct(tenantID uuid.UUID, name, code string) Product {
	now := time.Now()
	return Product{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Code:      code,
		Unit:      "unit",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPlaceholderProduct creates a minimal product for references that do not
// exist yet. Placeholder records carry zero price and stock and are flagged so
// downstream views can prompt the user to complete them.
func NewPlaceholderProduct(tenantID uuid.UUID, name string) Product {
	product := NewProduct(tenantID, name, placeholderCode(name))
	product.Category = "uncategorized"
	product.Placeholder = true
	return product
}

// WithPrice returns a new product with updated price.
func (p Product) WithPrice(price float64) Product {
	p.Price = price
	p.UpdatedAt = time.Now()
	return p
}

// WithStock returns a new product with updated stock level.
func (p Product) WithStock(stock int) Product {
	p.Stock = stock
	p.UpdatedAt = time.Now()
	return p
}

func placeholderCode(name string) string {
	slug := strings.ToUpper(Slugify(name))
	if slug == "" {
		slug = "UNNAMED"
	}
	return fmt.Sprintf("AUTO-%s", slug)
}
