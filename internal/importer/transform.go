package importer

import (
	"strconv"
	"strings"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

// ApplyDefaults fills the entity's configured default values into columns the
// row left empty. Validation and transformation both see the defaulted row.
func ApplyDefaults(row domain.Row, cfg EntityConfig) domain.Row {
	for column, value := range cfg.Defaults {
		if strings.TrimSpace(row.Get(column)) == "" {
			row = row.WithValue(column, value)
		}
	}
	return row
}

// RowToProduct builds a Product from a validated, defaulted row. The supplier
// column is resolved through the lookup map; an unresolvable supplier leaves
// SupplierID nil, which only happens when validation was skipped.
func RowToProduct(tenantID uuid.UUID, row domain.Row, suppliers LookupMap) domain.Product {
	product := domain.NewProduct(tenantID, strings.TrimSpace(row.Get("name")), strings.TrimSpace(row.Get("code")))

	if category := strings.TrimSpace(row.Get("category")); category != "" {
		product.Category = category
	}
	if unit := strings.TrimSpace(row.Get("unit")); unit != "" {
		product.Unit = unit
	}
	if price, err := strconv.ParseFloat(strings.TrimSpace(row.Get("price")), 64); err == nil {
		product = product.WithPrice(price)
	}
	if stock, err := strconv.Atoi(strings.TrimSpace(row.Get("stock"))); err == nil {
		product = product.WithStock(stock)
	}
	if minStock, err := strconv.Atoi(strings.TrimSpace(row.Get("min_stock"))); err == nil {
		product.MinStock = minStock
	}
	if supplier := strings.TrimSpace(row.Get("supplier")); supplier != "" {
		if ref, ok := suppliers.Lookup(supplier); ok {
			id := ref.ID
			product.SupplierID = &id
		}
	}
	return product
}

// RowToSupplier builds a Supplier from a validated, defaulted row.
func RowToSupplier(tenantID uuid.UUID, row domain.Row) domain.Supplier {
	supplier := domain.NewSupplier(tenantID, strings.TrimSpace(row.Get("name")), strings.TrimSpace(row.Get("email")))
	return supplier.WithContact(supplier.Email, strings.TrimSpace(row.Get("phone")))
}

// RowToMovement builds a StockMovement from a validated, defaulted row. The
// product must already be resolvable; callers auto-create placeholders before
// transformation when the reference is missing.
func RowToMovement(tenantID, userID uuid.UUID, row domain.Row, products LookupMap) (domain.StockMovement, bool) {
	ref, ok := products.Lookup(strings.TrimSpace(row.Get("product")))
	if !ok {
		return domain.StockMovement{}, false
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(row.Get("quantity")))
	if err != nil {
		return domain.StockMovement{}, false
	}

	movement := domain.NewStockMovement(tenantID, ref.ID, domain.MovementKind(strings.TrimSpace(row.Get("type"))), quantity)
	movement.CreatedBy = userID
	if reason := strings.TrimSpace(row.Get("reason")); reason != "" {
		movement.Reason = reason
	}
	if reference := strings.TrimSpace(row.Get("reference")); reference != "" {
		movement.Reference = reference
	}
	return movement, true
}
