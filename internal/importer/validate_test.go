package importer

import (
	"context"
	"testing"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

func validatorFixture(t *testing.T, products *stubProductRepo, suppliers *stubSupplierRepo) *Validator {
	t.Helper()
	cache := NewValidationCache(CacheConfig{}, NewRepositoryLoader(products, suppliers))
	t.Cleanup(cache.Close)
	return NewValidator(cache)
}

func makeRow(number int, values map[string]string) domain.Row {
	return domain.Row{Number: number, Values: values}
}

func errorFor(errs []domain.ImportError, column string) (domain.ImportError, bool) {
	for _, e := range errs {
		if e.Column == column {
			return e, true
		}
	}
	return domain.ImportError{}, false
}

func TestValidateRowsRequiredColumns(t *testing.T) {
	v := validatorFixture(t, &stubProductRepo{}, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeProduct)

	rows := []domain.Row{makeRow(2, map[string]string{"name": "", "price": "  "})}
	errs, err := v.ValidateRows(context.Background(), uuid.New(), cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 required-column errors, got %d: %+v", len(errs), errs)
	}
	for _, e := range errs {
		if e.Type != domain.ErrorTypeValidation {
			t.Fatalf("expected validation type, got %s", e.Type)
		}
	}
}

func TestValidateRowsProductFields(t *testing.T) {
	v := validatorFixture(t, &stubProductRepo{}, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeProduct)
	tenantID := uuid.New()

	rows := []domain.Row{
		makeRow(2, map[string]string{"name": "A", "price": "abc", "stock": "-1"}),
		makeRow(3, map[string]string{"name": "B", "price": "-2.50"}),
		makeRow(4, map[string]string{"name": "C", "price": "9.99", "supplier": "Ghost Corp"}),
	}
	errs, err := v.ValidateRows(context.Background(), tenantID, cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}

	if e, ok := errorFor(errs, "stock"); !ok || e.Row != 2 {
		t.Fatalf("expected stock error on row 2, got %+v", errs)
	}
	if e, ok := errorFor(errs, "supplier"); !ok || e.Type != domain.ErrorTypeReference {
		t.Fatalf("expected reference error for unknown supplier, got %+v", errs)
	}

	var priceErrors int
	for _, e := range errs {
		if e.Column == "price" {
			priceErrors++
		}
	}
	if priceErrors != 2 {
		t.Fatalf("expected malformed and negative price errors, got %d", priceErrors)
	}
}

func TestValidateRowsSupplierFields(t *testing.T) {
	v := validatorFixture(t, &stubProductRepo{}, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeSupplier)

	rows := []domain.Row{
		makeRow(2, map[string]string{"name": "Acme", "email": "not-an-email", "phone": "12345"}),
		makeRow(3, map[string]string{"name": "Globex", "email": "ops@globex.example", "phone": "+34 912 345 678"}),
	}
	errs, err := v.ValidateRows(context.Background(), uuid.New(), cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}

	if e, ok := errorFor(errs, "email"); !ok || e.Row != 2 {
		t.Fatalf("expected email error on row 2, got %+v", errs)
	}
	if e, ok := errorFor(errs, "phone"); !ok || e.Row != 2 {
		t.Fatalf("expected phone error on row 2, got %+v", errs)
	}
	for _, e := range errs {
		if e.Row == 3 {
			t.Fatalf("row 3 is valid, got error %+v", e)
		}
	}
}

func TestValidateRowsMovementFields(t *testing.T) {
	products := &stubProductRepo{}
	tenantID := uuid.New()
	if _, err := products.Create(context.Background(), domain.NewProduct(tenantID, "Widget", "W-1")); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	v := validatorFixture(t, products, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeMovement)

	rows := []domain.Row{
		makeRow(2, map[string]string{"product": "Widget", "type": "in", "quantity": "5"}),
		makeRow(3, map[string]string{"product": "Gadget", "type": "sideways", "quantity": "0"}),
	}
	errs, err := v.ValidateRows(context.Background(), tenantID, cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}

	if e, ok := errorFor(errs, "product"); !ok || e.Type != domain.ErrorTypeReference {
		t.Fatalf("expected reference error for unknown product, got %+v", errs)
	}
	if _, ok := errorFor(errs, "type"); !ok {
		t.Fatalf("expected movement type error, got %+v", errs)
	}
	if _, ok := errorFor(errs, "quantity"); !ok {
		t.Fatalf("expected quantity error, got %+v", errs)
	}
	for _, e := range errs {
		if e.Row == 2 {
			t.Fatalf("row 2 is valid, got error %+v", e)
		}
	}
}

func TestValidateRowsDuplicateDetection(t *testing.T) {
	products := &stubProductRepo{}
	tenantID := uuid.New()
	if _, err := products.Create(context.Background(), domain.NewProduct(tenantID, "Existing", "E-1")); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	v := validatorFixture(t, products, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeProduct)

	rows := []domain.Row{
		makeRow(2, map[string]string{"name": "Fresh", "price": "1.00"}),
		makeRow(3, map[string]string{"name": "fresh", "price": "2.00"}),
		makeRow(4, map[string]string{"name": "EXISTING", "price": "3.00"}),
	}
	errs, err := v.ValidateRows(context.Background(), tenantID, cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}

	if len(errs) != 2 {
		t.Fatalf("expected 2 duplicate errors, got %d: %+v", len(errs), errs)
	}
	for _, e := range errs {
		if e.Type != domain.ErrorTypeDuplicate {
			t.Fatalf("expected duplicate type, got %s", e.Type)
		}
	}
	if errs[0].Row != 3 || errs[1].Row != 4 {
		t.Fatalf("expected duplicates on rows 3 and 4, got %+v", errs)
	}
}

func TestValidateRowsRecordLimit(t *testing.T) {
	v := validatorFixture(t, &stubProductRepo{}, &stubSupplierRepo{})
	cfg, _ := ConfigFor(domain.EntityTypeProduct)
	cfg.MaxRecords = 2

	rows := []domain.Row{
		makeRow(2, map[string]string{"name": "A", "price": "1"}),
		makeRow(3, map[string]string{"name": "B", "price": "1"}),
		makeRow(4, map[string]string{"name": "C", "price": "1"}),
	}
	errs, err := v.ValidateRows(context.Background(), uuid.New(), cfg, rows)
	if err != nil {
		t.Fatalf("ValidateRows failed: %v", err)
	}
	if len(errs) != 1 || errs[0].Type != domain.ErrorTypeFormat {
		t.Fatalf("expected a single format error, got %+v", errs)
	}
}
