package importer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validator checks parsed rows against entity rules, resolving references
// through the validation cache instead of per-row repository queries.
type Validator struct {
	cache *ValidationCache
}

func NewValidator(cache *ValidationCache) *Validator {
	return &Validator{cache: cache}
}

// ValidateRows runs structural and semantic checks over every row and
// returns the accumulated errors. It never stops early: downstream error
// analysis needs the full picture to decide whether the import continues.
func (v *Validator) ValidateRows(ctx context.Context, tenantID uuid.UUID, cfg EntityConfig, rows []domain.Row) ([]domain.ImportError, error) {
	var errs []domain.ImportError

	if len(rows) > cfg.MaxRecords {
		errs = append(errs, domain.ImportError{
			Row:     0,
			Column:  "",
			Message: fmt.Sprintf("file has %d records, the maximum for %s imports is %d", len(rows), cfg.Type, cfg.MaxRecords),
			Type:    domain.ErrorTypeFormat,
		})
		return errs, nil
	}

	existing, duplicateColumn, err := v.existingLookup(ctx, tenantID, cfg.Type)
	if err != nil {
		return nil, err
	}

	var products, suppliers LookupMap
	switch cfg.Type {
	case domain.EntityTypeProduct:
		suppliers, err = v.cache.Get(ctx, tenantID, domain.EntityTypeSupplier)
	case domain.EntityTypeMovement:
		products, err = v.cache.Get(ctx, tenantID, domain.EntityTypeProduct)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	for _, row := range rows {
		for _, column := range cfg.RequiredColumns {
			if strings.TrimSpace(row.Get(column)) == "" {
				errs = append(errs, domain.ImportError{
					Row:     row.Number,
					Column:  column,
					Message: fmt.Sprintf("%s is required", column),
					Type:    domain.ErrorTypeValidation,
				})
			}
		}

		switch cfg.Type {
		case domain.EntityTypeProduct:
			errs = append(errs, v.validateProduct(row, suppliers)...)
		case domain.EntityTypeSupplier:
			errs = append(errs, v.validateSupplier(row)...)
		case domain.EntityTypeMovement:
			errs = append(errs, v.validateMovement(row, products)...)
		}

		if duplicateColumn != "" {
			key := strings.ToLower(strings.TrimSpace(row.Get(duplicateColumn)))
			if key == "" {
				continue
			}
			if firstRow, dup := seen[key]; dup {
				errs = append(errs, domain.ImportError{
					Row:     row.Number,
					Column:  duplicateColumn,
					Value:   row.Get(duplicateColumn),
					Message: fmt.Sprintf("duplicate %s within file, first seen at row %d", duplicateColumn, firstRow),
					Type:    domain.ErrorTypeDuplicate,
				})
				continue
			}
			seen[key] = row.Number
			if _, exists := existing.Lookup(key); exists {
				errs = append(errs, domain.ImportError{
					Row:     row.Number,
					Column:  duplicateColumn,
					Value:   row.Get(duplicateColumn),
					Message: fmt.Sprintf("duplicate %s already exists for this tenant", duplicateColumn),
					Type:    domain.ErrorTypeDuplicate,
				})
			}
		}
	}
	return errs, nil
}

// existingLookup returns the same-kind reference map used for duplicate
// detection, plus the column uniqueness is keyed on. Movements have no
// natural key and skip the check.
func (v *Validator) existingLookup(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) (LookupMap, string, error) {
	switch kind {
	case domain.EntityTypeProduct, domain.EntityTypeSupplier:
		lookup, err := v.cache.Get(ctx, tenantID, kind)
		if err != nil {
			return nil, "", err
		}
		return lookup, "name", nil
	default:
		return nil, "", nil
	}
}

func (v *Validator) validateProduct(row domain.Row, suppliers LookupMap) []domain.ImportError {
	var errs []domain.ImportError

	if raw := strings.TrimSpace(row.Get("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil:
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "price", Value: raw,
				Message: fmt.Sprintf("invalid price %q, expected a decimal number", raw),
				Type:    domain.ErrorTypeValidation,
			})
		case price < 0:
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "price", Value: raw,
				Message: "price must not be negative",
				Type:    domain.ErrorTypeValidation,
			})
		}
	}

	for _, column := range []string{"stock", "min_stock"} {
		raw := strings.TrimSpace(row.Get(column))
		if raw == "" {
			continue
		}
		if qty, err := strconv.Atoi(raw); err != nil || qty < 0 {
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: column, Value: raw,
				Message: fmt.Sprintf("invalid %s %q, expected a non-negative integer", column, raw),
				Type:    domain.ErrorTypeValidation,
			})
		}
	}

	if supplier := strings.TrimSpace(row.Get("supplier")); supplier != "" {
		if _, ok := suppliers.Lookup(supplier); !ok {
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "supplier", Value: supplier,
				Message: fmt.Sprintf("supplier %q not found", supplier),
				Type:    domain.ErrorTypeReference,
			})
		}
	}
	return errs
}

func (v *Validator) validateSupplier(row domain.Row) []domain.ImportError {
	var errs []domain.ImportError

	if email := strings.TrimSpace(row.Get("email")); email != "" && !emailPattern.MatchString(email) {
		errs = append(errs, domain.ImportError{
			Row: row.Number, Column: "email", Value: email,
			Message: fmt.Sprintf("invalid email format %q", email),
			Type:    domain.ErrorTypeValidation,
		})
	}

	if phone := strings.TrimSpace(row.Get("phone")); phone != "" {
		stripped := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, phone)
		if len(stripped) < 7 || len(stripped) > 15 {
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "phone", Value: phone,
				Message: fmt.Sprintf("invalid phone number %q", phone),
				Type:    domain.ErrorTypeValidation,
			})
		}
	}
	return errs
}

func (v *Validator) validateMovement(row domain.Row, products LookupMap) []domain.ImportError {
	var errs []domain.ImportError

	if product := strings.TrimSpace(row.Get("product")); product != "" {
		if _, ok := products.Lookup(product); !ok {
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "product", Value: product,
				Message: fmt.Sprintf("product %q not found", product),
				Type:    domain.ErrorTypeReference,
			})
		}
	}

	if kind := strings.TrimSpace(row.Get("type")); kind != "" && !domain.ValidMovementKind(kind) {
		errs = append(errs, domain.ImportError{
			Row: row.Number, Column: "type", Value: kind,
			Message: fmt.Sprintf("invalid movement type %q, expected in, out or adjustment", kind),
			Type:    domain.ErrorTypeValidation,
		})
	}

	if raw := strings.TrimSpace(row.Get("quantity")); raw != "" {
		if qty, err := strconv.Atoi(raw); err != nil || qty <= 0 {
			errs = append(errs, domain.ImportError{
				Row: row.Number, Column: "quantity", Value: raw,
				Message: fmt.Sprintf("invalid quantity %q, expected a positive integer", raw),
				Type:    domain.ErrorTypeValidation,
			})
		}
	}
	return errs
}
