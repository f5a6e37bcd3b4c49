package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type supplierRepository struct {
	pool *pgxpool.Pool
}

// NewSupplierRepository wires a repository backed by pgxpool.
func NewSupplierRepository(pool *pgxpool.Pool) SupplierRepository {
	return &supplierRepository{pool: pool}
}

func (r *supplierRepository) Create(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO suppliers (id, tenant_id, name, email, phone, address, placeholder)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		supplier.ID,
		supplier.TenantID,
		supplier.Name,
		supplier.Email,
		supplier.Phone,
		supplier.Address,
		supplier.Placeholder,
	)
	if err := row.Scan(&supplier.CreatedAt, &supplier.UpdatedAt); err != nil {
		return domain.Supplier{}, fmt.Errorf("failed to create supplier: %w", err)
	}
	return supplier, nil
}

func (r *supplierRepository) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (domain.Supplier, error) {
	row := r.pool.QueryRow(
		ctx,
		supplierSelect+` WHERE tenant_id = $1 AND lower(name) = lower($2)`,
		tenantID, strings.TrimSpace(name),
	)
	return scanSupplier(row)
}

func (r *supplierRepository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Supplier, error) {
	rows, err := r.pool.Query(
		ctx,
		supplierSelect+` WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	suppliers := []domain.Supplier{}
	for rows.Next() {
		supplier, scanErr := scanSupplier(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		suppliers = append(suppliers, supplier)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate suppliers: %w", rowsErr)
	}
	return suppliers, nil
}

func (r *supplierRepository) ExistsByName(ctx context.Context, tenantID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM suppliers WHERE tenant_id = $1 AND lower(name) = lower($2))`,
		tenantID, strings.TrimSpace(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check supplier existence: %w", err)
	}
	return exists, nil
}

func (r *supplierRepository) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM suppliers WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count suppliers: %w", err)
	}
	return count, nil
}

const supplierSelect = `SELECT id, tenant_id, name, email, phone, address, placeholder, created_at, updated_at
 FROM suppliers`

func scanSupplier(row pgx.Row) (domain.Supplier, error) {
	var supplier domain.Supplier
	err := row.Scan(
		&supplier.ID,
		&supplier.TenantID,
		&supplier.Name,
		&supplier.Email,
		&supplier.Phone,
		&supplier.Address,
		&supplier.Placeholder,
		&supplier.CreatedAt,
		&supplier.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Supplier{}, ErrNotFound
		}
		return domain.Supplier{}, fmt.Errorf("failed to scan supplier: %w", err)
	}
	return supplier, nil
}
