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

type productRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository wires a repository backed by pgxpool.
func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &productRepository{pool: pool}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO products (id, tenant_id, name, code, category, price, stock, min_stock, unit, supplier_id, placeholder)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		product.ID,
		product.TenantID,
		product.Name,
		product.Code,
		product.Category,
		product.Price,
		product.Stock,
		product.MinStock,
		product.Unit,
		product.SupplierID,
		product.Placeholder,
	)
	if err := row.Scan(&product.CreatedAt, &product.UpdatedAt); err != nil {
		return domain.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (r *productRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Product, error) {
	row := r.pool.QueryRow(
		ctx,
		productSelect+` WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return scanProduct(row)
}

func (r *productRepository) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (domain.Product, error) {
	row := r.pool.QueryRow(
		ctx,
		productSelect+` WHERE tenant_id = $1 AND lower(name) = lower($2)`,
		tenantID, strings.TrimSpace(name),
	)
	return scanProduct(row)
}

func (r *productRepository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Product, error) {
	rows, err := r.pool.Query(
		ctx,
		productSelect+` WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		products = append(products, product)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", rowsErr)
	}
	return products, nil
}

func (r *productRepository) ExistsByName(ctx context.Context, tenantID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE tenant_id = $1 AND lower(name) = lower($2))`,
		tenantID, strings.TrimSpace(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", err)
	}
	return exists, nil
}

func (r *productRepository) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func (r *productRepository) AdjustStock(ctx context.Context, tenantID, id uuid.UUID, delta int) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE products SET stock = stock + $3, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const productSelect = `SELECT id, tenant_id, name, code, category, price, stock, min_stock, unit, supplier_id, placeholder, created_at, updated_at
 FROM products`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var product domain.Product
	err := row.Scan(
		&product.ID,
		&product.TenantID,
		&product.Name,
		&product.Code,
		&product.Category,
		&product.Price,
		&product.Stock,
		&product.MinStock,
		&product.Unit,
		&product.SupplierID,
		&product.Placeholder,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	return product, nil
}
