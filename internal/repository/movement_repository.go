package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type movementRepository struct {
	pool *pgxpool.Pool
}

// NewMovementRepository wires a repository backed by pgxpool.
func NewMovementRepository(pool *pgxpool.Pool) MovementRepository {
	return &movementRepository{pool: pool}
}

func (r *movementRepository) Create(ctx context.Context, movement domain.StockMovement) (domain.StockMovement, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO stock_movements (id, tenant_id, product_id, kind, quantity, reason, reference, occurred_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		movement.ID,
		movement.TenantID,
		movement.ProductID,
		string(movement.Kind),
		movement.Quantity,
		movement.Reason,
		movement.Reference,
		movement.OccurredAt,
		movement.CreatedBy,
	)
	if err := row.Scan(&movement.CreatedAt); err != nil {
		return domain.StockMovement{}, fmt.Errorf("failed to create stock movement: %w", err)
	}
	return movement, nil
}

func (r *movementRepository) ListByProduct(ctx context.Context, tenantID, productID uuid.UUID, limit, offset int) ([]domain.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, product_id, kind, quantity, reason, reference, occurred_at, created_by, created_at
		 FROM stock_movements
		 WHERE tenant_id = $1 AND product_id = $2
		 ORDER BY occurred_at DESC
		 LIMIT $3 OFFSET $4`,
		tenantID, productID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	defer rows.Close()

	movements := []domain.StockMovement{}
	for rows.Next() {
		var movement domain.StockMovement
		var kind string
		if scanErr := rows.Scan(
			&movement.ID,
			&movement.TenantID,
			&movement.ProductID,
			&kind,
			&movement.Quantity,
			&movement.Reason,
			&movement.Reference,
			&movement.OccurredAt,
			&movement.CreatedBy,
			&movement.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", scanErr)
		}
		movement.Kind = domain.MovementKind(kind)
		movements = append(movements, movement)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate stock movements: %w", rowsErr)
	}
	return movements, nil
}

func (r *movementRepository) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stock_movements WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stock movements: %w", err)
	}
	return count, nil
}
