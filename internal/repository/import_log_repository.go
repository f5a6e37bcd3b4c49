package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_logs (tenant_id, job_id, file_name, row_number, column_name, error_type, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.TenantID,
		entry.JobID,
		entry.FileName,
		rowNumber,
		entry.Column,
		string(entry.ErrorType),
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record import log: %w", err)
	}
	return nil
}

// RecordBatch inserts all entries in one round trip via pgx batching.
func (r *importLogRepository) RecordBatch(ctx context.Context, entries []domain.ImportLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = *entry.RowNumber
		}
		batch.Queue(
			`INSERT INTO import_logs (tenant_id, job_id, file_name, row_number, column_name, error_type, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.TenantID,
			entry.JobID,
			entry.FileName,
			rowNumber,
			entry.Column,
			string(entry.ErrorType),
			entry.ErrorMessage,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record import log batch: %w", err)
		}
	}
	return nil
}

func (r *importLogRepository) ListByJob(ctx context.Context, tenantID, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, job_id, file_name, row_number, column_name, error_type, error_message, created_at
		 FROM import_logs
		 WHERE tenant_id = $1 AND job_id = $2
		 ORDER BY row_number NULLS LAST, created_at
		 LIMIT $3 OFFSET $4`,
		tenantID, jobID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.ImportLogEntry{}
	for rows.Next() {
		var (
			entry     domain.ImportLogEntry
			rowNumber pgtype.Int4
			errorType string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.JobID,
			&entry.FileName,
			&rowNumber,
			&entry.Column,
			&errorType,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		entry.ErrorType = domain.ErrorType(errorType)
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		logs = append(logs, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import logs: %w", rowsErr)
	}
	return logs, nil
}
