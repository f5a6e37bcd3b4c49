package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository wires a repository backed by pgxpool.
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode job errors: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_jobs (id, tenant_id, user_id, entity_type, file_name, total_records, processed, succeeded, failed, state, errors, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		job.ID,
		job.TenantID,
		job.UserID,
		string(job.EntityType),
		job.FileName,
		job.TotalRecords,
		job.Processed,
		job.Succeeded,
		job.Failed,
		string(job.State),
		errorsJSON,
		job.StartedAt,
		job.CompletedAt,
	)
	if err := row.Scan(&job.CreatedAt); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return job, nil
}

func (r *importJobRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ImportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		jobSelect+` WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return scanJob(row)
}

// UpdateState moves a job from one state to another. The WHERE clause on the
// current state makes the transition atomic; losing the race returns
// ErrStateConflict so callers can re-read and decide.
func (r *importJobRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.JobState) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s cannot transition to %s", ErrStateConflict, from, to)
	}

	query := `UPDATE import_jobs SET state = $3, updated_at = now() WHERE id = $1 AND state = $2`
	switch {
	case to == domain.JobStateProcessing:
		query = `UPDATE import_jobs SET state = $3, started_at = now(), updated_at = now() WHERE id = $1 AND state = $2`
	case to.Terminal():
		query = `UPDATE import_jobs SET state = $3, completed_at = now(), updated_at = now() WHERE id = $1 AND state = $2`
	}

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

func (r *importJobRepository) UpdateCounts(ctx context.Context, id uuid.UUID, processed, succeeded, failed int) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs SET processed = $2, succeeded = $3, failed = $4, updated_at = now() WHERE id = $1`,
		id, processed, succeeded, failed,
	)
	if err != nil {
		return fmt.Errorf("failed to update job counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *importJobRepository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		jobSelect+` WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", rowsErr)
	}
	return jobs, nil
}

const jobSelect = `SELECT id, tenant_id, user_id, entity_type, file_name, total_records, processed, succeeded, failed, state, errors, created_at, started_at, completed_at
 FROM import_jobs`

func scanJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		job         domain.ImportJob
		entityType  string
		state       string
		errorsJSON  []byte
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.UserID,
		&entityType,
		&job.FileName,
		&job.TotalRecords,
		&job.Processed,
		&job.Succeeded,
		&job.Failed,
		&state,
		&errorsJSON,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, ErrNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("failed to scan import job: %w", err)
	}

	job.EntityType = domain.EntityType(entityType)
	job.State = domain.JobState(state)
	if len(errorsJSON) > 0 {
		if unmarshalErr := json.Unmarshal(errorsJSON, &job.Errors); unmarshalErr != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to decode job errors: %w", unmarshalErr)
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}
