package repository

import (
	"context"
	"errors"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a tenant-scoped lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrStateConflict is returned when a job state update loses a race with a
// concurrent transition.
var ErrStateConflict = errors.New("job state conflict")

// ProductRepository defines tenant-scoped product operations.
type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Product, error)
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (domain.Product, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Product, error)
	ExistsByName(ctx context.Context, tenantID uuid.UUID, name string) (bool, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
	AdjustStock(ctx context.Context, tenantID, id uuid.UUID, delta int) error
}

// SupplierRepository defines tenant-scoped supplier operations.
type SupplierRepository interface {
	Create(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error)
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (domain.Supplier, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Supplier, error)
	ExistsByName(ctx context.Context, tenantID uuid.UUID, name string) (bool, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// MovementRepository defines tenant-scoped stock movement operations.
type MovementRepository interface {
	Create(ctx context.Context, movement domain.StockMovement) (domain.StockMovement, error)
	ListByProduct(ctx context.Context, tenantID, productID uuid.UUID, limit, offset int) ([]domain.StockMovement, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// ImportJobRepository persists import job lifecycle state.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ImportJob, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to domain.JobState) error
	UpdateCounts(ctx context.Context, id uuid.UUID, processed, succeeded, failed int) error
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error)
}

// ImportLogRepository stores row level import errors for observability.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	RecordBatch(ctx context.Context, entries []domain.ImportLogEntry) error
	ListByJob(ctx context.Context, tenantID, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error)
}
