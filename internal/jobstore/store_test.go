package jobstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rpattn/stockflow/internal/domain"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/google/uuid"
)

type memoryJobRepo struct {
	jobs map[uuid.UUID]domain.ImportJob
	gets int
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: map[uuid.UUID]domain.ImportJob{}}
}

func (r *memoryJobRepo) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memoryJobRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ImportJob, error) {
	r.gets++
	job, ok := r.jobs[id]
	if !ok || job.TenantID != tenantID {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *memoryJobRepo) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.JobState) error {
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if job.State != from {
		return repository.ErrStateConflict
	}
	r.jobs[id] = job.WithState(to)
	return nil
}

func (r *memoryJobRepo) UpdateCounts(ctx context.Context, id uuid.UUID, processed, succeeded, failed int) error {
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.jobs[id] = job.WithCounts(processed, succeeded, failed)
	return nil
}

func (r *memoryJobRepo) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	var out []domain.ImportJob
	for _, job := range r.jobs {
		if job.TenantID == tenantID {
			out = append(out, job)
		}
	}
	return out, nil
}

func TestStoreWithoutRedisIsPassthrough(t *testing.T) {
	repo := newMemoryJobRepo()
	store := NewStore(repo, NewStatusCache(nil, 0), nil)

	job := domain.NewImportJob(uuid.New(), uuid.New(), domain.EntityTypeProduct, "p.csv", 10)
	created, err := store.Create(context.Background(), job)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByID(context.Background(), job.TenantID, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != job.ID || got.State != domain.JobStatePending {
		t.Fatalf("unexpected job %+v", got)
	}
	if repo.gets != 1 {
		t.Fatalf("expected a repository read with caching disabled, got %d", repo.gets)
	}

	if err := store.UpdateState(context.Background(), job.ID, domain.JobStatePending, domain.JobStateProcessing); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := store.UpdateCounts(context.Background(), job.ID, 10, 9, 1); err != nil {
		t.Fatalf("UpdateCounts failed: %v", err)
	}

	got, err = store.GetByID(context.Background(), job.TenantID, job.ID)
	if err != nil {
		t.Fatalf("GetByID after updates failed: %v", err)
	}
	if got.State != domain.JobStateProcessing || got.Processed != 10 || got.Failed != 1 {
		t.Fatalf("updates not persisted: %+v", got)
	}
}

func TestStoreNilCacheIsSafe(t *testing.T) {
	repo := newMemoryJobRepo()
	store := NewStore(repo, nil, nil)

	job := domain.NewImportJob(uuid.New(), uuid.New(), domain.EntityTypeProduct, "p.csv", 5)
	if _, err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.GetByID(context.Background(), job.TenantID, job.ID); err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if err := store.UpdateState(context.Background(), job.ID, domain.JobStatePending, domain.JobStateProcessing); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
}

func TestStoreSurfacesRepositoryErrors(t *testing.T) {
	store := NewStore(newMemoryJobRepo(), nil, nil)

	_, err := store.GetByID(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = store.UpdateState(context.Background(), uuid.New(), domain.JobStatePending, domain.JobStateProcessing)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusCacheDisabledClient(t *testing.T) {
	cache := NewStatusCache(nil, time.Minute)

	job := domain.NewImportJob(uuid.New(), uuid.New(), domain.EntityTypeProduct, "p.csv", 1)
	if err := cache.Put(context.Background(), job); err != nil {
		t.Fatalf("Put with nil client must be a no-op, got %v", err)
	}
	_, ok, err := cache.Get(context.Background(), job.TenantID, job.ID)
	if err != nil || ok {
		t.Fatalf("Get with nil client must miss cleanly, got ok=%v err=%v", ok, err)
	}
	cache.Drop(context.Background(), job.TenantID, job.ID)
}

func TestStatusKeyShape(t *testing.T) {
	tenantID := uuid.New()
	jobID := uuid.New()
	want := fmt.Sprintf("stockflow:jobs:%s:%s", tenantID, jobID)
	if got := statusKey(tenantID, jobID); got != want {
		t.Fatalf("expected key %q, got %q", want, got)
	}
}
