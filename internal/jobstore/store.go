package jobstore

import (
	"context"
	"log/slog"

	"github.com/rpattn/stockflow/internal/domain"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/google/uuid"
)

// Store layers the Redis status cache over the persistent job repository.
// It satisfies repository.ImportJobRepository, so callers are unaware of the
// cache; mutations invalidate, reads populate.
type Store struct {
	repo   repository.ImportJobRepository
	cache  *StatusCache
	logger *slog.Logger
}

// NewStore builds a cached job store. cache may be nil.
func NewStore(repo repository.ImportJobRepository, cache *StatusCache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, cache: cache, logger: logger}
}

var _ repository.ImportJobRepository = (*Store)(nil)

func (s *Store) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if err := s.cache.Put(ctx, created); err != nil {
		s.logger.Warn("job status cache write failed", "job_id", created.ID, "error", err)
	}
	return created, nil
}

func (s *Store) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ImportJob, error) {
	cached, ok, err := s.cache.Get(ctx, tenantID, id)
	if err != nil {
		s.logger.Warn("job status cache read failed", "job_id", id, "error", err)
	}
	if ok {
		return cached, nil
	}

	job, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if err := s.cache.Put(ctx, job); err != nil {
		s.logger.Warn("job status cache write failed", "job_id", id, "error", err)
	}
	return job, nil
}

func (s *Store) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.JobState) error {
	if err := s.repo.UpdateState(ctx, id, from, to); err != nil {
		return err
	}
	s.dropByJobID(ctx, id)
	return nil
}

func (s *Store) UpdateCounts(ctx context.Context, id uuid.UUID, processed, succeeded, failed int) error {
	if err := s.repo.UpdateCounts(ctx, id, processed, succeeded, failed); err != nil {
		return err
	}
	s.dropByJobID(ctx, id)
	return nil
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

// dropByJobID invalidates without knowing the tenant. State updates are keyed
// by job ID alone, so the cached copy is looked up from the repo's snapshot
// when possible and otherwise left to expire.
func (s *Store) dropByJobID(ctx context.Context, id uuid.UUID) {
	if s.cache == nil || s.cache.client == nil {
		return
	}
	// Keys embed the tenant; scan the small keyspace prefix for this job.
	pattern := "stockflow:jobs:*:" + id.String()
	iter := s.cache.client.Scan(ctx, 0, pattern, 10).Iterator()
	for iter.Next(ctx) {
		s.cache.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("job status cache invalidation failed", "job_id", id, "error", err)
	}
}
