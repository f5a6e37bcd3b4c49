package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultStatusTTL = 10 * time.Minute

// StatusCache keeps recent job records in Redis so status polling does not
// hit Postgres on every request. A nil client disables caching; every lookup
// is a miss and writes are no-ops.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache wraps a Redis client. ttl <= 0 uses the default.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(tenantID, jobID uuid.UUID) string {
	return fmt.Sprintf("stockflow:jobs:%s:%s", tenantID, jobID)
}

// Put stores the job snapshot. Cache failures are returned but callers treat
// them as advisory.
func (c *StatusCache) Put(ctx context.Context, job domain.ImportJob) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := c.client.Set(ctx, statusKey(job.TenantID, job.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the cached job snapshot, reporting whether one was found.
func (c *StatusCache) Get(ctx context.Context, tenantID, jobID uuid.UUID) (domain.ImportJob, bool, error) {
	if c == nil || c.client == nil {
		return domain.ImportJob{}, false, nil
	}
	payload, err := c.client.Get(ctx, statusKey(tenantID, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ImportJob{}, false, nil
	}
	if err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("failed to read cached job %s: %w", jobID, err)
	}
	var job domain.ImportJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("failed to decode cached job %s: %w", jobID, err)
	}
	return job, true, nil
}

// Drop removes a cached snapshot, typically after a state or count change.
func (c *StatusCache) Drop(ctx context.Context, tenantID, jobID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, statusKey(tenantID, jobID))
}
