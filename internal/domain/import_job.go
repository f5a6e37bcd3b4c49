package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType selects which kind of record an import produces.
type EntityType string

const (
	EntityTypeProduct  EntityType = "product"
	EntityTypeSupplier EntityType = "supplier"
	EntityTypeMovement EntityType = "movement"
)

// JobState is the lifecycle state of an import job.
type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateProcessing JobState = "PROCESSING"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateError      JobState = "ERROR"
	JobStateCancelled  JobState = "CANCELLED"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateError, JobStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next.
// PENDING may start processing or be cancelled; PROCESSING may finish in any
// terminal state; terminal states are frozen.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobStatePending:
		return next == JobStateProcessing || next == JobStateCancelled
	case JobStateProcessing:
		return next.Terminal()
	}
	return false
}

// Cancellable reports whether a job in this state may be cancelled.
func (s JobState) Cancellable() bool {
	return s == JobStatePending || s == JobStateProcessing
}

// ImportJob identifies one import attempt for a tenant.
type ImportJob struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.UUID     `json:"tenant_id"`
	UserID       uuid.UUID     `json:"user_id"`
	EntityType   EntityType    `json:"entity_type"`
	FileName     string        `json:"file_name"`
	TotalRecords int           `json:"total_records"`
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	State        JobState      `json:"state"`
	Errors       []ImportError `json:"errors,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// NewImportJob creates a pending import job with immutable pattern
func NewImportJob(tenantID, userID uuid.UUID, entityType EntityType, fileName string, totalRecords int) ImportJob {
	return ImportJob{
		ID:           uuid.New(),
		TenantID:     tenantID,
		UserID:       userID,
		EntityType:   entityType,
		FileName:     fileName,
		TotalRecords: totalRecords,
		State:        JobStatePending,
		CreatedAt:    time.Now(),
	}
}

// WithState returns a copy of the job moved to next, stamping start and
// completion times as the state machine advances. Invalid transitions return
// the job unchanged; callers guard with CanTransitionTo when they need to
// distinguish.
func (j ImportJob) WithState(next JobState) ImportJob {
	if !j.State.CanTransitionTo(next) {
		return j
	}
	now := time.Now()
	j.State = next
	switch {
	case next == JobStateProcessing:
		j.StartedAt = &now
	case next.Terminal():
		j.CompletedAt = &now
	}
	return j
}

// WithCounts returns a copy of the job with updated record counters.
func (j ImportJob) WithCounts(processed, succeeded, failed int) ImportJob {
	j.Processed = processed
	j.Succeeded = succeeded
	j.Failed = failed
	return j
}

// MaxDetailedErrors caps how many row errors a job record carries. The full
// set is still persisted as import log entries.
const MaxDetailedErrors = 100

// WithErrors returns a copy of the job with the accumulated error list,
// truncated to MaxDetailedErrors entries.
func (j ImportJob) WithErrors(errs []ImportError) ImportJob {
	if len(errs) > MaxDetailedErrors {
		errs = errs[:MaxDetailedErrors]
	}
	j.Errors = append([]ImportError(nil), errs...)
	return j
}
