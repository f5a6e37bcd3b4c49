package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportLogEntry captures a persisted row level issue from an import run.
type ImportLogEntry struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	JobID        uuid.UUID `json:"job_id"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	Column       string    `json:"column,omitempty"`
	ErrorType    ErrorType `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
