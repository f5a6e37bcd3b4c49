package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestJobStateTransitions(t *testing.T) {
	cases := []struct {
		from    JobState
		to      JobState
		allowed bool
	}{
		{JobStatePending, JobStateProcessing, true},
		{JobStatePending, JobStateCancelled, true},
		{JobStatePending, JobStateCompleted, false},
		{JobStateProcessing, JobStateCompleted, true},
		{JobStateProcessing, JobStateError, true},
		{JobStateProcessing, JobStateCancelled, true},
		{JobStateCompleted, JobStateProcessing, false},
		{JobStateCancelled, JobStateProcessing, false},
		{JobStateError, JobStateCancelled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestWithStateStampsTimes(t *testing.T) {
	job := NewImportJob(uuid.New(), uuid.New(), EntityTypeProduct, "products.csv", 10)
	if job.State != JobStatePending {
		t.Fatalf("new job should be pending, got %s", job.State)
	}

	job = job.WithState(JobStateProcessing)
	if job.StartedAt == nil {
		t.Fatalf("expected started_at to be stamped")
	}

	job = job.WithState(JobStateCompleted)
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at to be stamped")
	}

	// Terminal states are frozen.
	frozen := job.WithState(JobStateProcessing)
	if frozen.State != JobStateCompleted {
		t.Fatalf("terminal job must not transition, got %s", frozen.State)
	}
}

func TestWithErrorsCapsDetailedList(t *testing.T) {
	errs := make([]ImportError, MaxDetailedErrors+20)
	for i := range errs {
		errs[i] = ImportError{Row: i + 2, Column: "price", Message: "price is required", Type: ErrorTypeValidation}
	}

	job := NewImportJob(uuid.New(), uuid.New(), EntityTypeProduct, "products.csv", len(errs))
	job = job.WithErrors(errs)
	if len(job.Errors) != MaxDetailedErrors {
		t.Fatalf("expected %d detailed errors, got %d", MaxDetailedErrors, len(job.Errors))
	}
	if job.Errors[0].Row != 2 {
		t.Fatalf("expected the first errors to be kept, got row %d", job.Errors[0].Row)
	}
}

func TestPlaceholderEmailIsDeterministic(t *testing.T) {
	first := PlaceholderEmail("Distribuidora López")
	second := PlaceholderEmail("Distribuidora López")
	if first != second {
		t.Fatalf("placeholder email not deterministic: %s vs %s", first, second)
	}
	if first != "pending+distribuidora_l_pez@placeholder.invalid" {
		t.Fatalf("unexpected placeholder email: %s", first)
	}
}
