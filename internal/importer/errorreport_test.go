package importer

import (
	"fmt"
	"testing"

	"github.com/rpattn/stockflow/internal/domain"
)

func productConfig(t *testing.T) EntityConfig {
	t.Helper()
	cfg, err := ConfigFor(domain.EntityTypeProduct)
	if err != nil {
		t.Fatalf("ConfigFor(product): %v", err)
	}
	return cfg
}

func validationErrors(n int, column string) []domain.ImportError {
	errs := make([]domain.ImportError, n)
	for i := range errs {
		errs[i] = domain.ImportError{
			Row:     i + 2,
			Column:  column,
			Message: fmt.Sprintf("%s must not be negative", column),
			Type:    domain.ErrorTypeValidation,
		}
	}
	return errs
}

func TestAnalyzeErrorsContinuesAtExactThreshold(t *testing.T) {
	cfg := productConfig(t)

	report := AnalyzeErrors(validationErrors(10, "price"), cfg, 50, true)
	if report.ErrorRate != 0.20 {
		t.Fatalf("expected error rate 0.20, got %v", report.ErrorRate)
	}
	if !report.CanContinue {
		t.Fatalf("expected import to continue at exactly 20%% error rate")
	}

	report = AnalyzeErrors(validationErrors(11, "price"), cfg, 50, true)
	if report.CanContinue {
		t.Fatalf("expected import to stop above 20%% error rate, got rate %v", report.ErrorRate)
	}
}

func TestAnalyzeErrorsRequiresAllowPartial(t *testing.T) {
	cfg := productConfig(t)
	report := AnalyzeErrors(validationErrors(1, "price"), cfg, 100, false)
	if report.CanContinue {
		t.Fatalf("expected strict mode to block continuation with any error")
	}
}

func TestAnalyzeErrorsSystemErrorAlwaysBlocks(t *testing.T) {
	cfg := productConfig(t)
	errs := []domain.ImportError{{
		Row:     5,
		Message: "connection reset while writing batch",
		Type:    domain.ErrorTypeSystem,
	}}

	report := AnalyzeErrors(errs, cfg, 1000, true)
	if report.CanContinue {
		t.Fatalf("expected a system error to block continuation regardless of rate")
	}
	if report.BySeverity[domain.SeverityCritical] != 1 {
		t.Fatalf("expected system error to classify as critical, got %v", report.BySeverity)
	}
}

func TestAnalyzeErrorsCriticalPartition(t *testing.T) {
	cfg := productConfig(t)
	errs := []domain.ImportError{
		{Row: 2, Column: "price", Message: "price must not be negative", Type: domain.ErrorTypeValidation},
		{Row: 3, Column: "category", Message: "unexpected category value", Type: domain.ErrorTypeValidation},
	}

	report := AnalyzeErrors(errs, cfg, 50, true)
	if len(report.Critical) != 1 {
		t.Fatalf("expected one critical error (price is a critical column), got %d", len(report.Critical))
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(report.Warnings))
	}
	if report.Critical[0].Column != "price" {
		t.Fatalf("expected the price error to be critical, got %q", report.Critical[0].Column)
	}
	if report.Priority != "high" {
		t.Fatalf("expected high priority with critical errors, got %q", report.Priority)
	}
}

func TestAnalyzeErrorsFixEstimateScaling(t *testing.T) {
	cfg := productConfig(t)

	small := AnalyzeErrors(validationErrors(5, "category"), cfg, 1000, true)
	// Five medium validation errors at 2 manual minutes each, scaled up 20%.
	if small.EstimatedFixMinutes != 5*2*1.2 {
		t.Fatalf("expected small batch estimate 12, got %v", small.EstimatedFixMinutes)
	}

	large := AnalyzeErrors(validationErrors(120, "category"), cfg, 10000, true)
	if large.EstimatedFixMinutes != 120*2*0.8 {
		t.Fatalf("expected large batch estimate 192, got %v", large.EstimatedFixMinutes)
	}
}

func TestAnalyzeErrorsConsolidatesSuggestions(t *testing.T) {
	cfg := productConfig(t)
	report := AnalyzeErrors(validationErrors(4, "price"), cfg, 100, true)

	if len(report.Suggestions) == 0 {
		t.Fatalf("expected a consolidated suggestion for 4 repeated price errors")
	}
	for _, s := range report.Suggestions[1:] {
		if s == report.Suggestions[0] {
			t.Fatalf("expected a single consolidated suggestion per column, got duplicates: %v", report.Suggestions)
		}
	}
}

func TestAnalyzeErrorsEmptyInput(t *testing.T) {
	cfg := productConfig(t)
	report := AnalyzeErrors(nil, cfg, 100, true)
	if !report.CanContinue {
		t.Fatalf("expected clean file to continue")
	}
	if report.TotalErrors != 0 || report.ErrorRate != 0 || report.EstimatedFixMinutes != 0 {
		t.Fatalf("expected zeroed report, got %+v", report)
	}
	if report.Priority != "low" {
		t.Fatalf("expected low priority for clean file, got %q", report.Priority)
	}
}
