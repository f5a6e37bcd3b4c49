package domain

import "fmt"

// ErrorType is the coarse classification of an import error.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDuplicate  ErrorType = "duplicate"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeSystem     ErrorType = "system"
	ErrorTypeFormat     ErrorType = "format"
)

// Severity grades how badly an error blocks an import.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ImportError describes one failed cell or row. Immutable once produced.
type ImportError struct {
	Row     int       `json:"row"`
	Column  string    `json:"column"`
	Value   string    `json:"value"`
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

func (e ImportError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ErrorReport aggregates a validation pass into counts, a continuation
// verdict, and remediation hints.
type ErrorReport struct {
	TotalRecords        int               `json:"total_records"`
	TotalErrors         int               `json:"total_errors"`
	ByType              map[ErrorType]int `json:"by_type"`
	ByColumn            map[string]int    `json:"by_column"`
	BySeverity          map[Severity]int  `json:"by_severity"`
	Critical            []ImportError     `json:"critical"`
	Warnings            []ImportError     `json:"warnings"`
	Suggestions         []string          `json:"suggestions"`
	CanContinue         bool              `json:"can_continue"`
	ErrorRate           float64           `json:"error_rate"`
	EstimatedFixMinutes float64           `json:"estimated_fix_minutes"`
	Priority            string            `json:"priority"`
}
