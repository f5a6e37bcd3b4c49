package importer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rpattn/stockflow/internal/domain"
)

// maxErrorRate is the highest tolerable ratio of failing rows to total rows
// for an import to continue. The rate is always errorCount/totalRecords.
const maxErrorRate = 0.20

type severityRule struct {
	pattern     *regexp.Regexp
	severity    domain.Severity
	autoFixable bool
}

// severityRules maps known error message shapes onto severities. First match
// wins; unmatched errors fall back to a severity keyed by their type tag.
var severityRules = []severityRule{
	{regexp.MustCompile(`(?i)required`), domain.SeverityCritical, false},
	{regexp.MustCompile(`(?i)email.*(invalid|malformed)|invalid.*email`), domain.SeverityMedium, true},
	{regexp.MustCompile(`(?i)price.*(invalid|negative)|invalid.*price`), domain.SeverityHigh, true},
	{regexp.MustCompile(`(?i)duplicate|already exists`), domain.SeverityMedium, false},
	{regexp.MustCompile(`(?i)not found|does not exist|unknown reference`), domain.SeverityHigh, false},
	{regexp.MustCompile(`(?i)date.*(invalid|unparsable)|invalid.*date`), domain.SeverityMedium, true},
	{regexp.MustCompile(`(?i)phone.*invalid|invalid.*phone`), domain.SeverityLow, true},
	{regexp.MustCompile(`(?i)quantity.*(invalid|zero)|invalid.*quantity`), domain.SeverityHigh, true},
	{regexp.MustCompile(`(?i)timeout|connection|unavailable`), domain.SeverityCritical, false},
}

var typeFallbackSeverity = map[domain.ErrorType]domain.Severity{
	domain.ErrorTypeFormat:     domain.SeverityLow,
	domain.ErrorTypeValidation: domain.SeverityMedium,
	domain.ErrorTypeDuplicate:  domain.SeverityMedium,
	domain.ErrorTypeReference:  domain.SeverityHigh,
	domain.ErrorTypeSystem:     domain.SeverityCritical,
}

// classify returns the severity for an error and whether the smart resolver
// can plausibly fix it automatically.
func classify(err domain.ImportError) (domain.Severity, bool) {
	for _, rule := range severityRules {
		if rule.pattern.MatchString(err.Message) {
			return rule.severity, rule.autoFixable
		}
	}
	if severity, ok := typeFallbackSeverity[err.Type]; ok {
		autoFixable := err.Type == domain.ErrorTypeFormat
		return severity, autoFixable
	}
	return domain.SeverityMedium, false
}

// isCritical decides whether a single error blocks the import outright.
func isCritical(err domain.ImportError, severity domain.Severity, cfg EntityConfig) bool {
	if err.Type == domain.ErrorTypeSystem || err.Type == domain.ErrorTypeReference {
		return true
	}
	if cfg.IsCriticalColumn(err.Column) {
		return true
	}
	message := strings.ToLower(err.Message)
	if strings.Contains(message, "required") || strings.Contains(message, "invalid") {
		return true
	}
	return severity == domain.SeverityCritical
}

// fixMinutes is the estimated manual/automatic repair cost per error, keyed
// by severity.
var fixMinutes = map[domain.Severity]struct{ manual, auto float64 }{
	domain.SeverityLow:      {manual: 1, auto: 0.25},
	domain.SeverityMedium:   {manual: 2, auto: 0.5},
	domain.SeverityHigh:     {manual: 5, auto: 1},
	domain.SeverityCritical: {manual: 10, auto: 2.5},
}

// AnalyzeErrors turns a flat list of validation failures into an aggregated
// report and a continuation verdict. The import may proceed with failing rows
// only when partial import is allowed, no error is critical, and the error
// rate stays at or below 20% of total records.
func AnalyzeErrors(errs []domain.ImportError, cfg EntityConfig, totalRecords int, allowPartial bool) domain.ErrorReport {
	report := domain.ErrorReport{
		TotalRecords: totalRecords,
		TotalErrors:  len(errs),
		ByType:       map[domain.ErrorType]int{},
		ByColumn:     map[string]int{},
		BySeverity:   map[domain.Severity]int{},
		Critical:     []domain.ImportError{},
		Warnings:     []domain.ImportError{},
		Suggestions:  []string{},
	}

	var estimate float64
	for _, err := range errs {
		severity, autoFixable := classify(err)
		report.ByType[err.Type]++
		report.BySeverity[severity]++
		if err.Column != "" {
			report.ByColumn[err.Column]++
		}

		if isCritical(err, severity, cfg) {
			report.Critical = append(report.Critical, err)
		} else {
			report.Warnings = append(report.Warnings, err)
		}

		cost := fixMinutes[severity]
		if autoFixable {
			estimate += cost.auto
		} else {
			estimate += cost.manual
		}
	}

	// Bulk fixes amortize; tiny batches carry per-error overhead.
	switch {
	case len(errs) > 100:
		estimate *= 0.8
	case len(errs) > 0 && len(errs) < 10:
		estimate *= 1.2
	}
	report.EstimatedFixMinutes = estimate

	if totalRecords > 0 {
		report.ErrorRate = float64(len(errs)) / float64(totalRecords)
	}
	// Row-scoped errors only fail their own rows; what blocks the whole job
	// is infrastructure failure. The critical/warning partition above stays
	// purely informational for that reason: a file where a few rows carry
	// critical-column errors (say, negative prices) must still import its
	// valid rows under allowPartial. Do not tighten this to "zero critical
	// errors"; that would turn every bad cell in a critical column into a
	// full-file rejection.
	report.CanContinue = allowPartial &&
		report.ByType[domain.ErrorTypeSystem] == 0 &&
		report.ErrorRate <= maxErrorRate

	report.Suggestions = buildSuggestions(report, errs)
	report.Priority = reportPriority(report)
	return report
}

// buildSuggestions produces one consolidated hint per recurring column/type
// pair plus general heuristics for large error volumes.
func buildSuggestions(report domain.ErrorReport, errs []domain.ImportError) []string {
	type group struct {
		column string
		kind   domain.ErrorType
	}
	counts := map[group]int{}
	for _, err := range errs {
		if err.Column == "" {
			continue
		}
		counts[group{column: err.Column, kind: err.Type}]++
	}

	groups := make([]group, 0, len(counts))
	for g, n := range counts {
		if n > 2 {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if counts[groups[i]] != counts[groups[j]] {
			return counts[groups[i]] > counts[groups[j]]
		}
		return groups[i].column < groups[j].column
	})

	var suggestions []string
	for _, g := range groups {
		suggestions = append(suggestions, fmt.Sprintf(
			"column %q has %d %s errors; review its values or the column mapping before re-importing",
			g.column, counts[g], g.kind,
		))
	}

	if report.TotalErrors > 50 {
		suggestions = append(suggestions, "large number of errors detected; consider splitting the file and importing in smaller batches")
	}
	if report.BySeverity[domain.SeverityCritical] > 0 {
		suggestions = append(suggestions, "critical errors must be fixed in the source file before any records can be imported")
	}
	return suggestions
}

func reportPriority(report domain.ErrorReport) string {
	switch {
	case len(report.Critical) > 0:
		return "high"
	case report.TotalErrors > 10:
		return "medium"
	default:
		return "low"
	}
}
