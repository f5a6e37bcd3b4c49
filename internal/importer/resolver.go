package importer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rpattn/stockflow/internal/domain"
)

// Confidence levels assigned by each correction strategy.
const (
	confidenceExact      = 100
	confidencePrice      = 95
	confidenceEmail      = 95
	confidenceDate       = 90
	confidenceDefault    = 90
	confidencePhone      = 85
	confidenceText       = 80
	confidenceDictionary = 75
	confidenceSynonym    = 50
)

// Resolver attempts to repair field values before they fail an import. Every
// repair carries a confidence score; only repairs at or above the entity
// type's minimum are applied automatically.
type Resolver struct {
	misspellings map[string]string
	synonyms     map[string][]string
}

// NewResolver builds a resolver with the maintained vocabulary tables.
func NewResolver() *Resolver {
	return &Resolver{
		misspellings: defaultMisspellings(),
		synonyms:     defaultSynonyms(),
	}
}

// Resolution is the outcome of resolving a set of errors.
type Resolution struct {
	Resolved    []domain.ResolvedError
	Corrections []domain.Correction
	Unresolved  []domain.ImportError
}

// Resolve walks the error list and attempts an automatic fix for each one.
// Corrections below the entity type's minimum confidence are reported as
// needing intervention and excluded from the applied set.
func (r *Resolver) Resolve(errs []domain.ImportError, cfg EntityConfig) Resolution {
	resolution := Resolution{
		Resolved:    []domain.ResolvedError{},
		Corrections: []domain.Correction{},
		Unresolved:  []domain.ImportError{},
	}

	for _, err := range errs {
		correction, ok := r.CorrectValue(err.Column, err.Value, cfg)
		if !ok {
			if suggestions := r.Suggest(err.Column, err.Value); len(suggestions) > 0 {
				resolution.Resolved = append(resolution.Resolved, domain.ResolvedError{
					Error:       err,
					Value:       err.Value,
					Action:      domain.ResolutionSuggested,
					Confidence:  confidenceSynonym,
					Suggestions: suggestions,
				})
				continue
			}
			resolution.Unresolved = append(resolution.Unresolved, err)
			continue
		}

		correction.Row = err.Row
		switch {
		case correction.Corrected == correction.Original:
			// The value is already in canonical form, so the failure is
			// semantic and no automatic repair applies.
			resolution.Resolved = append(resolution.Resolved, domain.ResolvedError{
				Error:      err,
				Value:      correction.Original,
				Action:     domain.ResolutionIgnored,
				Confidence: correction.Confidence,
			})
			resolution.Unresolved = append(resolution.Unresolved, err)
		case correction.Confidence >= cfg.MinConfidence:
			resolution.Corrections = append(resolution.Corrections, correction)
			resolution.Resolved = append(resolution.Resolved, domain.ResolvedError{
				Error:      err,
				Value:      correction.Corrected,
				Action:     domain.ResolutionCorrected,
				Confidence: correction.Confidence,
			})
		default:
			resolution.Resolved = append(resolution.Resolved, domain.ResolvedError{
				Error:      err,
				Value:      correction.Corrected,
				Action:     domain.ResolutionNeedsIntervention,
				Confidence: correction.Confidence,
			})
			resolution.Unresolved = append(resolution.Unresolved, err)
		}
	}

	return resolution
}

// CorrectValue tries each correction strategy for the column in order:
// column-driven format normalization, then default substitution, then
// dictionary spelling. Correcting an already-correct value returns the same
// value with confidence 100.
func (r *Resolver) CorrectValue(column, value string, cfg EntityConfig) (domain.Correction, bool) {
	if corrector := formatCorrectorFor(column); corrector != nil {
		corrected, confidence, ok := corrector(value)
		if ok {
			if corrected == value {
				confidence = confidenceExact
			}
			return domain.Correction{
				Field:      column,
				Original:   value,
				Corrected:  corrected,
				Kind:       domain.CorrectionFormat,
				Confidence: confidence,
			}, true
		}
	}

	if strings.TrimSpace(value) == "" {
		if fallback, ok := cfg.Defaults[column]; ok && fallback != "" {
			return domain.Correction{
				Field:      column,
				Original:   value,
				Corrected:  fallback,
				Kind:       domain.CorrectionDefault,
				Confidence: confidenceDefault,
			}, true
		}
	}

	if corrected, confidence, ok := r.correctSpelling(value); ok {
		if corrected == value {
			confidence = confidenceExact
		}
		return domain.Correction{
			Field:      column,
			Original:   value,
			Corrected:  corrected,
			Kind:       domain.CorrectionNormalization,
			Confidence: confidence,
		}, true
	}

	return domain.Correction{}, false
}

// Suggest proposes up to 5 known alternatives for fields backed by the
// synonym table. Suggestions are informational only and never auto-applied.
func (r *Resolver) Suggest(column, value string) []string {
	switch column {
	case "category", "status", "type", "kind":
	default:
		return nil
	}

	key := strings.ToLower(strings.TrimSpace(value))
	alternatives, ok := r.synonyms[key]
	if !ok {
		return nil
	}
	if len(alternatives) > 5 {
		alternatives = alternatives[:5]
	}
	return append([]string(nil), alternatives...)
}

// formatCorrector normalizes one raw value. ok is false when the value cannot
// be repaired by this strategy.
type formatCorrector func(value string) (corrected string, confidence int, ok bool)

// formatCorrectorFor dispatches on column name. A lookup of predicates keeps
// the table flat instead of building a corrector hierarchy.
func formatCorrectorFor(column string) formatCorrector {
	switch {
	case columnMatches(column, "price", "cost", "amount", "total"):
		return correctPrice
	case columnMatches(column, "date", "expiry", "expiration", "occurred"):
		return correctDate
	case columnMatches(column, "email", "mail"):
		return correctEmail
	case columnMatches(column, "phone", "tel", "mobile"):
		return correctPhone
	case columnMatches(column, "name", "description", "reason", "address"):
		return correctText
	default:
		return nil
	}
}

func columnMatches(column string, fragments ...string) bool {
	column = strings.ToLower(column)
	for _, fragment := range fragments {
		if strings.Contains(column, fragment) {
			return true
		}
	}
	return false
}

// correctPrice strips currency symbols and grouping separators and normalizes
// the decimal separator to a dot.
func correctPrice(value string) (string, int, bool) {
	cleaned := strings.TrimSpace(value)
	for _, symbol := range []string{"$", "€", "£", "USD", "EUR", " "} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}

	// "1.234,56" and "1,234.56" both mean 1234.56.
	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0:
		if strings.Count(cleaned, ",") == 1 && len(cleaned)-lastComma-1 != 3 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	if !validDecimal(cleaned) {
		return "", 0, false
	}
	return cleaned, confidencePrice, true
}

func validDecimal(value string) bool {
	if value == "" {
		return false
	}
	dots := 0
	for idx, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' && idx == 0:
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return value != "-" && value != "."
}

var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
}

// correctDate accepts DD/MM/YYYY, DD-MM-YYYY, and YYYY-MM-DD and normalizes
// to ISO dates. Unparsable values are rejected rather than guessed.
func correctDate(value string) (string, int, bool) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format("2006-01-02"), confidenceDate, true
		}
	}
	return "", 0, false
}

func correctEmail(value string) (string, int, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	at := strings.Index(cleaned, "@")
	if at <= 0 || at == len(cleaned)-1 {
		return "", 0, false
	}
	if !strings.Contains(cleaned[at+1:], ".") {
		return "", 0, false
	}
	return cleaned, confidenceEmail, true
}

// correctPhone keeps digits only and requires a plausible length (7-15).
func correctPhone(value string) (string, int, bool) {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return "", 0, false
	}
	return cleaned, confidencePhone, true
}

// correctText collapses repeated whitespace and title-cases each word.
func correctText(value string) (string, int, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", 0, false
	}
	for idx, word := range fields {
		fields[idx] = titleCase(word)
	}
	return strings.Join(fields, " "), confidenceText, true
}

func titleCase(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// correctSpelling resolves single words against the misspelling table;
// multi-word text is corrected word by word and the aggregate confidence is
// the mean of the per-word confidences.
func (r *Resolver) correctSpelling(value string) (string, int, bool) {
	words := strings.Fields(strings.TrimSpace(value))
	if len(words) == 0 {
		return "", 0, false
	}

	matched := false
	total := 0
	corrected := make([]string, len(words))
	for idx, word := range words {
		lower := strings.ToLower(word)
		if fixed, ok := r.misspellings[lower]; ok {
			corrected[idx] = fixed
			total += confidenceDictionary
			matched = true
			continue
		}
		corrected[idx] = word
		total += confidenceExact
	}
	if !matched {
		return "", 0, false
	}
	return strings.Join(corrected, " "), total / len(words), true
}

// defaultMisspellings covers common accent drops, typos, and abbreviations
// seen in real uploads.
func defaultMisspellings() map[string]string {
	return map[string]string{
		"electroncis": "electronics",
		"electronis":  "electronics",
		"grosery":     "grocery",
		"grocey":      "grocery",
		"beberages":   "beverages",
		"bevrages":    "beverages",
		"cleening":    "cleaning",
		"stationary":  "stationery",
		"perfums":     "perfumes",
		"acsesories":  "accessories",
		"accesories":  "accessories",
		"uds":         "units",
		"und":         "units",
		"kgs":         "kg",
		"lts":         "l",
	}
}

// defaultSynonyms powers informational category/status suggestions.
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"drinks":     {"beverages", "soft drinks", "juices"},
		"sodas":      {"beverages", "soft drinks"},
		"food":       {"grocery", "fresh food", "frozen food"},
		"tech":       {"electronics", "accessories"},
		"gadgets":    {"electronics", "accessories"},
		"toiletries": {"personal care", "cleaning"},
		"entry":      {"in"},
		"entrada":    {"in"},
		"salida":     {"out"},
		"exit":       {"out"},
		"ajuste":     {"adjustment"},
		"adjust":     {"adjustment"},
	}
}

// FixMovementKind maps a synonym onto a canonical movement kind when the
// dictionary knows exactly one target.
func (r *Resolver) FixMovementKind(value string) (domain.MovementKind, bool) {
	key := strings.ToLower(strings.TrimSpace(value))
	if domain.ValidMovementKind(key) {
		return domain.MovementKind(key), true
	}
	if alternatives, ok := r.synonyms[key]; ok && len(alternatives) == 1 {
		if domain.ValidMovementKind(alternatives[0]) {
			return domain.MovementKind(alternatives[0]), true
		}
	}
	return "", false
}

// describeCorrection renders a human-readable audit line for job logs.
func describeCorrection(c domain.Correction) string {
	return fmt.Sprintf("row %d %s: %q -> %q (%s, confidence %d)", c.Row, c.Field, c.Original, c.Corrected, c.Kind, c.Confidence)
}
