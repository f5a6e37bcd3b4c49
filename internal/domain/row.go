package domain

import (
	"regexp"
	"strings"
)

// Row is one parsed record from an uploaded file. Keys are normalized header
// names; Number is the 1-based row number in the original file so error
// messages point at the line the user actually sees.
type Row struct {
	Number int               `json:"number"`
	Values map[string]string `json:"values"`
}

// Get returns the trimmed value for a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Has reports whether the column carries a non-empty value.
func (r Row) Has(column string) bool {
	return r.Get(column) != ""
}

// WithValue returns a copy of the row with one column replaced.
func (r Row) WithValue(column, value string) Row {
	values := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	values[column] = value
	return Row{Number: r.Number, Values: values}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a value and collapses every non-alphanumeric run into a
// single underscore.
func Slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = slugPattern.ReplaceAllString(value, "_")
	return strings.Trim(value, "_")
}
