package fileparse

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Table is the parsed form of an uploaded file: normalized headers plus data
// rows that carry their original 1-based row number.
type Table struct {
	Headers    []string
	RawHeaders []string
	Rows       []domain.Row
}

// TotalRows returns the declared data row count.
func (t Table) TotalRows() int {
	return len(t.Rows)
}

// Parse reads a CSV or XLSX payload into a Table. The format is chosen by
// file extension.
func Parse(fileName string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{}, errors.New("file is empty")
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errors.New("excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(records)
}

// normalizeTable finds the first non-empty row, treats it as the header, and
// maps the remaining rows onto normalized column names. Blank rows are
// skipped but original row numbers are preserved.
func normalizeTable(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, errors.New("no rows found in file")
	}

	var headerRow []string
	headerIndex := -1
	for idx, row := range records {
		if rowEmpty(row) {
			continue
		}
		headerRow = row
		headerIndex = idx
		break
	}
	if headerRow == nil {
		return Table{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	rows := make([]domain.Row, 0, len(records)-headerIndex-1)
	for idx := headerIndex + 1; idx < len(records); idx++ {
		record := records[idx]
		if rowEmpty(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if col < len(record) {
				values[header] = strings.TrimSpace(record[col])
			} else {
				values[header] = ""
			}
		}
		rows = append(rows, domain.Row{
			Number: idx + 1, // 1-based, as shown in spreadsheet tools
			Values: values,
		})
	}

	return Table{
		Headers:    headers,
		RawHeaders: rawHeaders,
		Rows:       rows,
	}, nil
}

// sanitizeHeaders lowercases and underscores header labels and disambiguates
// duplicates the way the rest of the pipeline expects to address columns.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := domain.Slugify(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
