package fileparse

import (
	"errors"
	"testing"
)

func TestParseCSVNormalizesHeaders(t *testing.T) {
	data := "Product Name,Unit Price,Stock\nWidget,9.99,5\nGadget,12.50,3\n"

	table, err := Parse("products.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	want := []string{"product_name", "unit_price", "stock"}
	if len(table.Headers) != len(want) {
		t.Fatalf("expected %d headers, got %d", len(want), len(table.Headers))
	}
	for i, header := range want {
		if table.Headers[i] != header {
			t.Errorf("header %d: got %s, want %s", i, table.Headers[i], header)
		}
	}

	if table.TotalRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.TotalRows())
	}
	if table.Rows[0].Get("product_name") != "Widget" {
		t.Fatalf("unexpected first row: %+v", table.Rows[0])
	}
}

func TestParseCSVStripsBOMAndSkipsBlankRows(t *testing.T) {
	data := "\xEF\xBB\xBFname,price\n\n,\nWidget,9.99\n"

	table, err := Parse("products.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if table.Headers[0] != "name" {
		t.Fatalf("BOM not stripped from first header: %q", table.Headers[0])
	}
	if table.TotalRows() != 1 {
		t.Fatalf("expected blank rows to be skipped, got %d rows", table.TotalRows())
	}
	// Row 1 is the header, rows 2-3 are blank, so the data row is row 4.
	if table.Rows[0].Number != 4 {
		t.Fatalf("expected original row number 4, got %d", table.Rows[0].Number)
	}
}

func TestParseCSVDisambiguatesDuplicateHeaders(t *testing.T) {
	data := "name,name,price\na,b,1\n"

	table, err := Parse("file.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if table.Headers[0] != "name" || table.Headers[1] != "name_2" {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
}

func TestParseShortRowsPadToHeaderWidth(t *testing.T) {
	data := "name,price,stock\nWidget,9.99\n"

	table, err := Parse("file.csv", []byte(data))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if table.Rows[0].Get("stock") != "" {
		t.Fatalf("expected missing cell to read as empty, got %q", table.Rows[0].Get("stock"))
	}
}

func TestParseRejectsUnknownExtension(t *testing.T) {
	_, err := Parse("data.parquet", []byte("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseRejectsEmptyPayload(t *testing.T) {
	if _, err := Parse("data.csv", nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
