package importer

import (
	"testing"

	"github.com/rpattn/stockflow/internal/domain"
)

func TestCorrectPriceFormats(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"$1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"€ 99,90", "99.90"},
		{"  15.50 ", "15.50"},
		{"EUR 2.500,00", "2500.00"},
		{"-3.25", "-3.25"},
	}
	for _, tc := range cases {
		got, confidence, ok := correctPrice(tc.input)
		if !ok {
			t.Fatalf("correctPrice(%q) failed", tc.input)
		}
		if got != tc.want {
			t.Fatalf("correctPrice(%q) = %q, want %q", tc.input, got, tc.want)
		}
		if confidence != confidencePrice {
			t.Fatalf("correctPrice(%q) confidence = %d, want %d", tc.input, confidence, confidencePrice)
		}
	}

	for _, bad := range []string{"free", "1.2.3", "", "-"} {
		if _, _, ok := correctPrice(bad); ok {
			t.Fatalf("correctPrice(%q) should fail", bad)
		}
	}
}

func TestCorrectDateNormalizesToISO(t *testing.T) {
	cases := map[string]string{
		"15/03/2024": "2024-03-15",
		"01-12-2023": "2023-12-01",
		"2024-03-15": "2024-03-15",
	}
	for input, want := range cases {
		got, confidence, ok := correctDate(input)
		if !ok || got != want {
			t.Fatalf("correctDate(%q) = %q, %v, want %q", input, got, ok, want)
		}
		if confidence != confidenceDate {
			t.Fatalf("correctDate(%q) confidence = %d, want %d", input, confidence, confidenceDate)
		}
	}
	if _, _, ok := correctDate("tomorrow"); ok {
		t.Fatalf("correctDate should reject unparsable values instead of guessing")
	}
}

func TestCorrectEmailAndPhone(t *testing.T) {
	email, confidence, ok := correctEmail("  Maria.Lopez@Example.COM ")
	if !ok || email != "maria.lopez@example.com" {
		t.Fatalf("correctEmail = %q, %v", email, ok)
	}
	if confidence != confidenceEmail {
		t.Fatalf("email confidence = %d, want %d", confidence, confidenceEmail)
	}
	if _, _, ok := correctEmail("not-an-email"); ok {
		t.Fatalf("correctEmail should reject values without @")
	}

	phone, confidence, ok := correctPhone("+34 (912) 345-678")
	if !ok || phone != "34912345678" {
		t.Fatalf("correctPhone = %q, %v", phone, ok)
	}
	if confidence != confidencePhone {
		t.Fatalf("phone confidence = %d, want %d", confidence, confidencePhone)
	}
	if _, _, ok := correctPhone("12345"); ok {
		t.Fatalf("correctPhone should reject too-short numbers")
	}
}

func TestCorrectSpellingMeanConfidence(t *testing.T) {
	r := NewResolver()

	got, confidence, ok := r.correctSpelling("electroncis")
	if !ok || got != "electronics" {
		t.Fatalf("correctSpelling = %q, %v", got, ok)
	}
	if confidence != confidenceDictionary {
		t.Fatalf("single word confidence = %d, want %d", confidence, confidenceDictionary)
	}

	// One corrected word (75) and one untouched word (100) average to 87.
	got, confidence, ok = r.correctSpelling("grosery store")
	if !ok || got != "grocery store" {
		t.Fatalf("correctSpelling multi-word = %q, %v", got, ok)
	}
	if confidence != (confidenceDictionary+confidenceExact)/2 {
		t.Fatalf("multi-word confidence = %d, want %d", confidence, (confidenceDictionary+confidenceExact)/2)
	}

	if _, _, ok := r.correctSpelling("quartz"); ok {
		t.Fatalf("correctSpelling should fail when no word matches the dictionary")
	}
}

func TestCorrectValueIdempotentValuesScoreFull(t *testing.T) {
	r := NewResolver()
	cfg := EntityConfig{Type: domain.EntityTypeProduct, MinConfidence: 80}

	correction, ok := r.CorrectValue("price", "15.50", cfg)
	if !ok {
		t.Fatalf("CorrectValue for clean price failed")
	}
	if correction.Confidence != confidenceExact {
		t.Fatalf("already-correct value confidence = %d, want %d", correction.Confidence, confidenceExact)
	}
}

func TestCorrectValueEmptyUsesDefault(t *testing.T) {
	r := NewResolver()
	cfg := EntityConfig{
		Type:          domain.EntityTypeProduct,
		MinConfidence: 80,
		Defaults:      map[string]string{"category": "general"},
	}

	correction, ok := r.CorrectValue("category", "", cfg)
	if !ok {
		t.Fatalf("CorrectValue for empty defaulted column failed")
	}
	if correction.Corrected != "general" || correction.Kind != domain.CorrectionDefault {
		t.Fatalf("expected default substitution, got %+v", correction)
	}
	if correction.Confidence != confidenceDefault {
		t.Fatalf("default confidence = %d, want %d", correction.Confidence, confidenceDefault)
	}
}

func TestResolveHonorsMinimumConfidence(t *testing.T) {
	r := NewResolver()
	errs := []domain.ImportError{{
		Row:     4,
		Column:  "category",
		Value:   "electroncis",
		Message: "unexpected category value",
		Type:    domain.ErrorTypeValidation,
	}}

	// Dictionary fixes score 75: below the product minimum of 80.
	strict := EntityConfig{Type: domain.EntityTypeProduct, MinConfidence: 80}
	resolution := r.Resolve(errs, strict)
	if len(resolution.Corrections) != 0 {
		t.Fatalf("expected no applied corrections below minimum confidence, got %d", len(resolution.Corrections))
	}
	if len(resolution.Unresolved) != 1 {
		t.Fatalf("expected the error to stay unresolved, got %d", len(resolution.Unresolved))
	}
	if resolution.Resolved[0].Action != domain.ResolutionNeedsIntervention {
		t.Fatalf("expected needs-intervention, got %s", resolution.Resolved[0].Action)
	}

	// The supplier minimum of 75 accepts the same fix.
	lenient := EntityConfig{Type: domain.EntityTypeSupplier, MinConfidence: 75}
	resolution = r.Resolve(errs, lenient)
	if len(resolution.Corrections) != 1 {
		t.Fatalf("expected one applied correction at minimum confidence, got %d", len(resolution.Corrections))
	}
	if resolution.Corrections[0].Corrected != "electronics" {
		t.Fatalf("expected dictionary fix, got %q", resolution.Corrections[0].Corrected)
	}
	if resolution.Corrections[0].Row != 4 {
		t.Fatalf("correction must carry the originating row, got %d", resolution.Corrections[0].Row)
	}
}

func TestResolveSynonymsAreSuggestionsOnly(t *testing.T) {
	r := NewResolver()
	errs := []domain.ImportError{{
		Row:     7,
		Column:  "category",
		Value:   "drinks",
		Message: "unexpected category value",
		Type:    domain.ErrorTypeValidation,
	}}

	cfg := EntityConfig{Type: domain.EntityTypeProduct, MinConfidence: 80}
	resolution := r.Resolve(errs, cfg)

	if len(resolution.Corrections) != 0 {
		t.Fatalf("synonym matches must never be auto-applied, got %d corrections", len(resolution.Corrections))
	}
	if len(resolution.Resolved) != 1 {
		t.Fatalf("expected one resolved entry, got %d", len(resolution.Resolved))
	}
	entry := resolution.Resolved[0]
	if entry.Action != domain.ResolutionSuggested {
		t.Fatalf("expected suggested action, got %s", entry.Action)
	}
	if entry.Confidence != confidenceSynonym {
		t.Fatalf("synonym confidence = %d, want %d", entry.Confidence, confidenceSynonym)
	}
	if len(entry.Suggestions) == 0 {
		t.Fatalf("expected alternatives for %q", errs[0].Value)
	}
}

func TestFixMovementKind(t *testing.T) {
	r := NewResolver()
	cases := map[string]domain.MovementKind{
		"IN":      domain.MovementIn,
		"entrada": domain.MovementIn,
		"salida":  domain.MovementOut,
		"ajuste":  domain.MovementAdjustment,
	}
	for input, want := range cases {
		got, ok := r.FixMovementKind(input)
		if !ok || got != want {
			t.Fatalf("FixMovementKind(%q) = %q, %v, want %q", input, got, ok, want)
		}
	}
	if _, ok := r.FixMovementKind("sideways"); ok {
		t.Fatalf("FixMovementKind should reject unknown values")
	}
}
