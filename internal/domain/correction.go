package domain

// CorrectionKind tags how a field value was repaired.
type CorrectionKind string

const (
	CorrectionFormat        CorrectionKind = "format"
	CorrectionDefault       CorrectionKind = "default-value"
	CorrectionNormalization CorrectionKind = "normalization"
	CorrectionValidation    CorrectionKind = "validation"
)

// Correction is a single proposed field repair with its confidence (0-100).
// Corrections are applied automatically only when the confidence meets the
// entity type's configured minimum.
type Correction struct {
	Row        int            `json:"row"`
	Field      string         `json:"field"`
	Original   string         `json:"original"`
	Corrected  string         `json:"corrected"`
	Kind       CorrectionKind `json:"kind"`
	Confidence int            `json:"confidence"`
}

// ResolutionAction describes what the resolver decided for one error.
type ResolutionAction string

const (
	ResolutionCorrected         ResolutionAction = "corrected"
	ResolutionSuggested         ResolutionAction = "suggested"
	ResolutionIgnored           ResolutionAction = "ignored"
	ResolutionNeedsIntervention ResolutionAction = "needs-intervention"
)

// ResolvedError pairs an import error with the resolver's outcome for it.
type ResolvedError struct {
	Error       ImportError      `json:"error"`
	Value       string           `json:"value"`
	Action      ResolutionAction `json:"action"`
	Confidence  int              `json:"confidence"`
	Suggestions []string         `json:"suggestions,omitempty"`
}
