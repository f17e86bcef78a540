// Package verify implements the Verification Pipeline (C8): LLM-based
// claim extraction over a pipeline's primary output, keyword/number linking
// back to stage outputs, and an annotated report — spec §4.8. Keyword
// linking indexes stage outputs with bleve and scores matches by BM25
// relevance instead of naive substring containment.
package verify

// ClaimCategory classifies one extracted factual assertion.
type ClaimCategory string

const (
	CategoryMetric     ClaimCategory = "metric"
	CategoryEvent      ClaimCategory = "event"
	CategoryComparison ClaimCategory = "comparison"
	CategoryProjection ClaimCategory = "projection"
	CategoryGeneral    ClaimCategory = "general"
)

// ClaimStatus is the outcome of linking a claim to stage outputs.
type ClaimStatus string

const (
	StatusVerified   ClaimStatus = "verified"
	StatusUnverified ClaimStatus = "unverified"
	StatusDisputed   ClaimStatus = "disputed"
	StatusError      ClaimStatus = "error"
)

// SourceReference is one stage-output location supporting a claim.
type SourceReference struct {
	SourceID string // "stage:<name>"
	Label    string
	Stage    string
	Excerpt  string
}

// Claim is one factual assertion extracted from the primary output, per
// spec §3.
type Claim struct {
	ID         string
	Text       string
	Category   ClaimCategory
	Status     ClaimStatus
	Confidence float64
	Sources    []SourceReference

	// Metric-only fields.
	Value       float64
	Unit        string
	HasValue    bool
	SourceValue float64
	Matched     bool
}

// VerificationSummary aggregates the outcome of one verification run.
type VerificationSummary struct {
	Total             int
	Verified          int
	Unverified        int
	Disputed          int
	Errors            int
	OverallConfidence float64
}

// Report is C8's terminal output: the claims, their summary, and the
// primary output annotated with footnote markers.
type Report struct {
	Claims    []Claim
	Summary   VerificationSummary
	Annotated string
}

// extractedClaim is the shape the LLM extraction step is asked to emit.
type extractedClaim struct {
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string    `json:"unit,omitempty"`
}
