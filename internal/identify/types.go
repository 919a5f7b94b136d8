// Package identify implements the staged identification & valuation agent:
// a fixed, conditionally-skipped pipeline that fuses vision, metadata-lookup,
// web-search, and LLM-reconciliation evidence into a confidence-scored
// record.
package identify

import "time"

// Source identifies which collaborator contributed a piece of Evidence.
// These tag strings are a wire-compatibility point: downstream persistence
// indexes on them verbatim.
type Source string

const (
	SourceVision      Source = "vision"
	SourceDiscogs     Source = "discogs"
	SourceMusicBrainz Source = "musicbrainz"
	SourceWebSearch   Source = "websearch"
	SourceImage       Source = "image"
	SourceUserInput   Source = "user_input"
)

// Evidence is one datum contributed by a source. Evidence is append-only
// within a run: once appended to a RunState's chain it is never mutated.
type Evidence struct {
	Source      Source                 `json:"source"`
	Confidence  float64                `json:"confidence"`
	Data        map[string]interface{} `json:"data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// MetadataProposal is a single source's opinion of a record's fields, with
// its own self-reported confidence. Any field may be null (zero value /
// absent); callers distinguish "absent" from "zero" via the pointer fields.
type MetadataProposal struct {
	Artist         *string   `json:"artist,omitempty"`
	Title          *string   `json:"title,omitempty"`
	Year           *int      `json:"year,omitempty"`
	Label          *string   `json:"label,omitempty"`
	CatalogNumber  *string   `json:"catalog_number,omitempty"`
	Barcode        *string   `json:"barcode,omitempty"`
	Genres         []string  `json:"genres,omitempty"`
	Confidence     float64   `json:"confidence"`
	Condition      *Condition `json:"condition,omitempty"`
	ConditionNotes string    `json:"condition_notes,omitempty"`

	// ImageIndex is the 0-based position of the image this proposal came
	// from within the run's input sequence. Not part of the wire schema the
	// vision model returns; set by the extractor.
	ImageIndex int `json:"-"`
}

// AggregatedMetadata is the merger of multiple MetadataProposals, with
// deterministic tie-breaking and pessimistic condition handling (§4.4).
type AggregatedMetadata struct {
	Artist           *string  `json:"artist,omitempty"`
	Title            *string  `json:"title,omitempty"`
	Year             *int     `json:"year,omitempty"`
	Label            *string  `json:"label,omitempty"`
	CatalogNumber    *string  `json:"catalog_number,omitempty"`
	Barcode          *string  `json:"barcode,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	Confidence       float64  `json:"confidence"`
	Condition        *Condition `json:"condition,omitempty"`
	ConditionNotes   string   `json:"condition_notes,omitempty"`

	ImageIndex        int                `json:"image_index"`
	AllBarcodes       []string           `json:"all_barcodes"`
	AllCatalogNumbers []string           `json:"all_catalog_numbers"`
	ProcessedImages   int                `json:"processed_images"`
	ImageResults      []MetadataProposal `json:"image_results"`
}

// ImageBlob is one input image supplied to identify/reanalyze.
type ImageBlob struct {
	Bytes       []byte
	ContentType string // one of image/jpeg, image/png, image/webp, image/gif
	Filename    string
}

// Status is the terminal classification of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusAnalyzed   Status = "analyzed"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// ReviewReason explains why a run landed in needs_review.
type ReviewReason string

const (
	ReviewReasonConfidence     ReviewReason = "confidence"
	ReviewReasonManualEntry    ReviewReason = "manual_entry_required"
	ReviewReasonLowConfidence  ReviewReason = "low_confidence_fallback"
)

// Valuation is C7's output.
type Valuation struct {
	EstimatedValueEUR *float64 `json:"estimated_value_eur,omitempty"`
	PriceRangeMinEUR  *float64 `json:"price_range_min,omitempty"`
	PriceRangeMaxEUR  *float64 `json:"price_range_max,omitempty"`
	MarketCondition   string   `json:"market_condition,omitempty"` // strong|stable|weak
	Factors           []string `json:"factors,omitempty"`
	Explanation       string   `json:"explanation,omitempty"`
}

// RunState is the orchestrator's mutable run object. Stages receive a read
// view and return a patch; ownership of the RunState itself is exclusive to
// the orchestrator (§4.1).
type RunState struct {
	ID                string
	Images            []ImageBlob
	ValidationPassed  bool
	VisionExtraction  []MetadataProposal
	AggregatedVision  *AggregatedMetadata
	MetadataLookup    []Evidence
	WebSearchResults  *WebSearchResult
	Valuation         *Valuation
	EvidenceChain     []Evidence
	Confidence        float64
	AutoCommit        bool
	NeedsReview       bool
	ReviewReason      ReviewReason
	Error             string
	StartedAt         time.Time
	Deadline          time.Time
}

// Status derives the terminal status of a frozen RunState.
func (rs *RunState) Status() Status {
	if rs.Error != "" {
		return StatusFailed
	}
	if rs.AutoCommit {
		return StatusComplete
	}
	if rs.NeedsReview {
		return StatusAnalyzed
	}
	return StatusProcessing
}

// RunResult is the orchestrator's return value for identify/reanalyze.
type RunResult struct {
	State    RunState
	Metadata *AggregatedMetadata
	Status   Status
}

// WebSearchResult carries C6's raw output plus scraped excerpts, all folded
// into the single `websearch` evidence entry's Data payload too (§4.6).
type WebSearchResult struct {
	Query    string
	Results  []SearchHit
	Excerpts map[string]string // url -> scraped text excerpt
	Provider string            // "tavily" or "duckduckgo"
}

// SearchHit is one result from a SearchClient.
type SearchHit struct {
	URL     string
	Title   string
	Snippet string
}

// StoredRecord is the external collaborator's persisted form, referenced
// here only by the enhancer's contract (§3). The core never writes to
// storage.
type StoredRecord struct {
	Metadata          AggregatedMetadata
	SpotifyURL        *string
	EstimatedValueEUR *float64
	Condition         *Condition
	UserTag           *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Status            Status
	Confidence        float64
	Images            []ImageBlob
}

// ChangeLogEntry records one field-level decision made by the enhancer.
type ChangeLogEntry struct {
	Field      string  `json:"field"`
	Action     string  `json:"action"` // added|updated|kept|conflict|boosted|enhancement_skipped
	Old        string  `json:"old,omitempty"`
	New        string  `json:"new,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// GateDecision is the confidence gate's pure output (§4.8, exposed for
// audit/testing per §6).
type GateDecision struct {
	Confidence   float64
	AutoCommit   bool
	NeedsReview  bool
	ReviewReason ReviewReason
}
