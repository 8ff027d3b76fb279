// Package entity defines the core domain entities and validation logic for the
// news-gathering pipeline: the per-stage article records, the persisted source
// and crawl-history rows, and the pipeline's own run-state record.
package entity

import "time"

// RawArticle is produced by a collector before any dedup/classification work.
//
// Invariants: Title is non-empty; Body is non-empty (Title substitutes when a
// collector has no body text); Language is one of the known codes.
type RawArticle struct {
	SourceID        string
	SourceKind      SourceKind
	SourceName      string
	ReliabilityTier ReliabilityTier

	URL         string
	Title       string
	Body        string
	PublishedAt *time.Time
	Author      string
	Language    Language
	FetchedAt   time.Time

	// Metadata is free-form, source-kind-typed data. It must carry the
	// reliability tier when the collector knows one (social collectors always
	// force yellow_press here regardless of source config).
	Metadata map[string]any
}

// CollectError is a per-source collector failure. It never aborts sibling
// fetches; the pipeline carries it as a first-class value alongside the
// articles a collector did manage to produce.
type CollectError struct {
	SourceID   string
	SourceName string
	SourceKind SourceKind
	Message    string
	At         time.Time
}

// Quote is a single attributed statement extracted during enrichment.
type Quote struct {
	Speaker     string
	Text        string
	Translation string
	Context     string
}

// EvidenceRef is a supporting reference extracted or synthesized during
// enrichment. The originating article's own URL is always appended as the
// last evidence reference by the field-note creator.
type EvidenceRef struct {
	Kind        string
	URL         string
	Description string
}

// RiskFlag is an editorial risk signal attached during enrichment.
type RiskFlag struct {
	Kind        RiskFlagKind
	Description string
	Severity    Severity
}

// ClassifiedArticle wraps a RawArticle with the dedup/classify stage's output.
type ClassifiedArticle struct {
	Raw RawArticle

	Fingerprint     string // hex, 64-bit SimHash
	RelevanceScore  float64
	Topics          []Topic
	GeoTags         []GeoTag
	Priority        Priority
	IsDuplicate     bool
	DuplicateOfID   string
	Reasoning       string
}

// EnrichedArticle wraps a ClassifiedArticle with 5W1H extraction.
type EnrichedArticle struct {
	Classified ClassifiedArticle

	Who   string
	What  string // required; falls back to title if the LLM omits it
	When  string
	Where string
	Why   string
	How   string

	Quotes       []Quote
	EvidenceRefs []EvidenceRef
	RiskFlags    []RiskFlag
	FactCheck    []string
	Confidence   int // 0-100

	// SourceLog records enrichment-stage errors/notes for the source-attribution trail.
	SourceLog []string
}

// EffectiveMinConfidence returns the quality-gate minimum confidence for this
// article, applying the source's tier override when one is set.
func (e *EnrichedArticle) EffectiveMinConfidence(globalMin int) int {
	policy := PolicyFor(e.Classified.Raw.ReliabilityTier)
	if policy.MinConfidenceOverride > 0 {
		return policy.MinConfidenceOverride
	}
	return globalMin
}

// HasHighRiskFlag reports whether any of the article's risk flags are in the
// quality gate's forced-moderation set.
func (e *EnrichedArticle) HasHighRiskFlag() bool {
	for _, f := range e.RiskFlags {
		if HighRiskFlags[f.Kind] {
			return true
		}
	}
	return false
}
