package entity

import "time"

// SourceFeed is the persisted configuration row for a single collector input.
type SourceFeed struct {
	ID              string
	DisplayName     string
	Kind            SourceKind
	URL             string
	Active          bool
	ReliabilityTier ReliabilityTier
	DefaultTopics   []Topic
	DefaultGeoTags  []GeoTag
	PollCadence     CycleKind
	Config          map[string]any

	LastFetchedAt     *time.Time
	LastError         string
	ConsecutiveErrors int

	// ReliabilityScore is derived: recomputed from recent crawl history, not
	// authoritative input. See internal/usecase/reliability.
	ReliabilityScore float64
}

// CrawlStatus is the terminal status recorded for a crawl-history row.
type CrawlStatus string

const (
	CrawlStatusProcessed CrawlStatus = "processed"
	CrawlStatusRejected  CrawlStatus = "rejected"
	CrawlStatusFlagged   CrawlStatus = "flagged"
	CrawlStatusError     CrawlStatus = "error"
)

// CrawlHistoryRecord is persisted once per article touched during a cycle,
// regardless of whether it was approved, flagged, or rejected.
//
// Invariant: (ContentFingerprint, SourceURL) is de-facto unique per source;
// dedup lookups key only on fingerprint.
type CrawlHistoryRecord struct {
	ID                string
	SourceFeedID      string
	SourceURL         string
	ContentFingerprint string
	PipelineRunID     string
	Status            CrawlStatus
	WasRelevant       bool
	WasDuplicate      bool
	RelevanceScore    *float64
	ClassificationData map[string]any
	FieldNoteID       string
	ModerationItemID  string
	RawData           map[string]any
	ErrorMessage      string
	FetchedAt         time.Time
}

// ModerationItemType names the kind of item queued for human review.
type ModerationItemType string

const (
	ModerationItemTip            ModerationItemType = "tip"
	ModerationItemBreakingAlert  ModerationItemType = "breaking_alert"
	ModerationItemHaystackFlagged ModerationItemType = "haystack_flagged"
)

// ModerationStatus is the review state of a moderation-queue row.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ModerationItem is a queued row representing an unverified tip, a flagged
// machine-processed article, or a breaking-news alert.
type ModerationItem struct {
	ID       string
	Type     ModerationItemType
	Content  string
	Status   ModerationStatus
	Metadata map[string]any
}

// FieldNoteStatus is the editorial workflow state of a field note.
type FieldNoteStatus string

// FieldNoteStatusRaw is the only status the pipeline itself ever writes;
// everything past that point is the downstream editorial workflow's concern.
const FieldNoteStatusRaw FieldNoteStatus = "raw"

// FieldNote is a structured pre-article record awaiting human editorial shaping.
type FieldNote struct {
	ID          string
	Status      FieldNoteStatus
	AuthorBotID string

	Who, What, When, Where, Why, How string
	SafetyFlags                      []string
	Quotes                           []Quote
	EvidenceRefs                     []EvidenceRef
	RawText                          string // capped at 5,000 chars
}

// PipelineRunKind distinguishes how a cycle was triggered.
type PipelineRunKind string

const (
	RunKindScheduled PipelineRunKind = "scheduled"
	RunKindManual    PipelineRunKind = "manual"
	RunKindBreaking  PipelineRunKind = "breaking"
)

// PipelineRunStatus is the terminal or in-flight state of a pipeline run row.
type PipelineRunStatus string

const (
	RunStatusRunning   PipelineRunStatus = "running"
	RunStatusCompleted PipelineRunStatus = "completed"
	RunStatusFailed    PipelineRunStatus = "failed"
)

// PipelineRunRecord is the persisted start-to-finish bookkeeping row for one
// cycle execution.
type PipelineRunRecord struct {
	ID          string
	Kind        PipelineRunKind
	CycleKind   CycleKind
	Status      PipelineRunStatus
	Stats       map[string]int64
	Sources     []string
	ErrorMsg    string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// PipelineState is the evolving record that threads through every stage of a
// single cycle. Stages that add to an accumulator do so via a concatenation
// reducer; order between parallel collectors is unspecified.
type PipelineState struct {
	RunID       string
	RunKind     PipelineRunKind
	CycleKind   CycleKind

	Raw       []RawArticle
	Classified []ClassifiedArticle
	Rejected   []ClassifiedArticle
	Enriched   []EnrichedArticle
	Approved   []EnrichedArticle
	Flagged    []EnrichedArticle

	FieldNoteIDs []string
	Stats        map[string]int64
	SourceNames  []string

	// currentSources is the working source list for the in-flight cycle; it
	// is not part of the persisted run record.
	currentSources []SourceFeed

	Errors []CollectError
}

// NewPipelineState starts a fresh state record for one cycle.
func NewPipelineState(runID string, runKind PipelineRunKind, cycleKind CycleKind) *PipelineState {
	return &PipelineState{
		RunID:     runID,
		RunKind:   runKind,
		CycleKind: cycleKind,
		Stats:     make(map[string]int64),
	}
}

// SetSources installs the working source list for this cycle.
func (p *PipelineState) SetSources(sources []SourceFeed) {
	p.currentSources = sources
	for _, s := range sources {
		p.SourceNames = append(p.SourceNames, s.DisplayName)
	}
}

// Sources returns the working source list for this cycle.
func (p *PipelineState) Sources() []SourceFeed {
	return p.currentSources
}
