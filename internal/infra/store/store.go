// Package store is the client for the external relational store: source
// feeds, crawl history, pipeline runs, the moderation queue, and field
// notes. The store itself is out of scope (spec.md §1); this package only
// speaks its PostgREST-style HTTP contract (spec.md §6).
package store

import (
	"context"
	"errors"

	"catchup-feed/internal/domain/entity"
)

// ErrMissingColumn is returned by UpdateSourceReliability when the store
// reports the reliability_score column doesn't exist on this deployment.
// Callers must tolerate it by logging and continuing (spec.md §4.8).
var ErrMissingColumn = errors.New("store: column missing")

// SourceStore is the source_feeds table contract.
type SourceStore interface {
	// ListActive returns active sources of kind, ordered by last_fetched_at
	// ascending with nulls first (least-recently-fetched first).
	ListActive(ctx context.Context, kind entity.SourceKind) ([]entity.SourceFeed, error)
	// MarkFetched records a successful fetch for a source, once per source
	// per cycle (spec.md §9 — not once per article).
	MarkFetched(ctx context.Context, sourceID string) error
	// MarkError records a fetch failure for a source.
	MarkError(ctx context.Context, sourceID, message string) error
	// UpdateReliabilityScore persists a recomputed reliability score. A
	// missing column is reported as ErrMissingColumn; callers log and
	// continue rather than fail the cycle.
	UpdateReliabilityScore(ctx context.Context, sourceID string, score float64) error
}

// CrawlHistoryStore is the crawl_history table contract.
type CrawlHistoryStore interface {
	// InsertCrawlRecord persists one crawl-history row.
	InsertCrawlRecord(ctx context.Context, rec entity.CrawlHistoryRecord) error
	// FindByFingerprint returns the canonical crawl-history row with an
	// exact fingerprint match, if any (Phase A local dedup).
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.CrawlHistoryRecord, error)
	// RecentRelevant returns up to limit of the most recent relevant,
	// non-duplicate crawl-history rows, most recent first.
	RecentRelevant(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error)
	// RecentRelevantWindow returns up to limit of the most recent relevant
	// crawl-history rows (duplicates included) for adaptive-threshold and
	// reliability-score analytics.
	RecentRelevantWindow(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error)
}

// PipelineRunStore is the pipeline_runs table contract.
type PipelineRunStore interface {
	// InsertRunning creates a new run row in the "running" state.
	InsertRunning(ctx context.Context, run entity.PipelineRunRecord) error
	// Complete marks a run row completed, with final stats and sources.
	Complete(ctx context.Context, runID string, stats map[string]int64, sources []string) error
	// Fail marks a run row failed, recording the error message.
	Fail(ctx context.Context, runID string, errMsg string) error
}

// ModerationStore is the moderation_queue table contract.
type ModerationStore interface {
	// InsertModerationItem persists a new moderation-queue row in "pending" status.
	InsertModerationItem(ctx context.Context, item entity.ModerationItem) (string, error)
	// ListApprovedTips returns moderation rows of type tip, status
	// approved, whose metadata does not yet carry ingested=true.
	ListApprovedTips(ctx context.Context) ([]entity.ModerationItem, error)
	// MarkIngested sets metadata.ingested=true on a tip row, the tip
	// collector's idempotence mechanism.
	MarkIngested(ctx context.Context, itemID string) error
}

// FieldNoteStore is the field_notes table contract.
type FieldNoteStore interface {
	// InsertFieldNote persists a new field note with status=raw.
	InsertFieldNote(ctx context.Context, note entity.FieldNote) (string, error)
}

// Store aggregates every table-scoped contract the pipeline needs.
type Store interface {
	SourceStore
	CrawlHistoryStore
	PipelineRunStore
	ModerationStore
	FieldNoteStore
}
