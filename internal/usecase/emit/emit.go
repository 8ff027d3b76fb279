// Package emit implements the three terminal pipeline consumers
// (spec.md §4.7): the field-note creator for approved articles, the
// moderation sender for flagged articles, and the archiver for
// rejected+flagged articles.
package emit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"catchup-feed/internal/domain/entity"
)

// fieldNoteBotID is the well-known authored-by identity for machine-created
// field notes.
const fieldNoteBotID = "niseko-gazet-pipeline"

// rawTextCap is the field note's raw-text body truncation limit.
const rawTextCap = 5000

// archiveBodyCap is the archiver's crawl-history body truncation limit.
const archiveBodyCap = 500

// CrawlRecorder is the subset of the store the emit stage writes
// crawl-history rows through.
type CrawlRecorder interface {
	InsertCrawlRecord(ctx context.Context, rec entity.CrawlHistoryRecord) error
}

// FieldNoteWriter persists field notes.
type FieldNoteWriter interface {
	InsertFieldNote(ctx context.Context, note entity.FieldNote) (string, error)
}

// ModerationWriter persists moderation-queue rows.
type ModerationWriter interface {
	InsertModerationItem(ctx context.Context, item entity.ModerationItem) (string, error)
}

// ReliabilityRecomputer triggers an asynchronous source-reliability
// recompute (spec.md §4.8), fired once per approved field note.
type ReliabilityRecomputer interface {
	TriggerRecompute(sourceID string)
}

// Emitter wires the three terminal consumers over a shared store.
type Emitter struct {
	crawl       CrawlRecorder
	notes       FieldNoteWriter
	moderation  ModerationWriter
	reliability ReliabilityRecomputer
	runID       string
	logger      *slog.Logger
}

// New builds an emitter for one pipeline run.
func New(crawl CrawlRecorder, notes FieldNoteWriter, moderation ModerationWriter, reliability ReliabilityRecomputer, runID string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{crawl: crawl, notes: notes, moderation: moderation, reliability: reliability, runID: runID, logger: logger}
}

// EmitApproved persists each approved article as a field note plus a
// "processed" crawl-history row, and triggers a reliability recompute for
// its source. A field-note write failure still attempts a compensating
// "error"-status crawl row (spec.md §4.7).
func (e *Emitter) EmitApproved(ctx context.Context, approved []entity.EnrichedArticle) {
	for _, ea := range approved {
		note := buildFieldNote(ea)

		noteID, err := e.notes.InsertFieldNote(ctx, note)
		if err != nil {
			e.logger.Error("field note persist failed", slog.String("title", ea.Classified.Raw.Title), slog.Any("error", err))
			e.recordCrawl(ctx, ea, entity.CrawlStatusError, "", "", fmt.Sprintf("field note persist: %v", err))
			continue
		}

		e.recordCrawl(ctx, ea, entity.CrawlStatusProcessed, noteID, "", "")

		if e.reliability != nil {
			e.reliability.TriggerRecompute(ea.Classified.Raw.SourceID)
		}
	}
}

// EmitFlagged persists each flagged article as a moderation-queue row of
// type haystack_flagged plus a "flagged" crawl-history row.
func (e *Emitter) EmitFlagged(ctx context.Context, flagged []entity.EnrichedArticle) {
	for _, ea := range flagged {
		item := entity.ModerationItem{
			Type:    entity.ModerationItemHaystackFlagged,
			Content: buildFlagSummary(ea),
			Status:  entity.ModerationPending,
			Metadata: map[string]any{
				"classification": ea.Classified,
				"enrichment":     ea,
			},
		}

		itemID, err := e.moderation.InsertModerationItem(ctx, item)
		if err != nil {
			e.logger.Error("moderation item persist failed", slog.String("title", ea.Classified.Raw.Title), slog.Any("error", err))
			e.recordCrawl(ctx, ea, entity.CrawlStatusError, "", "", fmt.Sprintf("moderation item persist: %v", err))
			continue
		}

		e.recordCrawl(ctx, ea, entity.CrawlStatusFlagged, "", itemID, "")
	}
}

// Archive records rejected articles into crawl history with body
// truncation. Flagged articles get their crawl row from EmitFlagged
// directly (it already links the moderation id), so this only covers
// articles the quality gate dropped outright. The orchestrator calls
// Archive unconditionally every cycle, even with zero rejects
// (spec.md §4.7 "must run even when both approved and flagged buckets are
// empty").
func (e *Emitter) Archive(ctx context.Context, rejected []entity.EnrichedArticle) {
	for _, ea := range rejected {
		e.recordCrawl(ctx, ea, entity.CrawlStatusRejected, "", "", "")
	}
}

// ArchiveClassified records crawl-history rows for articles that never made
// it past the dedup+classify stage (duplicates, below-threshold rejects):
// spec.md §8's conservation invariant counts these as "rejected (pre-enrich)".
func (e *Emitter) ArchiveClassified(ctx context.Context, rejected []entity.ClassifiedArticle) {
	for _, ca := range rejected {
		score := ca.RelevanceScore
		rec := entity.CrawlHistoryRecord{
			SourceFeedID:       ca.Raw.SourceID,
			SourceURL:          ca.Raw.URL,
			ContentFingerprint: ca.Fingerprint,
			PipelineRunID:      e.runID,
			Status:             entity.CrawlStatusRejected,
			WasRelevant:        false,
			WasDuplicate:       ca.IsDuplicate,
			RelevanceScore:     &score,
			ClassificationData: map[string]any{
				"title":  ca.Raw.Title,
				"topics": ca.Topics,
			},
			RawData: map[string]any{
				"body": truncate(ca.Raw.Body, archiveBodyCap),
			},
			ErrorMessage: ca.Reasoning,
			FetchedAt:    ca.Raw.FetchedAt,
		}
		if err := e.crawl.InsertCrawlRecord(ctx, rec); err != nil {
			e.logger.Error("crawl history persist failed (pre-enrich reject)", slog.Any("error", err))
		}
	}
}

func (e *Emitter) recordCrawl(ctx context.Context, ea entity.EnrichedArticle, status entity.CrawlStatus, fieldNoteID, moderationID, errMsg string) {
	score := ea.Classified.RelevanceScore
	rec := entity.CrawlHistoryRecord{
		SourceFeedID:       ea.Classified.Raw.SourceID,
		SourceURL:          ea.Classified.Raw.URL,
		ContentFingerprint: ea.Classified.Fingerprint,
		PipelineRunID:      e.runID,
		Status:             status,
		WasRelevant:        status == entity.CrawlStatusProcessed || status == entity.CrawlStatusFlagged,
		WasDuplicate:       ea.Classified.IsDuplicate,
		RelevanceScore:     &score,
		ClassificationData: map[string]any{
			"title":  ea.Classified.Raw.Title,
			"topics": ea.Classified.Topics,
		},
		FieldNoteID:      fieldNoteID,
		ModerationItemID: moderationID,
		RawData: map[string]any{
			"body": truncate(ea.Classified.Raw.Body, archiveBodyCap),
		},
		ErrorMessage: errMsg,
		FetchedAt:    ea.Classified.Raw.FetchedAt,
	}

	if err := e.crawl.InsertCrawlRecord(ctx, rec); err != nil {
		e.logger.Error("crawl history persist failed", slog.String("status", string(status)), slog.Any("error", err))
	}
}

func buildFieldNote(ea entity.EnrichedArticle) entity.FieldNote {
	var safetyFlags []string
	for _, f := range ea.RiskFlags {
		safetyFlags = append(safetyFlags, string(f.Kind))
	}

	evidence := make([]entity.EvidenceRef, len(ea.EvidenceRefs), len(ea.EvidenceRefs)+1)
	copy(evidence, ea.EvidenceRefs)
	evidence = append(evidence, entity.EvidenceRef{
		Kind:        "source",
		URL:         ea.Classified.Raw.URL,
		Description: "Original source article",
	})

	return entity.FieldNote{
		Status:       entity.FieldNoteStatusRaw,
		AuthorBotID:  fieldNoteBotID,
		Who:          ea.Who,
		What:         ea.What,
		When:         ea.When,
		Where:        ea.Where,
		Why:          ea.Why,
		How:          ea.How,
		SafetyFlags:  safetyFlags,
		Quotes:       ea.Quotes,
		EvidenceRefs: evidence,
		RawText:      truncate(ea.Classified.Raw.Body, rawTextCap),
	}
}

func buildFlagSummary(ea entity.EnrichedArticle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nSource: %s\nConfidence: %d\n", ea.Classified.Raw.Title, ea.Classified.Raw.SourceName, ea.Confidence)

	if len(ea.RiskFlags) > 0 {
		kinds := make([]string, len(ea.RiskFlags))
		for i, f := range ea.RiskFlags {
			kinds[i] = string(f.Kind)
		}
		fmt.Fprintf(&b, "Risk flags: %s\n", strings.Join(kinds, ", "))
	}

	fmt.Fprintf(&b, "Who: %s | What: %s | When: %s | Where: %s\n", ea.Who, ea.What, ea.When, ea.Where)
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
