// Package breaking implements the breaking-priority detector
// (spec.md §4.4): a side-channel scan over classified articles that raises
// a moderation alert without otherwise altering pipeline state.
package breaking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catchup-feed/internal/domain/entity"
)

// AlertInserter is the subset of the moderation store the breaking detector
// depends on.
type AlertInserter interface {
	InsertModerationItem(ctx context.Context, item entity.ModerationItem) (string, error)
}

// Detector scans for breaking-priority articles and raises moderation alerts.
type Detector struct {
	moderation AlertInserter
	logger     *slog.Logger
}

// New builds the breaking detector.
func New(moderation AlertInserter, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{moderation: moderation, logger: logger}
}

// Scan raises an alert for every classified, non-duplicate article with
// Priority == breaking. Insert failures are logged and swallowed: they never
// interrupt the pipeline (spec.md §4.4 "Failure to insert an alert is
// logged and swallowed").
func (d *Detector) Scan(ctx context.Context, classified []entity.ClassifiedArticle) {
	for _, ca := range classified {
		if ca.IsDuplicate || ca.Priority != entity.PriorityBreaking {
			continue
		}

		item := entity.ModerationItem{
			Type:    entity.ModerationItemBreakingAlert,
			Content: fmt.Sprintf("BREAKING: %s (%s)", ca.Raw.Title, ca.Raw.SourceName),
			Status:  entity.ModerationPending,
			Metadata: map[string]any{
				"title":           ca.Raw.Title,
				"source":          ca.Raw.SourceName,
				"url":             ca.Raw.URL,
				"topics":          ca.Topics,
				"relevance_score": ca.RelevanceScore,
				"detected_at":     time.Now().Format(time.RFC3339),
			},
		}

		if _, err := d.moderation.InsertModerationItem(ctx, item); err != nil {
			d.logger.Warn("breaking alert insert failed",
				slog.String("title", ca.Raw.Title), slog.Any("error", err))
		}
	}
}
