package collect

import (
	"context"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
)

// ModerationReader is the subset of the moderation store the tip collector
// depends on.
type ModerationReader interface {
	ListApprovedTips(ctx context.Context) ([]entity.ModerationItem, error)
	MarkIngested(ctx context.Context, itemID string) error
}

// TipCollector ignores its source argument entirely: it drains approved,
// not-yet-ingested tips from the moderation queue (spec.md §4.1 "Tip
// collector"). Idempotent by the metadata.ingested flag it sets.
type TipCollector struct {
	moderation ModerationReader
}

// NewTipCollector builds a tip collector over the moderation store.
func NewTipCollector(moderation ModerationReader) *TipCollector {
	return &TipCollector{moderation: moderation}
}

func (c *TipCollector) Kind() entity.SourceKind { return entity.SourceKindTip }

func (c *TipCollector) Collect(ctx context.Context, _ []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	tips, err := c.moderation.ListApprovedTips(ctx)
	if err != nil {
		return nil, []entity.CollectError{{
			SourceKind: entity.SourceKindTip,
			SourceName: "tip_ingester",
			Message:    fmt.Sprintf("list approved tips: %v", err),
			At:         time.Now(),
		}}
	}

	var articles []entity.RawArticle
	var errs []entity.CollectError
	for _, tip := range tips {
		title, _ := tip.Metadata["title"].(string)
		if title == "" {
			title = tip.Content
		}
		body := tip.Content
		if body == "" {
			body = title
		}
		author, _ := tip.Metadata["submitted_by"].(string)

		articles = append(articles, entity.RawArticle{
			SourceID:        tip.ID,
			SourceKind:      entity.SourceKindTip,
			SourceName:      "Reader Tip",
			ReliabilityTier: entity.TierStandard,
			URL:             fmt.Sprintf("tip://%s", tip.ID),
			Title:           title,
			Body:            body,
			Author:          author,
			Language:        entity.LanguageEnglish,
			FetchedAt:       time.Now(),
			Metadata: map[string]any{
				"reliability_tier": string(entity.TierStandard),
				"moderation_id":    tip.ID,
			},
		})

		if err := c.moderation.MarkIngested(ctx, tip.ID); err != nil {
			errs = append(errs, entity.CollectError{
				SourceID:   tip.ID,
				SourceKind: entity.SourceKindTip,
				SourceName: "tip_ingester",
				Message:    fmt.Sprintf("mark ingested: %v", err),
				At:         time.Now(),
			})
		}
	}

	return articles, errs
}
