package collect

import (
	"context"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/feed"
	"catchup-feed/internal/infra/text"
)

const feedFetchTimeout = 30 * time.Second

// FeedParser is the subset of infra/feed.Parser the collector depends on.
type FeedParser interface {
	ParseURL(ctx context.Context, url string, maxEntries int) ([]feed.Entry, error)
}

// FeedCollector fetches RSS/Atom feeds and normalizes entries into
// RawArticles (spec.md §4.1 "Feed collector").
type FeedCollector struct {
	parser FeedParser
}

// NewFeedCollector builds a feed collector using parser for HTTP fetch+parse.
func NewFeedCollector(parser FeedParser) *FeedCollector {
	return &FeedCollector{parser: parser}
}

func (c *FeedCollector) Kind() entity.SourceKind { return entity.SourceKindFeed }

func (c *FeedCollector) Collect(ctx context.Context, sources []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	var articles []entity.RawArticle
	var errs []entity.CollectError

	for _, src := range sources {
		maxEntries := configInt(src.Config, "max_entries", 20)

		fetchCtx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
		entries, err := c.parser.ParseURL(fetchCtx, src.URL, maxEntries)
		cancel()
		if err != nil {
			errs = append(errs, entity.CollectError{
				SourceID:   src.ID,
				SourceName: src.DisplayName,
				SourceKind: entity.SourceKindFeed,
				Message:    fmt.Sprintf("fetch feed: %v", err),
				At:         time.Now(),
			})
			continue
		}

		for _, e := range entries {
			if e.Title == "" {
				continue
			}

			body := e.Content
			if body == "" {
				body = e.Summary
			}
			if body == "" {
				body = e.Description
			}
			if body == "" {
				body = e.Title
			}
			body = text.HTMLToText(body)

			articles = append(articles, entity.RawArticle{
				SourceID:        src.ID,
				SourceKind:      entity.SourceKindFeed,
				SourceName:      src.DisplayName,
				ReliabilityTier: src.ReliabilityTier,
				URL:             e.Link,
				Title:           e.Title,
				Body:            body,
				PublishedAt:     e.PublishedAt,
				Author:          e.Author,
				Language:        entity.Language(text.DetectLanguage(body)),
				FetchedAt:       time.Now(),
				Metadata: map[string]any{
					"reliability_tier": string(src.ReliabilityTier),
				},
			})
		}
	}

	return articles, errs
}

// configInt reads an integer-ish value out of a source's free-form config map.
func configInt(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}
