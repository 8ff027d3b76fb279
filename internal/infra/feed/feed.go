// Package feed parses RSS/Atom feeds via gofeed for the feed collector.
package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one normalized feed item, pre-dating any pipeline domain typing.
type Entry struct {
	Title       string
	Content     string
	Summary     string
	Description string
	Link        string
	Author      string
	PublishedAt *time.Time
}

// Parser wraps gofeed with a context-aware Parse call.
type Parser struct {
	fp *gofeed.Parser
}

// NewParser builds a feed parser using the given timeout for the underlying HTTP fetch.
func NewParser(timeout time.Duration) *Parser {
	fp := gofeed.NewParser()
	fp.Client = &http.Client{Timeout: timeout}
	return &Parser{fp: fp}
}

// ParseURL fetches and parses the feed at url, returning up to maxEntries items.
func (p *Parser) ParseURL(ctx context.Context, url string, maxEntries int) ([]Entry, error) {
	parsed, err := p.fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	n := len(parsed.Items)
	if maxEntries > 0 && maxEntries < n {
		n = maxEntries
	}

	out := make([]Entry, 0, n)
	for _, item := range parsed.Items[:n] {
		var author string
		if item.Author != nil {
			author = item.Author.Name
		} else if len(item.Authors) > 0 {
			author = item.Authors[0].Name
		}

		var published *time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed
		}

		var content string
		if item.Content != "" {
			content = item.Content
		}

		out = append(out, Entry{
			Title:       item.Title,
			Content:     content,
			Summary:     item.Description,
			Description: item.Description,
			Link:        item.Link,
			Author:      author,
			PublishedAt: published,
		})
	}
	return out, nil
}
