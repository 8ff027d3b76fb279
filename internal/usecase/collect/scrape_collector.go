package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/infra/ratelimit"
	"catchup-feed/internal/infra/robots"
	"catchup-feed/internal/infra/text"
)

const scrapeFetchTimeout = 30 * time.Second

// selectorConfig is the configurable set of article-container selectors a
// scrape source may declare (spec.md §4.1 "Scraper collector").
type selectorConfig struct {
	Article string
	Title   string
	Body    string
	Link    string
	Author  string
	Time    string
}

// ScrapeCollector fetches and parses plain web pages, respecting robots.txt
// and a per-domain rate limiter.
type ScrapeCollector struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	robotsCache *robots.Cache
}

// NewScrapeCollector wires the scrape collector's robots/rate-limit gates.
func NewScrapeCollector(httpClient *http.Client, limiter *ratelimit.Limiter, robotsCache *robots.Cache) *ScrapeCollector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: scrapeFetchTimeout}
	}
	return &ScrapeCollector{httpClient: httpClient, limiter: limiter, robotsCache: robotsCache}
}

func (c *ScrapeCollector) Kind() entity.SourceKind { return entity.SourceKindScrape }

func (c *ScrapeCollector) Collect(ctx context.Context, sources []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	var articles []entity.RawArticle
	var errs []entity.CollectError

	for _, src := range sources {
		if !c.robotsCache.IsAllowed(ctx, src.URL, robots.BotUserAgent) {
			continue // spec.md §8 E2E #2: robots-blocked -> zero articles, zero errors
		}

		c.applyCrawlDelayOverride(ctx, src.URL)

		domain, err := ratelimit.DomainOf(src.URL)
		if err == nil {
			if err := c.limiter.Acquire(ctx, domain); err != nil {
				errs = append(errs, collectErr(src, fmt.Sprintf("rate limit wait: %v", err)))
				continue
			}
		}

		body, err := c.fetch(ctx, src.URL)
		if err != nil {
			errs = append(errs, collectErr(src, fmt.Sprintf("fetch page: %v", err)))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			errs = append(errs, collectErr(src, fmt.Sprintf("parse html: %v", err)))
			continue
		}

		sel := selectorsFromConfig(src.Config)
		extracted := c.extractBySelectors(ctx, doc, sel, src)
		if len(extracted) == 0 {
			extracted = c.extractWholePage(body, src)
		}
		articles = append(articles, extracted...)
	}

	return articles, errs
}

// applyCrawlDelayOverride installs a per-domain rate-limit override derived
// from the page's own robots.txt crawl-delay directive, if any.
func (c *ScrapeCollector) applyCrawlDelayOverride(ctx context.Context, rawURL string) {
	delay := c.robotsCache.CrawlDelay(ctx, rawURL, robots.BotUserAgent)
	if delay <= 0 {
		return
	}
	domain, err := ratelimit.DomainOf(rawURL)
	if err != nil {
		return
	}
	rate := 1.0 / delay.Seconds()
	c.limiter.SetDomainOverride(domain, rate, 1)
}

func (c *ScrapeCollector) fetch(ctx context.Context, rawURL string) (string, error) {
	if err := fetcher.ValidateURL(rawURL, true); err != nil {
		return "", err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, scrapeFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", robots.BotUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (c *ScrapeCollector) extractBySelectors(ctx context.Context, doc *goquery.Document, sel selectorConfig, src entity.SourceFeed) []entity.RawArticle {
	if sel.Article == "" {
		return nil
	}

	var out []entity.RawArticle
	doc.Find(sel.Article).Each(func(_ int, s *goquery.Selection) {
		title := firstNonEmpty(selText(s, sel.Title))
		if title == "" {
			return
		}
		bodyHTML, _ := selHTML(s, sel.Body)
		body := text.HTMLToText(bodyHTML)
		if body == "" {
			body = title
		}

		link := src.URL
		if sel.Link != "" {
			if href, ok := s.Find(sel.Link).Attr("href"); ok {
				link = resolveURL(src.URL, href)
			}
		}

		if link != src.URL && !c.robotsCache.IsAllowed(ctx, link, robots.BotUserAgent) {
			return
		}

		author := selText(s, sel.Author)
		body = text.CleanWhitespace(body)

		out = append(out, entity.RawArticle{
			SourceID:        src.ID,
			SourceKind:      entity.SourceKindScrape,
			SourceName:      src.DisplayName,
			ReliabilityTier: src.ReliabilityTier,
			URL:             link,
			Title:           title,
			Body:            body,
			Author:          author,
			Language:        entity.Language(text.DetectLanguage(body)),
			FetchedAt:       time.Now(),
			Metadata: map[string]any{
				"reliability_tier": string(src.ReliabilityTier),
			},
		})
	})
	return out
}

// extractWholePage is the fallback when no configured container matches:
// the entire page, stripped of boilerplate, becomes one article. It also
// tries go-readability first since it's generally cleaner than a raw strip.
func (c *ScrapeCollector) extractWholePage(html string, src entity.SourceFeed) []entity.RawArticle {
	title := src.DisplayName
	body := text.HTMLToText(html)

	if u, err := url.Parse(src.URL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), u); err == nil {
			if article.Title != "" {
				title = article.Title
			}
			if article.TextContent != "" {
				body = text.CleanWhitespace(article.TextContent)
			}
		}
	}

	if body == "" {
		body = title
	}

	return []entity.RawArticle{{
		SourceID:        src.ID,
		SourceKind:      entity.SourceKindScrape,
		SourceName:      src.DisplayName,
		ReliabilityTier: src.ReliabilityTier,
		URL:             src.URL,
		Title:           title,
		Body:            body,
		Language:        entity.Language(text.DetectLanguage(body)),
		FetchedAt:       time.Now(),
		Metadata: map[string]any{
			"reliability_tier": string(src.ReliabilityTier),
			"extraction":       "whole_page_fallback",
		},
	}}
}

func selectorsFromConfig(cfg map[string]any) selectorConfig {
	return selectorConfig{
		Article: configStr(cfg, "article_selector"),
		Title:   configStr(cfg, "title_selector"),
		Body:    configStr(cfg, "body_selector"),
		Link:    configStr(cfg, "link_selector"),
		Author:  configStr(cfg, "author_selector"),
		Time:    configStr(cfg, "time_selector"),
	}
}

func configStr(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func selText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return strings.TrimSpace(s.Text())
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func selHTML(s *goquery.Selection, selector string) (string, error) {
	if selector == "" {
		return s.Html()
	}
	return s.Find(selector).First().Html()
}

func firstNonEmpty(s string) string { return strings.TrimSpace(s) }

// resolveURL resolves href against base, handling relative links.
func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(refURL).String()
}

func collectErr(src entity.SourceFeed, msg string) entity.CollectError {
	return entity.CollectError{
		SourceID:   src.ID,
		SourceName: src.DisplayName,
		SourceKind: entity.SourceKindScrape,
		Message:    msg,
		At:         time.Now(),
	}
}
