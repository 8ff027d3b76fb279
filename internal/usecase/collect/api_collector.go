package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"catchup-feed/internal/domain/entity"
)

const apiFetchTimeout = 30 * time.Second

// APICollector dispatches on the source's configured api_type to one of
// several JSON-API integrations (spec.md §4.1 "API collector",
// SPEC_FULL.md §3 vendor dispatch table).
type APICollector struct {
	httpClient         *http.Client
	aggregationEnabled bool // CONTENT_AGGREGATION_ENABLED feature flag
}

// NewAPICollector builds an API collector. aggregationEnabled gates the
// search-style vendors (tavily/brave/currents/gnews) per spec.md §6.
func NewAPICollector(httpClient *http.Client, aggregationEnabled bool) *APICollector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: apiFetchTimeout}
	}
	return &APICollector{httpClient: httpClient, aggregationEnabled: aggregationEnabled}
}

func (c *APICollector) Kind() entity.SourceKind { return entity.SourceKindAPI }

func (c *APICollector) Collect(ctx context.Context, sources []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	var articles []entity.RawArticle
	var errs []entity.CollectError

	for _, src := range sources {
		apiType, _ := src.Config["api_type"].(string)

		var (
			result []entity.RawArticle
			err    error
		)
		switch apiType {
		case "openweather", "weather", "":
			result, err = c.collectWeather(ctx, src)
		case "newsapi":
			result, err = c.collectNewsAPI(ctx, src)
		case "tavily", "brave", "currents", "gnews":
			if !c.aggregationEnabled {
				continue
			}
			result, err = c.collectSearchVendor(ctx, src, apiType)
		case "generic":
			result, err = c.collectGeneric(ctx, src)
		default:
			result, err = c.collectGeneric(ctx, src)
		}

		if err != nil {
			errs = append(errs, entity.CollectError{
				SourceID:   src.ID,
				SourceName: src.DisplayName,
				SourceKind: entity.SourceKindAPI,
				Message:    fmt.Sprintf("api collect (%s): %v", apiType, err),
				At:         time.Now(),
			})
			continue
		}
		articles = append(articles, result...)
	}

	return articles, errs
}

func (c *APICollector) getJSON(ctx context.Context, rawURL string, out any) error {
	fetchCtx, cancel := context.WithTimeout(ctx, apiFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// weatherResponse mirrors an OpenWeather-style current-conditions envelope.
type weatherResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Snow struct {
		OneHour   float64 `json:"1h"`
		ThreeHour float64 `json:"3h"`
	} `json:"snow"`
}

// collectWeather turns a structured weather reading into a human-readable
// body (spec.md §8 E2E #3: "Heavy Snow" title, "Snowfall" body).
func (c *APICollector) collectWeather(ctx context.Context, src entity.SourceFeed) ([]entity.RawArticle, error) {
	var w weatherResponse
	if err := c.getJSON(ctx, src.URL, &w); err != nil {
		return nil, err
	}

	desc := "Current Conditions"
	if len(w.Weather) > 0 {
		desc = w.Weather[0].Description
	}

	title := strings.Title(desc) //nolint:staticcheck // matches weather-vendor capitalization convention
	var body strings.Builder
	fmt.Fprintf(&body, "%s. Temperature: %.1f°C.", strings.Title(desc), w.Main.Temp)
	if w.Snow.OneHour > 0 || w.Snow.ThreeHour > 0 {
		title = "Heavy Snow Warning"
		fmt.Fprintf(&body, " Snowfall: %.1fmm (1h), %.1fmm (3h).", w.Snow.OneHour, w.Snow.ThreeHour)
	}

	if strings.Contains(strings.ToLower(desc), "snow") {
		title = "Heavy Snow Warning"
	}

	return []entity.RawArticle{{
		SourceID:        src.ID,
		SourceKind:      entity.SourceKindAPI,
		SourceName:      src.DisplayName,
		ReliabilityTier: src.ReliabilityTier,
		URL:             src.URL,
		Title:           title,
		Body:            body.String(),
		Language:        entity.LanguageEnglish,
		FetchedAt:       time.Now(),
		Metadata: map[string]any{
			"reliability_tier": string(src.ReliabilityTier),
			"api_type":         "weather",
		},
	}}, nil
}

type newsAPIResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (c *APICollector) collectNewsAPI(ctx context.Context, src entity.SourceFeed) ([]entity.RawArticle, error) {
	var resp newsAPIResponse
	if err := c.getJSON(ctx, src.URL, &resp); err != nil {
		return nil, err
	}

	var out []entity.RawArticle
	for _, a := range resp.Articles {
		if a.Title == "" {
			continue
		}
		body := a.Content
		if body == "" {
			body = a.Description
		}
		if body == "" {
			body = a.Title
		}

		var published *time.Time
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = &t
		}

		out = append(out, entity.RawArticle{
			SourceID:        src.ID,
			SourceKind:      entity.SourceKindAPI,
			SourceName:      src.DisplayName,
			ReliabilityTier: src.ReliabilityTier,
			URL:             a.URL,
			Title:           a.Title,
			Body:            body,
			Author:          a.Author,
			PublishedAt:     published,
			Language:        entity.LanguageEnglish,
			FetchedAt:       time.Now(),
			Metadata: map[string]any{
				"reliability_tier": string(src.ReliabilityTier),
				"api_type":         "newsapi",
			},
		})
	}
	return out, nil
}

// searchVendorResponse models the similar-shaped envelope shared by the
// tavily/brave/currents/gnews search-style news aggregators.
type searchVendorResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

func (c *APICollector) collectSearchVendor(ctx context.Context, src entity.SourceFeed, vendor string) ([]entity.RawArticle, error) {
	var resp searchVendorResponse
	if err := c.getJSON(ctx, src.URL, &resp); err != nil {
		return nil, err
	}

	var out []entity.RawArticle
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		body := r.Content
		if body == "" {
			body = r.Title
		}
		out = append(out, entity.RawArticle{
			SourceID:        src.ID,
			SourceKind:      entity.SourceKindAPI,
			SourceName:      src.DisplayName,
			ReliabilityTier: src.ReliabilityTier,
			URL:             r.URL,
			Title:           r.Title,
			Body:            body,
			Language:        entity.LanguageEnglish,
			FetchedAt:       time.Now(),
			Metadata: map[string]any{
				"reliability_tier": string(src.ReliabilityTier),
				"api_type":         vendor,
			},
		})
	}
	return out, nil
}

// collectGeneric drives extraction off key paths declared in the source's
// own config (e.g. "items_path": "data.items", "title_key": "headline"),
// for arbitrary JSON API sources the vendor dispatch doesn't name.
func (c *APICollector) collectGeneric(ctx context.Context, src entity.SourceFeed) ([]entity.RawArticle, error) {
	var raw any
	if err := c.getJSON(ctx, src.URL, &raw); err != nil {
		return nil, err
	}

	itemsPath, _ := src.Config["items_path"].(string)
	titleKey, _ := src.Config["title_key"].(string)
	bodyKey, _ := src.Config["body_key"].(string)
	urlKey, _ := src.Config["url_key"].(string)
	if titleKey == "" {
		titleKey = "title"
	}
	if bodyKey == "" {
		bodyKey = "body"
	}
	if urlKey == "" {
		urlKey = "url"
	}

	items := walkPath(raw, itemsPath)
	list, ok := items.([]any)
	if !ok {
		return nil, fmt.Errorf("generic api: items_path %q did not resolve to an array", itemsPath)
	}

	var out []entity.RawArticle
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m[titleKey].(string)
		if title == "" {
			continue
		}
		body, _ := m[bodyKey].(string)
		if body == "" {
			body = title
		}
		url, _ := m[urlKey].(string)

		out = append(out, entity.RawArticle{
			SourceID:        src.ID,
			SourceKind:      entity.SourceKindAPI,
			SourceName:      src.DisplayName,
			ReliabilityTier: src.ReliabilityTier,
			URL:             url,
			Title:           title,
			Body:            body,
			Language:        entity.LanguageEnglish,
			FetchedAt:       time.Now(),
			Metadata: map[string]any{
				"reliability_tier": string(src.ReliabilityTier),
				"api_type":         "generic",
			},
		})
	}
	return out, nil
}

// walkPath resolves a dotted key path (e.g. "data.items") against a decoded
// JSON value, matching the generic API collector's config-driven contract.
func walkPath(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
