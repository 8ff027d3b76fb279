package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/robots"
)

const socialFetchTimeout = 30 * time.Second

// SocialCollector covers the message-board-style and microblog platforms
// behind the CONTENT_AGGREGATION_ENABLED feature flag (spec.md §4.1 "Social
// collector"). Every article it produces is force-tagged yellow_press
// regardless of the source's configured tier.
type SocialCollector struct {
	httpClient *http.Client
	enabled    bool
}

// NewSocialCollector builds a social collector, gated by the
// CONTENT_AGGREGATION_ENABLED feature flag.
func NewSocialCollector(httpClient *http.Client, enabled bool) *SocialCollector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: socialFetchTimeout}
	}
	return &SocialCollector{httpClient: httpClient, enabled: enabled}
}

func (c *SocialCollector) Kind() entity.SourceKind { return entity.SourceKindSocial }

func (c *SocialCollector) Collect(ctx context.Context, sources []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	if !c.enabled {
		return nil, nil
	}

	var articles []entity.RawArticle
	var errs []entity.CollectError

	for _, src := range sources {
		platform, _ := src.Config["platform"].(string)

		var (
			result []entity.RawArticle
			err    error
		)
		switch platform {
		case "reddit", "message_board", "":
			result, err = c.collectMessageBoard(ctx, src)
		case "bluesky", "microblog":
			result, err = c.collectMicroblog(ctx, src)
		default:
			err = fmt.Errorf("unknown social platform %q", platform)
		}

		if err != nil {
			errs = append(errs, entity.CollectError{
				SourceID:   src.ID,
				SourceName: src.DisplayName,
				SourceKind: entity.SourceKindSocial,
				Message:    fmt.Sprintf("social collect (%s): %v", platform, err),
				At:         time.Now(),
			})
			continue
		}

		for i := range result {
			result[i].ReliabilityTier = entity.TierYellowPress
			if result[i].Metadata == nil {
				result[i].Metadata = map[string]any{}
			}
			result[i].Metadata["reliability_tier"] = string(entity.TierYellowPress)
		}
		articles = append(articles, result...)
	}

	return articles, errs
}

func (c *SocialCollector) getJSON(ctx context.Context, rawURL string, out any) error {
	fetchCtx, cancel := context.WithTimeout(ctx, socialFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", robots.BotUserAgent)

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

// redditListing mirrors the public r/<subreddit>/new.json envelope.
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string  `json:"title"`
				Selftext  string  `json:"selftext"`
				Permalink string  `json:"permalink"`
				Author    string  `json:"author"`
				CreatedAt float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// collectMessageBoard polls the public `r/<subreddit>/new.json` endpoint.
func (c *SocialCollector) collectMessageBoard(ctx context.Context, src entity.SourceFeed) ([]entity.RawArticle, error) {
	subreddit, _ := src.Config["subreddit"].(string)
	if subreddit == "" {
		return nil, fmt.Errorf("message board source missing subreddit config")
	}

	fetchURL := fmt.Sprintf("https://www.reddit.com/r/%s/new.json", url.PathEscape(subreddit))
	var listing redditListing
	if err := c.getJSON(ctx, fetchURL, &listing); err != nil {
		return nil, err
	}

	var out []entity.RawArticle
	for _, child := range listing.Data.Children {
		d := child.Data
		if d.Title == "" {
			continue
		}
		body := d.Selftext
		if body == "" {
			body = d.Title
		}
		published := time.Unix(int64(d.CreatedAt), 0)

		out = append(out, entity.RawArticle{
			SourceID:    src.ID,
			SourceKind:  entity.SourceKindSocial,
			SourceName:  src.DisplayName,
			URL:         "https://www.reddit.com" + d.Permalink,
			Title:       d.Title,
			Body:        body,
			Author:      d.Author,
			PublishedAt: &published,
			Language:    entity.LanguageEnglish,
			FetchedAt:   time.Now(),
		})
	}
	return out, nil
}

// actorFeedPost mirrors an AT Protocol getAuthorFeed post.
type actorFeedPost struct {
	Post struct {
		URI    string `json:"uri"`
		Author struct {
			Handle string `json:"handle"`
		} `json:"author"`
		Record struct {
			Text      string `json:"text"`
			CreatedAt string `json:"createdAt"`
		} `json:"record"`
	} `json:"post"`
}

type actorFeedResponse struct {
	Feed []actorFeedPost `json:"feed"`
}

type searchActorsResponse struct {
	Actors []struct {
		Handle string `json:"handle"`
	} `json:"actors"`
}

// collectMicroblog does searchActors -> per-actor getAuthorFeed, both public
// AT Protocol endpoints. A pre-configured actor list short-circuits search.
func (c *SocialCollector) collectMicroblog(ctx context.Context, src entity.SourceFeed) ([]entity.RawArticle, error) {
	actors := configStringSlice(src.Config, "actors")

	if len(actors) == 0 {
		query, _ := src.Config["search_query"].(string)
		if query == "" {
			return nil, fmt.Errorf("microblog source missing actors or search_query config")
		}
		searchURL := "https://public.api.bsky.app/xrpc/app.bsky.actor.searchActors?q=" + url.QueryEscape(query)
		var search searchActorsResponse
		if err := c.getJSON(ctx, searchURL, &search); err != nil {
			return nil, err
		}
		for _, a := range search.Actors {
			actors = append(actors, a.Handle)
		}
	}

	var out []entity.RawArticle
	for _, actor := range actors {
		feedURL := "https://public.api.bsky.app/xrpc/app.bsky.feed.getAuthorFeed?actor=" + url.QueryEscape(actor)
		var feed actorFeedResponse
		if err := c.getJSON(ctx, feedURL, &feed); err != nil {
			continue // per-actor failure doesn't abort the rest
		}

		for _, p := range feed.Feed {
			if p.Post.Record.Text == "" {
				continue
			}
			var published *time.Time
			if t, err := time.Parse(time.RFC3339, p.Post.Record.CreatedAt); err == nil {
				published = &t
			}

			title := p.Post.Record.Text
			if len(title) > 80 {
				title = title[:80]
			}

			out = append(out, entity.RawArticle{
				SourceID:    src.ID,
				SourceKind:  entity.SourceKindSocial,
				SourceName:  src.DisplayName,
				URL:         "https://bsky.app/profile/" + p.Post.Author.Handle,
				Title:       title,
				Body:        p.Post.Record.Text,
				Author:      p.Post.Author.Handle,
				PublishedAt: published,
				Language:    entity.LanguageEnglish,
				FetchedAt:   time.Now(),
			})
		}
	}
	return out, nil
}

func configStringSlice(cfg map[string]any, key string) []string {
	v, ok := cfg[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
