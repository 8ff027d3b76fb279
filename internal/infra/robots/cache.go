// Package robots caches robots.txt parsing per authority so collectors don't
// refetch it on every request.
package robots

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// BotUserAgent is the fixed identifier used for every outbound crawl,
// including robots.txt fetches and the per-article refetch.
const BotUserAgent = "NisekoGazetBot/1.0 (+https://niseko-gazet.vercel.app)"

// ttl is how long a cached robots.txt entry is trusted before refetching.
const ttl = 3600 * time.Second

type entry struct {
	rules   *rules
	expires time.Time
}

// Cache is a process-wide, mutation-guarded robots.txt cache keyed by authority.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	client  *http.Client
}

// New creates an empty robots cache using client for robots.txt fetches.
func New(client *http.Client) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{entries: make(map[string]*entry), client: client}
}

// IsAllowed reports whether agent may fetch rawURL under the cached policy
// for its authority. Any fetch/parse failure fails open (allow).
func (c *Cache) IsAllowed(ctx context.Context, rawURL, agent string) bool {
	r := c.rulesFor(ctx, rawURL)
	if r == nil {
		return true
	}
	return r.allowed(rawURL, agent)
}

// CrawlDelay returns the crawl-delay directive for agent under authority's
// robots.txt, or zero if none is declared.
func (c *Cache) CrawlDelay(ctx context.Context, rawURL, agent string) time.Duration {
	r := c.rulesFor(ctx, rawURL)
	if r == nil {
		return 0
	}
	return r.crawlDelay(agent)
}

func (c *Cache) rulesFor(ctx context.Context, rawURL string) *rules {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	authority := u.Scheme + "://" + u.Host

	c.mu.Lock()
	if e, ok := c.entries[authority]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.rules
	}
	c.mu.Unlock()

	r := c.fetch(ctx, authority)

	c.mu.Lock()
	c.entries[authority] = &entry{rules: r, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	return r
}

func (c *Cache) fetch(ctx context.Context, authority string) *rules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authority+"/robots.txt", nil)
	if err != nil {
		return nil // fail-open: treat as permissive
	}
	req.Header.Set("User-Agent", BotUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil // network failure: fail-open
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil // non-200: treat as permissive
	}

	return parseRobotsTxt(resp.Body)
}

// rules holds a parsed robots.txt's disallow/crawl-delay directives per
// user-agent group (including a catch-all "*" group).
type rules struct {
	groups map[string]*group
}

type group struct {
	disallow   []string
	crawlDelay time.Duration
}

func (r *rules) groupFor(agent string) *group {
	if g, ok := r.groups[strings.ToLower(agent)]; ok {
		return g
	}
	return r.groups["*"]
}

func (r *rules) allowed(rawURL, agent string) bool {
	g := r.groupFor(agent)
	if g == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, d := range g.disallow {
		if d == "" {
			continue
		}
		if strings.HasPrefix(path, d) {
			return false
		}
	}
	return true
}

func (r *rules) crawlDelay(agent string) time.Duration {
	g := r.groupFor(agent)
	if g == nil {
		return 0
	}
	return g.crawlDelay
}
