package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAllowedDisallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	}))
	defer srv.Close()

	c := New(srv.Client())
	allowed := c.IsAllowed(context.Background(), srv.URL+"/private/page", "anybot")
	if allowed {
		t.Fatal("expected /private/ to be disallowed")
	}

	allowed = c.IsAllowed(context.Background(), srv.URL+"/public/page", "anybot")
	if !allowed {
		t.Fatal("expected /public/ to be allowed")
	}
}

func TestIsAllowedFailsOpenOnNetworkError(t *testing.T) {
	c := New(http.DefaultClient)
	allowed := c.IsAllowed(context.Background(), "http://127.0.0.1:1/page", BotUserAgent)
	if !allowed {
		t.Fatal("expected fail-open (allow) when robots.txt cannot be fetched")
	}
}

func TestIsAllowedFailsOpenOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.Client())
	allowed := c.IsAllowed(context.Background(), srv.URL+"/anything", BotUserAgent)
	if !allowed {
		t.Fatal("expected non-200 robots.txt response to be treated as permissive")
	}
}

func TestCrawlDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nCrawl-delay: 2\n"))
	}))
	defer srv.Close()

	c := New(srv.Client())
	delay := c.CrawlDelay(context.Background(), srv.URL+"/page", BotUserAgent)
	if delay.Seconds() != 2 {
		t.Fatalf("expected 2s crawl delay, got %v", delay)
	}
}

func TestCacheIsReusedWithinTTL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	c := New(srv.Client())
	for i := 0; i < 5; i++ {
		c.IsAllowed(context.Background(), srv.URL+"/page", BotUserAgent)
	}
	if hits != 1 {
		t.Fatalf("expected robots.txt to be fetched once within TTL, fetched %d times", hits)
	}
}
