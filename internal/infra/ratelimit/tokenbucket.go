// Package ratelimit provides a per-domain token-bucket rate limiter for
// outbound collector HTTP traffic, keyed by URL authority.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the default token refill rate in tokens/second.
	DefaultRate = 0.5
	// DefaultBurst is the default bucket capacity.
	DefaultBurst = 3.0
	// maxWait caps a single wait iteration so callers can observe context
	// cancellation instead of blocking on an arbitrarily long sleep.
	maxWait = 2 * time.Second
)

type domainOverride struct{ rate, burst float64 }

// Limiter is a process-wide, mutation-guarded set of per-domain
// golang.org/x/time/rate limiters.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	overrides map[string]domainOverride
}

// New creates an empty Limiter using the package default rate/burst for any
// domain without an explicit override.
func New() *Limiter {
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		overrides: make(map[string]domainOverride),
	}
}

// SetDomainOverride installs a non-default rate/burst for a specific domain.
// It only takes effect for limiters created after the call (existing
// limiters keep their already-assigned rate/burst, matching the reference
// behavior of scraper-driven crawl-delay overrides being applied per-domain
// once).
func (l *Limiter) SetDomainOverride(domain string, tokensPerSecond, burst float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[domain] = domainOverride{rate: tokensPerSecond, burst: burst}
}

// DomainOf extracts the rate-limit key (authority/hostname) from a URL using
// a proper URL parser rather than naive string splitting.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[domain]; ok {
		return lim
	}

	tokensPerSecond, burst := DefaultRate, DefaultBurst
	if o, ok := l.overrides[domain]; ok {
		tokensPerSecond, burst = o.rate, o.burst
	}

	lim := rate.NewLimiter(rate.Limit(tokensPerSecond), int(burst))
	l.limiters[domain] = lim
	return lim
}

// Acquire blocks (respecting ctx) until a token is available for domain,
// then consumes it. Each wait iteration is capped at maxWait so a deeply
// throttled domain still lets the caller observe context cancellation
// instead of blocking on one long reservation.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	lim := l.limiterFor(domain)

	for {
		r := lim.Reserve()
		if !r.OK() {
			return fmt.Errorf("ratelimit: domain %q burst too small to ever acquire", domain)
		}

		delay := r.Delay()
		if delay <= 0 {
			return nil
		}

		wait := delay
		if wait > maxWait {
			wait = maxWait
		}

		select {
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		case <-time.After(wait):
			if wait < delay {
				// Only part of the reservation's delay has elapsed; give the
				// token back and retry so the next iteration re-measures
				// against the limiter's current state.
				r.Cancel()
				continue
			}
			return nil
		}
	}
}
