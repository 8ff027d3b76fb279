package http

import (
	"context"
	"log/slog"
	"time"

	"catchup-feed/internal/handler/http/middleware"
)

// StartRateLimitCleanup starts a background goroutine that periodically
// evicts expired entries from a middleware.RateLimiter's sliding-window
// records, preventing unbounded memory growth from one-off client IPs.
//
// The cleanup runs in a loop with the specified interval and stops gracefully
// when the context is cancelled (e.g., during server shutdown).
func StartRateLimitCleanup(
	ctx context.Context,
	limiter *middleware.RateLimiter,
	interval time.Duration,
	limiterType string,
) {
	ticker := time.NewTicker(interval)

	slog.Info("rate limit cleanup started",
		slog.String("limiter_type", limiterType),
		slog.Duration("interval", interval))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("rate limit cleanup stopped",
					slog.String("limiter_type", limiterType))
				return

			case <-ticker.C:
				limiter.CleanupExpired()
				slog.Debug("rate limit cleanup completed",
					slog.String("limiter_type", limiterType))
			}
		}
	}()
}
