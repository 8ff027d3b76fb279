// Command api serves the read-only operator status/health HTTP surface
// (spec.md §1 "the downstream editorial UI... is an external collaborator"
// — this binary is not that UI, only the pipeline's own status window).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	hhttp "catchup-feed/internal/handler/http"
	"catchup-feed/internal/handler/http/middleware"
	"catchup-feed/internal/handler/http/requestid"
	"catchup-feed/internal/handler/http/status"
	"catchup-feed/internal/infra/store"
	"catchup-feed/internal/observability/logging"
	"catchup-feed/internal/observability/tracing"
	"catchup-feed/internal/pkg/config"
)

const (
	statusRateLimit        = 60
	statusRateLimitWindow  = time.Minute
	rateLimitCleanupPeriod = 5 * time.Minute
	version                = "dev"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	baseURL := config.LoadEnvString("STORE_BASE_URL", "http://localhost:3000")
	apiKey := os.Getenv("STORE_API_KEY")
	bearer := os.Getenv("STORE_BEARER_TOKEN")
	st := store.New(baseURL, apiKey, bearer)

	statusHandler := status.New(st)
	healthHandler := &hhttp.HealthHandler{Store: st, Version: version}
	readyHandler := &hhttp.ReadyHandler{Store: st}
	liveHandler := &hhttp.LiveHandler{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/sources", statusHandler.Sources)
	mux.HandleFunc("GET /status/runs", statusHandler.Runs)
	mux.HandleFunc("GET /status/moderation", statusHandler.Moderation)
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /ready", readyHandler)
	mux.Handle("GET /live", liveHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	limiter := middleware.NewRateLimiter(statusRateLimit, statusRateLimitWindow, &middleware.RemoteAddrExtractor{})
	hhttp.StartRateLimitCleanup(ctx, limiter, rateLimitCleanupPeriod, "status")

	handler := requestid.Middleware(tracing.Middleware(hhttp.Logging(logger)(hhttp.Recover(logger)(hhttp.MetricsMiddleware(limiter.Middleware(mux))))))

	port := config.LoadEnvString("API_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("api server starting", slog.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", slog.Any("error", err))
	}
}
