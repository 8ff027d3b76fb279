package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	workerPkg "catchup-feed/internal/infra/worker"

	"catchup-feed/internal/infra/feed"
	"catchup-feed/internal/infra/llm"
	"catchup-feed/internal/infra/ratelimit"
	"catchup-feed/internal/infra/robots"
	"catchup-feed/internal/infra/store"
	"catchup-feed/internal/observability/logging"
	"catchup-feed/internal/pkg/config"
	"catchup-feed/internal/usecase/breaking"
	"catchup-feed/internal/usecase/collect"
	"catchup-feed/internal/usecase/dedup"
	"catchup-feed/internal/usecase/enrich"
	"catchup-feed/internal/usecase/qualitygate"
	"catchup-feed/internal/usecase/reliability"

	"catchup-feed/internal/pipeline"
)

const (
	feedFetchTimeout = 20 * time.Second
	httpFetchTimeout = 30 * time.Second
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipelineCfg := workerPkg.LoadPipelineConfigFromEnv(logger)
	logger.Info("pipeline configuration loaded",
		slog.Duration("main_poll_interval", pipelineCfg.MainPollInterval),
		slog.Duration("weather_poll_interval", pipelineCfg.WeatherPollInterval),
		slog.Duration("tip_poll_interval", pipelineCfg.TipPollInterval),
		slog.Duration("social_poll_interval", pipelineCfg.SocialPollInterval),
		slog.Duration("deep_scrape_interval", pipelineCfg.DeepScrapeInterval),
		slog.Float64("min_relevance_score", pipelineCfg.MinRelevanceScore),
		slog.Int("min_confidence_score", pipelineCfg.MinConfidenceScore),
		slog.Bool("content_aggregation_enabled", pipelineCfg.ContentAggregationEnabled))

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()

	healthPort := config.LoadEnvInt("WORKER_HEALTH_PORT", 9091, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	}).Value.(int)
	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", healthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	st := buildStore(logger)
	llmChain := llm.NewChainFromEnv(logger)
	startMetricsServer(ctx, logger, llmChain)
	registry := buildCollectorRegistry(st)

	thresholds := reliability.NewThresholdCache(st, logger)
	scorer := reliability.NewScorer(st, st, logger)
	dedupStage := dedup.New(st, st, thresholds, llmChain, logger)
	enrichStage := enrich.New(llmChain, logger)
	gate := qualitygate.New(pipelineCfg.MinConfidenceScore)
	breakingDetector := breaking.New(st, logger)

	pl := pipeline.New(st, registry, dedupStage, breakingDetector, enrichStage, gate, scorer, thresholds, logger)

	location := loadTimezone(logger)
	scheduler := workerPkg.NewScheduler(pipelineCfg, pl, workerMetrics, logger, location)
	scheduler.Start()
	logger.Info("scheduler started")

	healthServer.SetReady(true)

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping scheduler")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		logger.Error("scheduler did not stop cleanly", slog.Any("error", err))
	}
	logger.Info("worker stopped")
}

// buildStore wires the PostgREST-style external store client from
// environment configuration (spec.md §6 "External dependencies").
func buildStore(logger *slog.Logger) *store.Client {
	baseURL := config.LoadEnvString("STORE_BASE_URL", "http://localhost:3000")
	apiKey := os.Getenv("STORE_API_KEY")
	bearer := os.Getenv("STORE_BEARER_TOKEN")
	logger.Info("store client configured", slog.String("base_url", baseURL))
	return store.New(baseURL, apiKey, bearer)
}

// buildCollectorRegistry wires all five per-kind collectors (spec.md §4.1)
// against a shared rate limiter, robots cache, and feed parser.
func buildCollectorRegistry(st *store.Client) *collect.Registry {
	httpClient := &http.Client{Timeout: httpFetchTimeout}
	limiter := ratelimit.New()
	robotsCache := robots.New(httpClient)
	feedParser := feed.NewParser(feedFetchTimeout)

	aggregationEnabled := config.LoadEnvBool("CONTENT_AGGREGATION_ENABLED", false).Value.(bool)

	return collect.NewRegistry(
		collect.NewFeedCollector(feedParser),
		collect.NewScrapeCollector(httpClient, limiter, robotsCache),
		collect.NewAPICollector(httpClient, aggregationEnabled),
		collect.NewSocialCollector(httpClient, aggregationEnabled),
		collect.NewTipCollector(st),
	)
}

func loadTimezone(logger *slog.Logger) *time.Location {
	name := config.LoadEnvString("WORKER_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid WORKER_TIMEZONE, falling back to UTC", slog.String("timezone", name), slog.Any("error", err))
		return time.UTC
	}
	return loc
}
