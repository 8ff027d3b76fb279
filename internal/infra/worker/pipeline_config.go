package worker

import (
	"fmt"
	"log/slog"
	"time"

	"catchup-feed/internal/pkg/config"
)

// validateUnitInterval rejects any value outside [0, 1], for MIN_RELEVANCE_SCORE.
func validateUnitInterval(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("must be in [0, 1], got %v", v)
	}
	return nil
}

// PipelineConfig holds the five named cadences and feature flags that drive
// the scheduler (spec.md §4.2, §6). Unlike the legacy single-cadence
// WorkerConfig, every interval here maps to one entity.CycleKind.
//
// Fail-open strategy matches WorkerConfig: invalid or missing environment
// values fall back to the documented defaults rather than aborting startup.
type PipelineConfig struct {
	// MainPollInterval drives the `main` cycle (feed + scrape collectors).
	// Default: 15 minutes.
	MainPollInterval time.Duration
	// WeatherPollInterval drives the `weather` cycle (api collector).
	// Default: 60 minutes.
	WeatherPollInterval time.Duration
	// TipPollInterval drives the `tips` cycle (tip collector).
	// Default: 5 minutes.
	TipPollInterval time.Duration
	// SocialPollInterval drives the `social` cycle (social collector).
	// Default: 30 minutes.
	SocialPollInterval time.Duration
	// DeepScrapeInterval drives the `deep_scrape` cycle (scrape collector,
	// wider crawl). Fixed at 6 hours; not environment-configurable
	// (spec.md §6 "plus fixed 6h deep-scrape").
	DeepScrapeInterval time.Duration

	// MinRelevanceScore seeds the adaptive threshold cache's default
	// (MIN_RELEVANCE_SCORE).
	MinRelevanceScore float64
	// MinConfidenceScore is the quality gate's global floor
	// (MIN_CONFIDENCE_SCORE).
	MinConfidenceScore int
	// ContentAggregationEnabled gates the social collector and the
	// search-vendor branch of the API collector (CONTENT_AGGREGATION_ENABLED).
	ContentAggregationEnabled bool
}

// DefaultPipelineConfig returns the documented cadence and threshold defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MainPollInterval:          15 * time.Minute,
		WeatherPollInterval:       60 * time.Minute,
		TipPollInterval:           5 * time.Minute,
		SocialPollInterval:        30 * time.Minute,
		DeepScrapeInterval:        6 * time.Hour,
		MinRelevanceScore:         0.3,
		MinConfidenceScore:        30,
		ContentAggregationEnabled: false,
	}
}

// LoadPipelineConfigFromEnv loads cadence/threshold configuration from the
// environment, falling back to defaults (with a logged warning) on any
// invalid value. It never returns an error.
//
// Environment variables:
//   - MAIN_POLL_INTERVAL (minutes, default 15)
//   - WEATHER_POLL_INTERVAL (minutes, default 60)
//   - TIP_POLL_INTERVAL (minutes, default 5)
//   - SOCIAL_POLL_INTERVAL (minutes, default 30)
//   - MIN_RELEVANCE_SCORE (float, default 0.3)
//   - MIN_CONFIDENCE_SCORE (int, default 30)
//   - CONTENT_AGGREGATION_ENABLED (bool, default false)
func LoadPipelineConfigFromEnv(logger *slog.Logger) PipelineConfig {
	cfg := DefaultPipelineConfig()

	loadMinutes := func(envKey string, field *time.Duration) {
		result := config.LoadEnvInt(envKey, int(*field/time.Minute), func(v int) error {
			return config.ValidateIntRange(v, 1, 24*60)
		})
		*field = time.Duration(result.Value.(int)) * time.Minute
		if result.FallbackApplied {
			for _, w := range result.Warnings {
				logger.Warn("pipeline config fallback applied", slog.String("field", envKey), slog.String("warning", w))
			}
		}
	}
	loadMinutes("MAIN_POLL_INTERVAL", &cfg.MainPollInterval)
	loadMinutes("WEATHER_POLL_INTERVAL", &cfg.WeatherPollInterval)
	loadMinutes("TIP_POLL_INTERVAL", &cfg.TipPollInterval)
	loadMinutes("SOCIAL_POLL_INTERVAL", &cfg.SocialPollInterval)

	relResult := config.LoadEnvFloat("MIN_RELEVANCE_SCORE", cfg.MinRelevanceScore, validateUnitInterval)
	cfg.MinRelevanceScore = relResult.Value.(float64)

	confResult := config.LoadEnvInt("MIN_CONFIDENCE_SCORE", cfg.MinConfidenceScore, func(v int) error {
		return config.ValidateIntRange(v, 0, 100)
	})
	cfg.MinConfidenceScore = confResult.Value.(int)

	cfg.ContentAggregationEnabled = config.LoadEnvBool("CONTENT_AGGREGATION_ENABLED", cfg.ContentAggregationEnabled).Value.(bool)

	return cfg
}
