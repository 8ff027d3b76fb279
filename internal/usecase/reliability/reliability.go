// Package reliability implements the source reliability score recompute and
// the adaptive per-topic relevance threshold feedback loop (spec.md §4.8).
package reliability

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/store"
)

// reliabilityWindow is how many of a source's most recent relevant crawl
// records feed the reliability score.
const reliabilityWindow = 100

// thresholdWindow is how many of the most recent relevant crawl records
// (across all sources) feed the adaptive threshold refresh.
const thresholdWindow = 1000

// minTopicSamples below which a topic's threshold is left untouched.
const minTopicSamples = 10

// DefaultRelevanceThreshold is used for any topic with no cached adaptive
// threshold yet (e.g. a brand-new topic, or before the first refresh).
// Mirrors MIN_RELEVANCE_SCORE (spec.md §6).
const DefaultRelevanceThreshold = 0.3

// maxAdjustment bounds how far a topic's threshold may move from
// DefaultRelevanceThreshold in a single refresh.
const maxAdjustment = 0.15

// minThreshold and maxThreshold clamp every cached threshold.
const (
	minThreshold = 0.15
	maxThreshold = 0.80
)

// acceptHighWatermark and acceptLowWatermark are the acceptance-rate
// breakpoints that drive the linear adjustment (spec.md §4.8).
const (
	acceptHighWatermark = 0.6
	acceptLowWatermark  = 0.2
)

// HistoryReader is the subset of the store the reliability package reads
// crawl-history analytics from.
type HistoryReader interface {
	RecentRelevantWindow(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error)
}

// ScoreWriter persists a recomputed reliability score.
type ScoreWriter interface {
	UpdateReliabilityScore(ctx context.Context, sourceID string, score float64) error
}

// Scorer recomputes a single source's reliability score.
type Scorer struct {
	history HistoryReader
	scores  ScoreWriter
	logger  *slog.Logger
}

// NewScorer builds a source reliability scorer.
func NewScorer(history HistoryReader, scores ScoreWriter, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{history: history, scores: scores, logger: logger}
}

// TriggerRecompute runs the reliability recompute for one source
// synchronously from the caller's goroutine; callers that need
// fire-and-forget semantics (the field-note creator) wrap this in `go`.
func (s *Scorer) TriggerRecompute(sourceID string) {
	go func() {
		ctx := context.Background()
		if err := s.Recompute(ctx, sourceID); err != nil {
			s.logger.Warn("reliability recompute failed", slog.String("source_id", sourceID), slog.Any("error", err))
		}
	}()
}

// Recompute computes and persists one source's reliability score: over its
// last 100 relevant crawl records, published/relevant*100 rounded to one
// decimal. A missing reliability_score column is tolerated.
func (s *Scorer) Recompute(ctx context.Context, sourceID string) error {
	records, err := s.history.RecentRelevantWindow(ctx, reliabilityWindow)
	if err != nil {
		return err
	}

	var published, relevant int
	for _, rec := range records {
		if rec.SourceFeedID != sourceID || !rec.WasRelevant {
			continue
		}
		relevant++
		if rec.Status == entity.CrawlStatusProcessed {
			published++
		}
	}
	if relevant == 0 {
		return nil
	}

	score := math.Round(float64(published)/float64(relevant)*100*10) / 10

	if err := s.scores.UpdateReliabilityScore(ctx, sourceID, score); err != nil {
		if errors.Is(err, store.ErrMissingColumn) {
			s.logger.Info("reliability_score column missing, skipping persist", slog.String("source_id", sourceID))
			return nil
		}
		return err
	}
	return nil
}

// ThresholdCache holds the adaptive per-topic relevance thresholds,
// refreshed once per cycle and read many times during classification.
// Readers never block on a refresh: they see the last published snapshot
// via an atomic pointer swap (SPEC_FULL.md's resolution of the "is the
// refresh truly async" open question).
type ThresholdCache struct {
	snapshot atomic.Pointer[map[entity.Topic]float64]
	history  HistoryReader
	logger   *slog.Logger
	mu       sync.Mutex // serializes concurrent Refresh calls
}

// NewThresholdCache builds an empty adaptive-threshold cache; until the
// first Refresh, EffectiveThreshold always returns DefaultRelevanceThreshold.
func NewThresholdCache(history HistoryReader, logger *slog.Logger) *ThresholdCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ThresholdCache{history: history, logger: logger}
	empty := map[entity.Topic]float64{}
	c.snapshot.Store(&empty)
	return c
}

// RefreshAsync kicks off a background refresh and returns immediately.
func (c *ThresholdCache) RefreshAsync(ctx context.Context) {
	go func() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("adaptive threshold refresh failed", slog.Any("error", err))
		}
	}()
}

// Refresh recomputes every topic's threshold from the most recent 1,000
// relevant crawl records and atomically publishes the new snapshot.
func (c *ThresholdCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.history.RecentRelevantWindow(ctx, thresholdWindow)
	if err != nil {
		return err
	}

	type tally struct{ published, relevant int }
	byTopic := map[entity.Topic]*tally{}

	for _, rec := range records {
		if !rec.WasRelevant {
			continue
		}
		topics, _ := rec.ClassificationData["topics"].([]entity.Topic)
		for _, t := range topics {
			if byTopic[t] == nil {
				byTopic[t] = &tally{}
			}
			byTopic[t].relevant++
			if rec.Status == entity.CrawlStatusProcessed {
				byTopic[t].published++
			}
		}
	}

	next := map[entity.Topic]float64{}
	for topic, tl := range byTopic {
		if tl.relevant < minTopicSamples {
			continue
		}
		acceptance := float64(tl.published) / float64(tl.relevant)
		next[topic] = adjustThreshold(acceptance)
	}

	c.snapshot.Store(&next)
	return nil
}

// adjustThreshold implements the spec.md §4.8 linear adjustment:
// acceptance > 0.6 lowers the threshold (more permissive), acceptance < 0.2
// raises it (stricter), clamped to [minThreshold, maxThreshold].
func adjustThreshold(acceptance float64) float64 {
	threshold := DefaultRelevanceThreshold

	switch {
	case acceptance > acceptHighWatermark:
		frac := (acceptance - acceptHighWatermark) / (1.0 - acceptHighWatermark)
		threshold -= maxAdjustment * math.Min(frac, 1.0)
	case acceptance < acceptLowWatermark:
		frac := (acceptLowWatermark - acceptance) / acceptLowWatermark
		threshold += maxAdjustment * math.Min(frac, 1.0)
	}

	return math.Max(minThreshold, math.Min(maxThreshold, threshold))
}

// EffectiveThreshold returns the minimum cached threshold across topics
// (most permissive wins), or DefaultRelevanceThreshold if none of the
// article's topics has a cached value yet.
func (c *ThresholdCache) EffectiveThreshold(topics []entity.Topic) float64 {
	snap := *c.snapshot.Load()

	best := -1.0
	for _, t := range topics {
		if v, ok := snap[t]; ok {
			if best < 0 || v < best {
				best = v
			}
		}
	}
	if best < 0 {
		return DefaultRelevanceThreshold
	}
	return best
}
