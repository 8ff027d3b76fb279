// Package dedup implements the dedup+classify pipeline stage: local
// fingerprint dedup, cross-language dedup, and batched LLM classification
// (spec.md §4.3).
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fingerprint"
	"catchup-feed/internal/infra/llm"
	"catchup-feed/internal/infra/text"
)

// batchSize is the classification batch size (spec.md §4.3 Phase C).
const batchSize = 5

// crossLangCandidateWindow is how many recent crawl-history rows Phase B
// considers before filtering to opposite-language candidates.
const crossLangCandidateWindow = 20

// crossLangTopN is how many opposite-language candidates are actually sent
// to the LLM per article.
const crossLangTopN = 3

// crossLangConfidenceThreshold is the minimum LLM-reported confidence to
// accept a cross-language "same story" match.
const crossLangConfidenceThreshold = 0.7

// CrawlHistoryReader is the subset of the store the dedup stage reads from.
type CrawlHistoryReader interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.CrawlHistoryRecord, error)
	RecentRelevant(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error)
}

// SourceMarker marks a source "fetched now" once per source per cycle
// (spec.md §9: a latent bug in the original fixed here — not once per
// article).
type SourceMarker interface {
	MarkFetched(ctx context.Context, sourceID string) error
}

// ThresholdProvider resolves the effective relevance threshold for a set of
// topics, from the adaptive-threshold cache (spec.md §4.8).
type ThresholdProvider interface {
	EffectiveThreshold(topics []entity.Topic) float64
}

// Stage is the dedup+classify pipeline stage.
type Stage struct {
	history    CrawlHistoryReader
	sources    SourceMarker
	thresholds ThresholdProvider
	llmChain   *llm.Chain
	logger     *slog.Logger
}

// New builds the dedup+classify stage.
func New(history CrawlHistoryReader, sources SourceMarker, thresholds ThresholdProvider, llmChain *llm.Chain, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{history: history, sources: sources, thresholds: thresholds, llmChain: llmChain, logger: logger}
}

// classificationResult is one entry of the batched-classification LLM response.
type classificationResult struct {
	RelevanceScore float64         `json:"relevance_score"`
	Topics         []entity.Topic  `json:"topics"`
	GeoTags        []entity.GeoTag `json:"geo_tags"`
	Priority       entity.Priority `json:"priority"`
	Reasoning      string          `json:"reasoning"`
}

// sameStoryResult is the cross-language dedup yes/no LLM response.
type sameStoryResult struct {
	IsSameStory bool    `json:"is_same_story"`
	Confidence  float64 `json:"confidence"`
}

// Run processes raw articles through local dedup, cross-language dedup, and
// batched classification, returning classified survivors and rejects
// (duplicates + below-threshold) separately so the caller can route them.
func (s *Stage) Run(ctx context.Context, raw []entity.RawArticle) (classified, rejected []entity.ClassifiedArticle) {
	var survivors []entity.RawArticle

	for _, a := range raw {
		fp := fingerprint.SimHash(a.Title + " " + a.Body)

		if dup := s.localDuplicate(ctx, fp); dup != nil {
			rejected = append(rejected, dupResult(a, fp, dup.ID, "Duplicate of existing article"))
			continue
		}

		if match := s.crossLanguageDuplicate(ctx, a); match != "" {
			rejected = append(rejected, dupResult(a, fp, match, "Cross-language duplicate: matched existing article"))
			continue
		}

		survivors = append(survivors, a)
	}

	fetchedSources := make(map[string]bool)
	for start := 0; start < len(survivors); start += batchSize {
		end := min(start+batchSize, len(survivors))
		batch := survivors[start:end]

		results := s.classifyBatch(ctx, batch)
		for i, a := range batch {
			fp := fingerprint.SimHash(a.Title + " " + a.Body)
			r := results[i]

			ca := entity.ClassifiedArticle{
				Raw:            a,
				Fingerprint:    fp,
				RelevanceScore: r.RelevanceScore,
				Topics:         r.Topics,
				GeoTags:        r.GeoTags,
				Priority:       r.Priority,
				Reasoning:      r.Reasoning,
			}

			threshold := s.thresholds.EffectiveThreshold(r.Topics)
			if r.RelevanceScore >= threshold {
				classified = append(classified, ca)
			} else {
				rejected = append(rejected, ca)
			}

			if !fetchedSources[a.SourceID] {
				fetchedSources[a.SourceID] = true
			}
		}
	}

	// spec.md §4.3: mark the source fetched once per source per cycle, at
	// the end — not once per article (a documented fix of a latent bug).
	for sourceID := range fetchedSources {
		if err := s.sources.MarkFetched(ctx, sourceID); err != nil {
			s.logger.Warn("mark source fetched failed", slog.String("source_id", sourceID), slog.Any("error", err))
		}
	}

	return classified, rejected
}

func dupResult(a entity.RawArticle, fp, canonicalID, reason string) entity.ClassifiedArticle {
	return entity.ClassifiedArticle{
		Raw:           a,
		Fingerprint:   fp,
		IsDuplicate:   true,
		DuplicateOfID: canonicalID,
		Reasoning:     reason,
	}
}

// localDuplicate implements Phase A: exact fingerprint lookup.
func (s *Stage) localDuplicate(ctx context.Context, fp string) *entity.CrawlHistoryRecord {
	rec, err := s.history.FindByFingerprint(ctx, fp)
	if err != nil {
		s.logger.Warn("local dedup lookup failed", slog.Any("error", err))
		return nil
	}
	return rec
}

// crossLanguageDuplicate implements Phase B. It is skipped for social and
// tip source kinds (spec.md §4.3: "rarely cross-language dupes").
func (s *Stage) crossLanguageDuplicate(ctx context.Context, a entity.RawArticle) string {
	if a.SourceKind == entity.SourceKindSocial || a.SourceKind == entity.SourceKindTip {
		return ""
	}

	recent, err := s.history.RecentRelevant(ctx, crossLangCandidateWindow)
	if err != nil {
		s.logger.Warn("cross-language dedup candidate lookup failed", slog.Any("error", err))
		return ""
	}

	articleHasCJK := text.HasCJK(a.Title)
	var candidates []entity.CrawlHistoryRecord
	for _, rec := range recent {
		title, _ := rec.ClassificationData["title"].(string)
		if text.HasCJK(title) != articleHasCJK {
			candidates = append(candidates, rec)
		}
		if len(candidates) >= crossLangTopN {
			break
		}
	}

	for _, cand := range candidates {
		candTitle, _ := cand.ClassificationData["title"].(string)
		result, err := s.askSameStory(ctx, a, candTitle)
		if err != nil {
			s.logger.Warn("cross-language same-story check failed", slog.Any("error", err))
			continue
		}
		if result.IsSameStory && result.Confidence >= crossLangConfidenceThreshold {
			return cand.ID
		}
	}
	return ""
}

func (s *Stage) askSameStory(ctx context.Context, a entity.RawArticle, candidateTitle string) (sameStoryResult, error) {
	prompt := fmt.Sprintf(
		"Article A title: %q\nArticle A body: %q\nArticle B title: %q\n\n"+
			"Do articles A and B report the same underlying news story, possibly in a different "+
			"language? Respond with JSON only: {\"is_same_story\": bool, \"confidence\": number 0-1}.",
		a.Title, text.Truncate(a.Body, 500), candidateTitle,
	)

	var result sameStoryResult
	err := llm.GenerateJSON(ctx, s.llmChain, llm.Request{
		SystemPrompt: "You are a news deduplication assistant. Answer only with the requested JSON.",
		UserPrompt:   prompt,
		Temperature:  0,
	}, &result)
	return result, err
}

// classifyBatch implements Phase C: send the whole batch as one LLM call,
// with per-article fallback when the batch response is malformed.
func (s *Stage) classifyBatch(ctx context.Context, batch []entity.RawArticle) []classificationResult {
	results, err := s.tryBatchCall(ctx, batch)
	if err == nil && len(results) == len(batch) {
		return results
	}
	if err != nil {
		s.logger.Warn("batch classification failed, falling back to per-article", slog.Any("error", err))
	} else {
		s.logger.Warn("batch classification length mismatch, falling back to per-article",
			slog.Int("expected", len(batch)), slog.Int("got", len(results)))
	}

	out := make([]classificationResult, len(batch))
	for i, a := range batch {
		r, err := s.classifyOne(ctx, a)
		if err != nil {
			out[i] = classificationResult{
				RelevanceScore: 0,
				Priority:       entity.PriorityLow,
				Reasoning:      fmt.Sprintf("classification failed: %v", err),
			}
			continue
		}
		out[i] = r
	}
	return out
}

func (s *Stage) tryBatchCall(ctx context.Context, batch []entity.RawArticle) ([]classificationResult, error) {
	prompt := buildBatchPrompt(batch)

	var raw string
	err := func() error {
		var innerErr error
		raw, innerErr = s.llmChain.Generate(ctx, llm.Request{
			SystemPrompt: classificationSystemPrompt,
			UserPrompt:   prompt,
			Temperature:  0,
		})
		return innerErr
	}()
	if err != nil {
		return nil, err
	}

	cleaned := llm.StripCodeFences(raw)
	return unwrapClassificationArray(cleaned, len(batch))
}

func (s *Stage) classifyOne(ctx context.Context, a entity.RawArticle) (classificationResult, error) {
	prompt := buildBatchPrompt([]entity.RawArticle{a})
	var results []classificationResult
	err := llm.GenerateJSON(ctx, s.llmChain, llm.Request{
		SystemPrompt: classificationSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0,
	}, &results)
	if err != nil || len(results) != 1 {
		return classificationResult{}, fmt.Errorf("per-article classification failed: %w", err)
	}
	return results[0], nil
}

const classificationSystemPrompt = "You classify local news articles for a Niseko, Hokkaido publication. " +
	"Respond only with a JSON array, one object per article in input order, each with " +
	"relevance_score (0-1), topics (array from the closed vocabulary), geo_tags (array from the closed vocabulary), " +
	"priority (breaking|high|normal|low), and reasoning (short string)."

func buildBatchPrompt(batch []entity.RawArticle) string {
	var b strings.Builder
	b.WriteString("Classify the following articles:\n\n")
	for i, a := range batch {
		fmt.Fprintf(&b, "%d. Title: %s\nBody: %s\n\n", i+1, a.Title, text.Truncate(a.Body, 1000))
	}
	return b.String()
}

// unwrapClassificationArray parses cleaned as a JSON array of classification
// results directly, then falls back to unwrapping known wrapper keys if the
// model wrapped the array in an envelope object (spec.md §4.3 Phase C).
func unwrapClassificationArray(cleaned string, want int) ([]classificationResult, error) {
	var direct []classificationResult
	if err := unmarshalStrict(cleaned, &direct); err == nil {
		return direct, nil
	}

	for _, key := range []string{"articles", "results", "classifications"} {
		var wrapper map[string][]classificationResult
		if err := unmarshalStrict(cleaned, &wrapper); err == nil {
			if v, ok := wrapper[key]; ok {
				return v, nil
			}
		}
	}

	return nil, fmt.Errorf("could not parse classification array (wanted %d entries)", want)
}

func unmarshalStrict(s string, out any) error {
	return json.Unmarshal([]byte(s), out)
}
