// Package enrich implements the 5W1H extraction pipeline stage
// (spec.md §4.5): optional Japanese translation followed by LLM-driven
// who/what/when/where/why/how extraction.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/llm"
)

// minimalConfidence is the confidence assigned to a synthesized fallback
// EnrichedArticle when enrichment fails outright (spec.md §4.5 step 4).
const minimalConfidence = 10

// defaultConfidence is used when the LLM's response omits confidence
// (spec.md §4.5 step 3).
const defaultConfidence = 50

// Stage is the enrichment pipeline stage.
type Stage struct {
	llmChain *llm.Chain
	logger   *slog.Logger
}

// New builds the enrichment stage.
func New(llmChain *llm.Chain, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{llmChain: llmChain, logger: logger}
}

// translationResult is the shape of the translate-to-English LLM response.
type translationResult struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
}

// extractionResult is the shape of the 5W1H LLM response.
type extractionResult struct {
	Who   string `json:"who"`
	What  string `json:"what"`
	When  string `json:"when"`
	Where string `json:"where"`
	Why   string `json:"why"`
	How   string `json:"how"`

	Quotes []struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		Translation string `json:"translation"`
		Context     string `json:"context"`
	} `json:"quotes"`
	EvidenceRefs []struct {
		Kind        string `json:"kind"`
		URL         string `json:"url"`
		Description string `json:"description"`
	} `json:"evidence_refs"`
	RiskFlags []struct {
		Kind        entity.RiskFlagKind `json:"kind"`
		Description string              `json:"description"`
		Severity    entity.Severity     `json:"severity"`
	} `json:"risk_flags"`
	FactCheck  []string `json:"fact_check"`
	Confidence *int     `json:"confidence"`
}

// RunOne enriches a single classified article, never returning an error: on
// any failure it synthesizes a minimal EnrichedArticle per spec.md §4.5 step 4.
func (s *Stage) RunOne(ctx context.Context, ca entity.ClassifiedArticle) entity.EnrichedArticle {
	title, body := ca.Raw.Title, ca.Raw.Body
	translated := false

	if ca.Raw.Language == entity.LanguageJapanese {
		t, err := s.translate(ctx, ca.Raw.Title, ca.Raw.Body)
		if err != nil {
			s.logger.Warn("translation failed, using original text", slog.Any("error", err))
		} else {
			title, body = t.Title, t.Body
			translated = true
		}
	}

	result, err := s.extract(ctx, ca, title, body)
	if err != nil {
		return minimalEnriched(ca, err)
	}

	ea := entity.EnrichedArticle{
		Classified: ca,
		Who:        result.Who,
		What:       result.What,
		When:       result.When,
		Where:      result.Where,
		Why:        result.Why,
		How:        result.How,
		FactCheck:  result.FactCheck,
	}
	if ea.What == "" {
		ea.What = ca.Raw.Title
	}
	if result.Confidence != nil {
		ea.Confidence = clampConfidence(*result.Confidence)
	} else {
		ea.Confidence = defaultConfidence
	}

	for _, q := range result.Quotes {
		ea.Quotes = append(ea.Quotes, entity.Quote{
			Speaker:     q.Speaker,
			Text:        q.Text,
			Translation: q.Translation,
			Context:     q.Context,
		})
	}
	for _, e := range result.EvidenceRefs {
		ea.EvidenceRefs = append(ea.EvidenceRefs, entity.EvidenceRef{
			Kind:        e.Kind,
			URL:         e.URL,
			Description: e.Description,
		})
	}
	for _, f := range result.RiskFlags {
		ea.RiskFlags = append(ea.RiskFlags, entity.RiskFlag{
			Kind:        f.Kind,
			Description: f.Description,
			Severity:    f.Severity,
		})
	}

	if translated {
		ea.SourceLog = append(ea.SourceLog, "translated from ja")
	}
	return ea
}

// Run enriches a batch of classified survivors, one LLM call per article.
func (s *Stage) Run(ctx context.Context, survivors []entity.ClassifiedArticle) []entity.EnrichedArticle {
	out := make([]entity.EnrichedArticle, len(survivors))
	for i, ca := range survivors {
		out[i] = s.RunOne(ctx, ca)
	}
	return out
}

func (s *Stage) translate(ctx context.Context, title, body string) (translationResult, error) {
	prompt := fmt.Sprintf(
		"Translate the following Japanese news article to English. Respond with JSON only: "+
			"{\"title\": string, \"body\": string, \"summary\": string}.\n\nTitle: %s\n\nBody: %s",
		title, body,
	)
	var result translationResult
	err := llm.GenerateJSON(ctx, s.llmChain, llm.Request{
		SystemPrompt: "You are a precise Japanese-to-English news translator.",
		UserPrompt:   prompt,
		Temperature:  0,
	}, &result)
	return result, err
}

func (s *Stage) extract(ctx context.Context, ca entity.ClassifiedArticle, title, body string) (extractionResult, error) {
	published := "Unknown"
	if ca.Raw.PublishedAt != nil {
		published = ca.Raw.PublishedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	prompt := fmt.Sprintf(
		"Extract structured journalism fields from this article.\n\n"+
			"Source: %s\nLanguage: %s\nPublished: %s\nTitle: %s\nBody: %s\n\n"+
			"Respond with JSON only, shape: {\"who\":string,\"what\":string,\"when\":string,"+
			"\"where\":string,\"why\":string,\"how\":string,"+
			"\"quotes\":[{\"speaker\":string,\"text\":string,\"translation\":string,\"context\":string}],"+
			"\"evidence_refs\":[{\"kind\":string,\"url\":string,\"description\":string}],"+
			"\"risk_flags\":[{\"kind\":string,\"description\":string,\"severity\":\"low\"|\"medium\"|\"high\"}],"+
			"\"fact_check\":[string],\"confidence\":integer 0-100}. "+
			"\"what\" is required; omit fields you cannot determine rather than guessing.",
		ca.Raw.SourceName, ca.Raw.Language, published, title, body,
	)

	var result extractionResult
	err := llm.GenerateJSON(ctx, s.llmChain, llm.Request{
		SystemPrompt: "You are an editorial assistant extracting structured facts from news articles.",
		UserPrompt:   prompt,
		Temperature:  0,
	}, &result)
	return result, err
}

func minimalEnriched(ca entity.ClassifiedArticle, cause error) entity.EnrichedArticle {
	return entity.EnrichedArticle{
		Classified: ca,
		What:       ca.Raw.Title,
		Confidence: minimalConfidence,
		SourceLog:  []string{fmt.Sprintf("enrichment failed: %v", cause)},
	}
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
