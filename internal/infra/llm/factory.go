package llm

import (
	"log/slog"
	"os"
)

// NewChainFromEnv builds the local -> cloud-A -> cloud-B fallback chain from
// environment variables, mirroring the reference deployment's OLLAMA_*,
// ANTHROPIC_API_KEY, and OPENAI_API_KEY settings. Any provider whose
// credentials/address are absent is simply omitted from the chain rather
// than aborting startup, since later stages degrade gracefully with fewer
// providers configured.
func NewChainFromEnv(logger *slog.Logger) *Chain {
	var providers []Provider

	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			model = "llama3"
		}
		providers = append(providers, NewLocalProvider(baseURL, model))
		logger.Info("local LLM provider configured", slog.String("base_url", baseURL), slog.String("model", model))
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		model := os.Getenv("ANTHROPIC_MODEL")
		providers = append(providers, NewClaudeProvider(apiKey, model))
		logger.Info("anthropic LLM provider configured")
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model := os.Getenv("OPENAI_MODEL")
		providers = append(providers, NewOpenAIProvider(apiKey, model))
		logger.Info("openai LLM provider configured")
	}

	if len(providers) == 0 {
		logger.Warn("no LLM providers configured; enrichment and classification will fail")
	}

	return NewChain(providers...)
}
