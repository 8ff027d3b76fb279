package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"catchup-feed/internal/resilience/circuitbreaker"
	"catchup-feed/internal/resilience/retry"
)

// LocalProvider talks to a self-hosted Ollama-compatible /api/generate
// endpoint. It is the first link in the chain: cheap, private, and the only
// provider whose connection failures trigger fallback to the cloud tier.
type LocalProvider struct {
	baseURL        string
	model          string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewLocalProvider(baseURL, model string) *LocalProvider {
	return &LocalProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.LocalModelConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

func (l *LocalProvider) Name() string { return "local" }

type ollamaGenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (l *LocalProvider) Generate(ctx context.Context, req Request) (string, error) {
	var result string

	retryErr := retry.WithBackoff(ctx, l.retryConfig, func() error {
		cbResult, err := l.circuitBreaker.Execute(func() (interface{}, error) {
			return l.doGenerate(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("%w: local model circuit breaker open", ErrConnection)
			}
			return err
		}
		result = cbResult.(string)
		return nil
	})

	if retryErr != nil {
		return "", classifyError(retryErr)
	}
	return result, nil
}

func (l *LocalProvider) doGenerate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   l.model,
		Prompt:  req.UserPrompt,
		System:  req.SystemPrompt,
		Stream:  false,
		Options: options{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("local provider: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("local provider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("local provider: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("local provider: decode response: %w", err)
	}
	return out.Response, nil
}
