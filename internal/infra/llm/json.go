package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateJSON calls chain.Generate and unmarshals the result into out after
// stripping a leading/trailing ```json or bare ``` code fence, matching the
// reference client's response-cleaning step for JSON-returning prompts.
func GenerateJSON(ctx context.Context, chain *Chain, req Request, out any) error {
	raw, err := chain.Generate(ctx, req)
	if err != nil {
		return err
	}

	cleaned := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("llm: parse JSON response: %w", err)
	}
	return nil
}

// StripCodeFences removes a single leading/trailing markdown code fence
// (```json ... ``` or ``` ... ```) from s, leaving other text untouched.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
