// Package llm provides the provider-chain LLM client used by classification,
// enrichment, translation, and cross-language dedup: try the local provider
// first, fall back to cloud providers on connection failure only.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request is the uniform shape every provider call takes.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
}

// Provider is a single LLM backend in the fallback chain.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrConnection should wrap any error from a Provider that represents a
// connection failure or timeout reaching the backend (as opposed to an HTTP
// 4xx/5xx from a reachable backend, or a malformed response). Only this class
// of error triggers fallback to the next provider in the chain for the
// *primary* provider; subsequent providers fall back on any error.
var ErrConnection = errors.New("llm: connection error")

// ErrAllProvidersUnavailable is returned when every configured provider in
// the chain has failed.
var ErrAllProvidersUnavailable = errors.New("llm: no provider available")

// Chain tries its providers in order. The first provider is only skipped on
// ErrConnection-class failures; every provider after the first is skipped on
// any error at all, matching the reference client's narrow-then-broad catch.
type Chain struct {
	providers []Provider
}

// NewChain builds a provider chain from local, cloud-A, and cloud-B in
// priority order. Pass nil for any provider that isn't configured.
func NewChain(providers ...Provider) *Chain {
	var nonNil []Provider
	for _, p := range providers {
		if p != nil {
			nonNil = append(nonNil, p)
		}
	}
	return &Chain{providers: nonNil}
}

// Generate tries each provider in order per the fallback rules above.
func (c *Chain) Generate(ctx context.Context, req Request) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrAllProvidersUnavailable
	}

	for i, p := range c.providers {
		out, err := p.Generate(ctx, req)
		if err == nil {
			return out, nil
		}

		isPrimary := i == 0
		if isPrimary && !errors.Is(err, ErrConnection) {
			return "", fmt.Errorf("llm: primary provider %s failed with non-connection error: %w", p.Name(), err)
		}
		// primary-with-connection-error, or any non-primary error: fall through
	}

	return "", ErrAllProvidersUnavailable
}

// CheckHealth reports whether the first configured provider is reachable.
func (c *Chain) CheckHealth(ctx context.Context) error {
	if len(c.providers) == 0 {
		return ErrAllProvidersUnavailable
	}
	_, err := c.providers[0].Generate(ctx, Request{UserPrompt: "ping", Temperature: 0})
	return err
}
