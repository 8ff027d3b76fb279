package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLocalProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"ok","done":true}`))
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama3")
	out, err := p.Generate(context.Background(), Request{UserPrompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected ok, got %q", out)
	}
}

func TestLocalProviderConnectionErrorWraps(t *testing.T) {
	p := NewLocalProvider("http://127.0.0.1:1", "llama3")
	p.retryConfig.MaxAttempts = 1
	_, err := p.Generate(context.Background(), Request{UserPrompt: "hi"})
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
}
