package llm

import "testing"

func TestStripCodeFencesJSON(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := StripCodeFences(in); got != `{"a":1}` {
		t.Fatalf("expected fence stripped, got %q", got)
	}
}

func TestStripCodeFencesBare(t *testing.T) {
	in := "```\n{\"a\":1}\n```"
	if got := StripCodeFences(in); got != `{"a":1}` {
		t.Fatalf("expected bare fence stripped, got %q", got)
	}
}

func TestStripCodeFencesNoFence(t *testing.T) {
	in := `{"a":1}`
	if got := StripCodeFences(in); got != in {
		t.Fatalf("expected unchanged input, got %q", got)
	}
}
