package llm

import (
	"context"
	"errors"
	"testing"
)

type stubGenerator struct {
	response string
	calls    int
}

func (s *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.response, nil
}

func (s *stubGenerator) GetModel() string { return "stub-model" }

func TestRateLimitedGenerator_NonPositiveRateReturnsInner(t *testing.T) {
	inner := &stubGenerator{response: "hi"}

	got := NewRateLimitedGenerator(inner, 0, 1)
	if got != TextGenerator(inner) {
		t.Error("NewRateLimitedGenerator(inner, 0, 1) should return inner unchanged")
	}

	got = NewRateLimitedGenerator(inner, -5, 1)
	if got != TextGenerator(inner) {
		t.Error("NewRateLimitedGenerator(inner, -5, 1) should return inner unchanged")
	}
}

func TestRateLimitedGenerator_Delegates(t *testing.T) {
	inner := &stubGenerator{response: "summary text"}
	gen := NewRateLimitedGenerator(inner, 6000, 10)

	out, err := gen.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}
	if out != "summary text" {
		t.Errorf("Complete() = %q, want %q", out, "summary text")
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
	if gen.GetModel() != "stub-model" {
		t.Errorf("GetModel() = %q, want %q", gen.GetModel(), "stub-model")
	}
}

func TestRateLimitedGenerator_CancelledContext(t *testing.T) {
	inner := &stubGenerator{response: "never"}
	gen := NewRateLimitedGenerator(inner, 60, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Complete(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner called %d times while context cancelled, want 0", inner.calls)
	}
}
