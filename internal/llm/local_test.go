package llm

import (
	"context"
	"errors"
	"testing"
)

func TestLocalProvider_AlwaysFails(t *testing.T) {
	provider := LocalProvider{}

	for _, messages := range [][]Message{
		nil,
		{{Role: "user", Content: "Hello"}},
		{{Role: "system", Content: "You plan research."}, {Role: "user", Content: "inflation"}},
	} {
		result, err := provider.Generate(context.Background(), messages)
		if !errors.Is(err, ErrLocalMode) {
			t.Fatalf("expected ErrLocalMode, got %v", err)
		}
		if result != "" {
			t.Fatalf("expected empty result, got %q", result)
		}
	}
}

func TestLocalProvider_StructuredFallsBackToGenerate(t *testing.T) {
	_, err := GenerateStructured(context.Background(), LocalProvider{}, []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrLocalMode) {
		t.Fatalf("expected ErrLocalMode, got %v", err)
	}
}
