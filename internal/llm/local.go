package llm

import (
	"context"
	"errors"
)

// ErrLocalMode is returned by LocalProvider for every call. Local mode runs
// the pipeline entirely on its fallback paths.
var ErrLocalMode = errors.New("local LLM mode has no model backend")

type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return "", ErrLocalMode
}
