package search

import (
	"context"

	"go.uber.org/zap"
)

type fallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *zap.Logger
}

// WithFallback returns a provider that answers from secondary whenever
// primary fails. A cancelled context is not treated as a provider failure.
func WithFallback(primary, secondary Provider, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

func (f *fallbackProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	results, err := f.primary.Search(ctx, query, maxResults)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.logger.Warn("search provider failed, using fallback",
		zap.String("query", query),
		zap.Error(err),
	)
	return f.secondary.Search(ctx, query, maxResults)
}
