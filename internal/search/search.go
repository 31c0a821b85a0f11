package search

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type Config struct {
	Provider       string
	TavilyAPIKey   string
	TavilyBaseURL  string
	FallbackToStub bool
	RatePerSecond  float64
	RequestTimeout time.Duration
	Redis          *redis.Client
	CacheTTL       time.Duration
}

// NewProvider composes the configured search backend. Layers from the
// outside in: cache, rate limit, fallback to stub, live provider.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var provider Provider
	switch cfg.Provider {
	case "", "stub":
		provider = StubProvider{}
	case "tavily":
		provider = NewTavilyProvider(TavilyConfig{
			APIKey:  cfg.TavilyAPIKey,
			BaseURL: cfg.TavilyBaseURL,
			Timeout: cfg.RequestTimeout,
		})
		if cfg.FallbackToStub {
			provider = WithFallback(provider, StubProvider{}, logger)
		}
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
	if cfg.RatePerSecond > 0 {
		provider = NewRateLimited(provider, cfg.RatePerSecond)
	}
	if cfg.Redis != nil {
		provider = NewCached(provider, cfg.Redis, cfg.CacheTTL, logger)
	}
	return provider, nil
}
