package llm

import (
	"context"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StructuredProvider is implemented by providers that can constrain the
// response to a JSON object.
type StructuredProvider interface {
	GenerateJSON(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Mode             string
	Provider         string
	Model            string
	BaseURL          string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	GoogleAPIKey     string
	RequestTimeout   time.Duration
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Mode == "local" {
		return LocalProvider{}, nil
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.RequestTimeout,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			Timeout: cfg.RequestTimeout,
		}), nil
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey: cfg.GoogleAPIKey,
			Model:  defaultIfEmpty(cfg.Model, "gemini-1.5-flash"),
		})
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// GenerateStructured asks for a JSON response when the provider supports it
// and falls back to a plain generation otherwise.
func GenerateStructured(ctx context.Context, provider Provider, messages []Message) (string, error) {
	if structured, ok := provider.(StructuredProvider); ok {
		return structured.GenerateJSON(ctx, messages)
	}
	return provider.Generate(ctx, messages)
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
