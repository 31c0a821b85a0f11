package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiConfig struct {
	APIKey string
	Model  string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiProvider struct {
	client   *genai.Client
	newModel func(system string, jsonMode bool) contentGenerator
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key for remote provider")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		client: client,
		newModel: func(system string, jsonMode bool) contentGenerator {
			// A fresh model per call keeps per-request settings off shared state.
			model := client.GenerativeModel(cfg.Model)
			if system != "" {
				model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
			}
			if jsonMode {
				model.ResponseMIMEType = "application/json"
			}
			return model
		},
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return p.generate(ctx, messages, false)
}

func (p *GeminiProvider) GenerateJSON(ctx context.Context, messages []Message) (string, error) {
	return p.generate(ctx, messages, true)
}

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *GeminiProvider) generate(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	var system []string
	parts := []genai.Part{}
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	if len(parts) == 0 {
		return "", errors.New("LLM request had no user content")
	}
	resp, err := p.newModel(strings.Join(system, "\n\n"), jsonMode).GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(firstText(resp))
	if content == "" {
		return "", errors.New("LLM response was empty")
	}
	return content, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				return string(text)
			}
		}
	}
	return ""
}
