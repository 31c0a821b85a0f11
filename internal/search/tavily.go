package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
)

type TavilyConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type TavilyProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewTavilyProvider(cfg TavilyConfig) *TavilyProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &TavilyProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	results, err := p.search(ctx, query, maxResults)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequests.WithLabelValues("tavily", status).Inc()
	return results, err
}

func (p *TavilyProvider) search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if p.apiKey == "" {
		return nil, errors.New("missing API key for search provider")
	}
	body, err := json.Marshal(map[string]any{
		"query":               query,
		"max_results":         maxResults,
		"search_depth":        "advanced",
		"include_raw_content": false,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search request failed: %s", resp.Status)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Untitled"
		}
		results = append(results, Result{
			Title:   title,
			URL:     strings.TrimSpace(item.URL),
			Content: cleanContent(item.Content),
		})
	}
	return results, nil
}
