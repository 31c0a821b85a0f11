// Package app builds the long-lived collaborators both binaries share from
// configuration.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/search"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store/memory"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store/postgres"
)

var (
	newLLMProvider = llm.NewProvider
	openPostgres   = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
)

// Pipeline holds the three stage executors and the clients they own.
type Pipeline struct {
	Planner    *research.Planner
	Researcher *research.Researcher
	Writer     *research.Writer
	Redis      *redis.Client
}

func NewPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts := research.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := research.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}

	model, err := newLLMProvider(ctx, llm.Config{
		Mode:             cfg.LLMMode,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		GoogleAPIKey:     cfg.GoogleAPIKey,
		RequestTimeout:   cfg.LLMCallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	searcher, err := search.NewProvider(search.Config{
		Provider:       cfg.SearchProvider,
		TavilyAPIKey:   cfg.TavilyAPIKey,
		TavilyBaseURL:  cfg.TavilyBaseURL,
		FallbackToStub: cfg.SearchFallbackToStub,
		RatePerSecond:  cfg.SearchRatePerSecond,
		RequestTimeout: cfg.SearchCallTimeout,
		Redis:          redisClient,
		CacheTTL:       cfg.SearchCacheTTL,
	}, logger.Named("search"))
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("search: %w", err)
	}

	opts := []research.Option{
		research.WithPrompts(prompts),
		research.WithCallTimeout(cfg.LLMCallTimeout),
		research.WithLogger(logger.Named("research")),
	}
	limits := research.DefaultResearchLimits()
	limits.MaxQueries = cfg.ResearchMaxQueries
	limits.MaxResults = cfg.ResearchMaxResults
	limits.Concurrency = cfg.ResearchConcurrency

	return &Pipeline{
		Planner:    research.NewPlanner(model, opts...),
		Researcher: research.NewResearcher(searcher, model, limits, opts...),
		Writer:     research.NewWriter(model, opts...),
		Redis:      redisClient,
	}, nil
}

func (p *Pipeline) Stages() []research.Stage {
	return []research.Stage{
		{Name: research.StagePlan, Run: p.Planner.Run},
		{Name: research.StageResearch, Run: p.Researcher.Run},
		{Name: research.StageWrite, Run: p.Writer.Run},
	}
}

// PingRedis reports cache reachability; nil when no cache is configured.
func (p *Pipeline) PingRedis(ctx context.Context) error {
	if p.Redis == nil {
		return nil
	}
	return p.Redis.Ping(ctx).Err()
}

func (p *Pipeline) Close() error {
	if p.Redis == nil {
		return nil
	}
	return p.Redis.Close()
}

// OpenStore returns the configured thread store and a function releasing it.
func OpenStore(cfg config.Config) (store.Store, func() error, error) {
	switch cfg.ThreadStore {
	case "", config.ThreadStoreMemory:
		return memory.New(), func() error { return nil }, nil
	case config.ThreadStorePostgres:
		pg, err := openPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported thread store %q", cfg.ThreadStore)
	}
}
