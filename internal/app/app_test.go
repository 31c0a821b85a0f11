package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store/memory"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store/postgres"
)

func localConfig() config.Config {
	return config.Config{
		LLMMode:              "local",
		SearchProvider:       "stub",
		SearchFallbackToStub: true,
		ResearchMaxQueries:   2,
		ResearchMaxResults:   2,
		ResearchConcurrency:  2,
	}
}

func TestNewPipeline_LocalModelDegradesEveryStage(t *testing.T) {
	pipeline, err := NewPipeline(context.Background(), localConfig(), nil)
	require.NoError(t, err)
	defer pipeline.Close()

	stages := pipeline.Stages()
	require.Len(t, stages, 3)
	require.Equal(t, research.StagePlan, stages[0].Name)
	require.Equal(t, research.StageWrite, stages[2].Name)
	require.NoError(t, pipeline.PingRedis(context.Background()))

	state := research.NewSequencerWithStages(stages, nil).Execute(context.Background(), "run-1", "golang")
	require.NotNil(t, state.Plan)
	require.NotEmpty(t, state.Report)
	require.NotEmpty(t, state.Errors)
	require.Greater(t, state.SourcesAnalyzed, 0)
}

func TestNewPipeline_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := localConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	pipeline, err := NewPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, pipeline.Redis)
	require.NoError(t, pipeline.PingRedis(context.Background()))
	require.NoError(t, pipeline.Close())
}

func TestNewPipeline_Errors(t *testing.T) {
	t.Run("bad redis url", func(t *testing.T) {
		cfg := localConfig()
		cfg.RedisURL = "://nope"
		_, err := NewPipeline(context.Background(), cfg, nil)
		require.ErrorContains(t, err, "parse REDIS_URL")
	})

	t.Run("unsupported model provider", func(t *testing.T) {
		cfg := localConfig()
		cfg.LLMMode = "remote"
		cfg.LLMProvider = "carrier-pigeon"
		_, err := NewPipeline(context.Background(), cfg, nil)
		require.ErrorContains(t, err, "language model")
	})

	t.Run("unsupported search provider", func(t *testing.T) {
		cfg := localConfig()
		cfg.SearchProvider = "altavista"
		_, err := NewPipeline(context.Background(), cfg, nil)
		require.ErrorContains(t, err, "search")
	})

	t.Run("missing prompts file", func(t *testing.T) {
		cfg := localConfig()
		cfg.PromptsPath = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := NewPipeline(context.Background(), cfg, nil)
		require.Error(t, err)
	})
}

func TestNewPipeline_PromptsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  system: \"You plan.\"\n  user: \"Plan the research.\"\n"), 0o600))
	cfg := localConfig()
	cfg.PromptsPath = path

	pipeline, err := NewPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, pipeline.Planner)
}

func TestOpenStore(t *testing.T) {
	st, closeStore, err := OpenStore(config.Config{})
	require.NoError(t, err)
	require.IsType(t, &memory.MemoryStore{}, st)
	require.NoError(t, closeStore())

	_, _, err = OpenStore(config.Config{ThreadStore: "sqlite"})
	require.ErrorContains(t, err, `unsupported thread store "sqlite"`)

	orig := openPostgres
	t.Cleanup(func() { openPostgres = orig })
	openPostgres = func(conn string) (*postgres.PostgresStore, error) {
		require.Equal(t, "postgres://db", conn)
		return nil, errors.New("dial failed")
	}
	_, _, err = OpenStore(config.Config{ThreadStore: config.ThreadStorePostgres, PostgresURL: "postgres://db"})
	require.ErrorContains(t, err, "dial failed")
}
