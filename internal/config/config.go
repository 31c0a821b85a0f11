package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ExecutionInline   = "inline"
	ExecutionTemporal = "temporal"

	ThreadStoreMemory   = "memory"
	ThreadStorePostgres = "postgres"
)

type Config struct {
	Port              string
	ControlPlaneURL   string
	ExecutionMode     string
	TemporalAddress   string
	TemporalTaskQueue string
	ThreadStore       string
	PostgresURL       string

	LLMMode          string
	LLMProvider      string
	LLMModel         string
	LLMBaseURL       string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	GoogleAPIKey     string
	LLMCallTimeout   time.Duration
	PromptsPath      string

	SearchProvider       string
	TavilyAPIKey         string
	TavilyBaseURL        string
	SearchFallbackToStub bool
	SearchRatePerSecond  float64
	SearchCallTimeout    time.Duration
	RedisURL             string
	SearchCacheTTL       time.Duration

	ResearchMaxQueries  int
	ResearchMaxResults  int
	ResearchConcurrency int

	StreamChunkSize  int
	StreamChunkDelay time.Duration
	StreamKeepAlive  time.Duration

	LogLevel  string
	LogFormat string
}

func Load() Config {
	port := getEnv("PORT", "8000")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	tavilyKey := getEnv("TAVILY_API_KEY", "")
	defaultSearch := "stub"
	if tavilyKey != "" {
		defaultSearch = "tavily"
	}
	return Config{
		Port:              port,
		ControlPlaneURL:   getEnv("CONTROL_PLANE_URL", "http://localhost:"+port),
		ExecutionMode:     strings.ToLower(getEnv("EXECUTION_MODE", ExecutionInline)),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "deep-research"),
		ThreadStore:       strings.ToLower(getEnv("THREAD_STORE", ThreadStoreMemory)),
		PostgresURL:       postgresURL,

		LLMMode:          getEnv("LLM_MODE", "remote"),
		LLMProvider:      getEnv("LLM_PROVIDER", "openai"),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		GoogleAPIKey:     getEnv("GOOGLE_API_KEY", ""),
		LLMCallTimeout:   getEnvDuration("LLM_CALL_TIMEOUT", 60*time.Second),
		PromptsPath:      getEnv("PROMPTS_PATH", ""),

		SearchProvider:       strings.ToLower(getEnv("SEARCH_PROVIDER", defaultSearch)),
		TavilyAPIKey:         tavilyKey,
		TavilyBaseURL:        getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
		SearchFallbackToStub: getEnvBool("SEARCH_FALLBACK_TO_STUB", true),
		SearchRatePerSecond:  getEnvFloat("SEARCH_RATE_PER_SECOND", 0),
		SearchCallTimeout:    getEnvDuration("SEARCH_CALL_TIMEOUT", 30*time.Second),
		RedisURL:             getEnv("REDIS_URL", ""),
		SearchCacheTTL:       getEnvDuration("SEARCH_CACHE_TTL", time.Hour),

		ResearchMaxQueries:  getEnvInt("RESEARCH_MAX_QUERIES", 3),
		ResearchMaxResults:  getEnvInt("RESEARCH_MAX_RESULTS", 3),
		ResearchConcurrency: getEnvInt("RESEARCH_CONCURRENCY", 4),

		StreamChunkSize:  getEnvInt("STREAM_CHUNK_SIZE", 500),
		StreamChunkDelay: getEnvDuration("STREAM_CHUNK_DELAY", 0),
		StreamKeepAlive:  getEnvDuration("STREAM_KEEPALIVE", 15*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "research")
	password := getEnv("POSTGRES_PASSWORD", "research")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "deep_research")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
