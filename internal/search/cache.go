package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
)

const cacheKeyPrefix = "deep-research:search:"

// Cached serves repeated queries from redis. Redis failures degrade to a
// direct call on the wrapped provider.
type Cached struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Provider, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *Cached) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	key := cacheKey(query, maxResults)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Result
		if decodeErr := json.Unmarshal(raw, &cached); decodeErr == nil {
			metrics.SearchCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		c.logger.Warn("discarding undecodable search cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
		metrics.SearchCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.SearchCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("search cache read failed", zap.Error(err))
	}

	results, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return results, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("search cache write failed", zap.Error(err))
	}
	return results, nil
}

func cacheKey(query string, maxResults int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", maxResults, normalized)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
