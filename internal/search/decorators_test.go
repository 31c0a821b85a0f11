package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu      sync.Mutex
	calls   int
	results []Result
	err     error
}

func (c *countingProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.results, c.err
}

func (c *countingProvider) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWithFallback(t *testing.T) {
	live := &countingProvider{results: []Result{{Title: "live", URL: "https://live"}}}
	provider := WithFallback(live, StubProvider{}, nil)
	results, err := provider.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Equal(t, "live", results[0].Title)

	broken := &countingProvider{err: errors.New("upstream down")}
	results, err = WithFallback(broken, StubProvider{}, nil).Search(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Research Article: q", results[0].Title)
}

func TestWithFallback_DoesNotMaskCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	broken := &countingProvider{err: context.Canceled}
	secondary := &countingProvider{}
	_, err := WithFallback(broken, secondary, nil).Search(ctx, "q", 2)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, secondary.callCount())
}

func TestRateLimited_WaitsForToken(t *testing.T) {
	next := &countingProvider{}
	limited := NewRateLimited(next, 0.001)

	_, err := limited.Search(context.Background(), "first", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Search(ctx, "second", 1)
	require.Error(t, err)
	require.Equal(t, 1, next.callCount())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCached_ServesRepeatedQueries(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingProvider{results: []Result{{Title: "A", URL: "https://a", Content: "alpha"}}}
	cached := NewCached(next, client, time.Minute, nil)

	first, err := cached.Search(context.Background(), "Causes of Inflation", 3)
	require.NoError(t, err)
	second, err := cached.Search(context.Background(), "  causes of inflation ", 3)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, next.callCount())
	require.True(t, mr.Exists(cacheKey("causes of inflation", 3)))
	require.Equal(t, time.Minute, mr.TTL(cacheKey("causes of inflation", 3)))

	_, err = cached.Search(context.Background(), "causes of inflation", 5)
	require.NoError(t, err)
	require.Equal(t, 2, next.callCount())
}

func TestCached_DoesNotStoreErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingProvider{err: errors.New("boom")}
	_, err := NewCached(next, client, time.Minute, nil).Search(context.Background(), "q", 3)
	require.EqualError(t, err, "boom")
	require.False(t, mr.Exists(cacheKey("q", 3)))
}

func TestCached_RedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()
	next := &countingProvider{results: []Result{{Title: "A", URL: "https://a"}}}
	results, err := NewCached(next, client, time.Minute, nil).Search(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestNewProvider_Composition(t *testing.T) {
	provider, err := NewProvider(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, StubProvider{}, provider)

	provider, err = NewProvider(Config{Provider: "tavily", FallbackToStub: true}, nil)
	require.NoError(t, err)
	require.IsType(t, &fallbackProvider{}, provider)
	results, err := provider.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	provider, err = NewProvider(Config{Provider: "tavily"}, nil)
	require.NoError(t, err)
	require.IsType(t, &TavilyProvider{}, provider)

	_, client := newTestRedis(t)
	provider, err = NewProvider(Config{Provider: "stub", RatePerSecond: 5, Redis: client}, nil)
	require.NoError(t, err)
	require.IsType(t, &Cached{}, provider)
	require.IsType(t, &RateLimited{}, provider.(*Cached).next)

	_, err = NewProvider(Config{Provider: "bing"}, nil)
	require.EqualError(t, err, "unsupported search provider: bing")
}
