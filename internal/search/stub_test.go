package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubProvider_Deterministic(t *testing.T) {
	provider := StubProvider{}
	first, err := provider.Search(context.Background(), "causes of inflation", 5)
	require.NoError(t, err)
	second, err := provider.Search(context.Background(), "causes of inflation", 5)
	require.NoError(t, err)

	require.Len(t, first, 5)
	require.Equal(t, first, second)
	require.Equal(t, "Research Article: causes of inflation", first[0].Title)
	require.Equal(t, "https://example.com/research/causes-of-inflation", first[0].URL)
	require.Equal(t, "https://example.com/technical/causes-of-inflation", first[4].URL)
	require.Contains(t, first[2].Content, "causes of inflation")
}

func TestStubProvider_RespectsMaxResults(t *testing.T) {
	results, err := StubProvider{}.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	results, err = StubProvider{}.Search(context.Background(), "q", 50)
	require.NoError(t, err)
	require.Len(t, results, 5)
}

func TestStubProvider_TruncatesLongQueries(t *testing.T) {
	query := strings.Repeat("é", 80)
	results, err := StubProvider{}.Search(context.Background(), query, 2)
	require.NoError(t, err)
	require.Equal(t, "Research Article: "+strings.Repeat("é", 50), results[0].Title)
	require.Equal(t, "Expert Analysis on "+strings.Repeat("é", 40), results[1].Title)
	require.True(t, strings.HasSuffix(results[0].URL, "/"+strings.Repeat("é", 30)))
}

func TestStubProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StubProvider{}.Search(ctx, "q", 5)
	require.ErrorIs(t, err, context.Canceled)
}
