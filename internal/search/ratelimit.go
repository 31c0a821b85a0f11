package search

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped provider. The limiter is shared
// by every run in the process.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

func NewRateLimited(next Provider, perSecond float64) *RateLimited {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Search(ctx, query, maxResults)
}
