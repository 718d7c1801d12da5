package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"leasesum/internal/port"
)

// RateLimitedCompleter spaces requests to a provider so a run stays under the
// provider's requests-per-minute quota.
type RateLimitedCompleter struct {
	next    port.Completer
	limiter *rate.Limiter
}

// NewRateLimitedCompleter wraps next with a token bucket of requestsPerMinute,
// burst 1.
func NewRateLimitedCompleter(next port.Completer, requestsPerMinute int) *RateLimitedCompleter {
	every := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimitedCompleter{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

func (r *RateLimitedCompleter) Complete(ctx context.Context, requestText string) (*port.Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return r.next.Complete(ctx, requestText)
}
