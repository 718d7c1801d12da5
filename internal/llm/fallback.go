package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"leasesum/internal/port"
)

// circuitState tracks rate-limit backoff for a single provider.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackOption configures a FallbackCompleter.
type FallbackOption func(*FallbackCompleter)

// WithLogger sets the logger used to report skipped and failed providers.
func WithLogger(logger *zap.Logger) FallbackOption {
	return func(f *FallbackCompleter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// withClock overrides time.Now, for tests in this package.
func withClock(now func() time.Time) FallbackOption {
	return func(f *FallbackCompleter) { f.now = now }
}

// FallbackCompleter tries completers in order, skipping those with open circuits.
// It implements port.Completer.
type FallbackCompleter struct {
	completers []port.Completer
	circuits   []*circuitState
	names      []string
	logger     *zap.Logger
	now        func() time.Time
}

// NewFallbackCompleter creates a FallbackCompleter from an ordered list of completers and their names.
func NewFallbackCompleter(completers []port.Completer, names []string, opts ...FallbackOption) *FallbackCompleter {
	circuits := make([]*circuitState, len(completers))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	f := &FallbackCompleter{
		completers: completers,
		circuits:   circuits,
		names:      names,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FallbackCompleter) Complete(ctx context.Context, requestText string) (*port.Completion, error) {
	now := f.now()
	var lastErr error
	var spent []error // incomplete responses whose tokens were still billed
	allRateLimited := true
	var earliestReset time.Time

	for i, c := range f.completers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.logger.Info("llm.FallbackCompleter: skipping provider, circuit open",
				zap.String("provider", f.names[i]), zap.Time("reset_at", resetAt))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := c.Complete(ctx, requestText)
		if err == nil {
			// Tokens burned by earlier providers are billed at this model's rate.
			_, usage := SpentUsage(errors.Join(spent...))
			out.InputTokens += usage.InputTokens
			out.OutputTokens += usage.OutputTokens
			return out, nil
		}
		if ctx.Err() != nil {
			if len(spent) > 0 {
				return nil, errors.Join(append([]error{err}, spent...)...)
			}
			return nil, err
		}

		f.logger.Warn("llm.FallbackCompleter: provider failed",
			zap.String("provider", f.names[i]), zap.Error(err))
		lastErr = err
		var inc *IncompleteResponseError
		if errors.As(err, &inc) {
			spent = append(spent, err)
		}

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		retryAfter := earliestReset.Sub(f.now())
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all providers rate limited"), int(retryAfter.Seconds()))
	}

	earlier := spent
	if n := len(spent); n > 0 && spent[n-1] == lastErr {
		earlier = spent[:n-1]
	}
	if len(earlier) > 0 {
		// lastErr leads so it decides retryability; the rest keep their spend.
		return nil, fmt.Errorf("all providers failed: %w", errors.Join(append([]error{lastErr}, earlier...)...))
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}
