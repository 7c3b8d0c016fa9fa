package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"billscope/internal/port"
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

// WithLogger sets the logger used to report provider failures.
func WithLogger(l *zap.Logger) FallbackOption {
	return func(f *FallbackCompleter) { f.logger = l }
}

// WithClock overrides the time source used for circuit decisions.
func WithClock(now func() time.Time) FallbackOption {
	return func(f *FallbackCompleter) { f.now = now }
}

// FallbackCompleter tries providers in order, skipping those whose circuit
// is open after a rate limit. It implements port.Completer.
type FallbackCompleter struct {
	completers []port.Completer
	circuits   []*circuitState
	names      []string
	logger     *zap.Logger
	now        func() time.Time
}

// NewFallbackCompleter creates a FallbackCompleter from an ordered list of
// completers and their names.
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

func (f *FallbackCompleter) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	now := f.now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, c := range f.completers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.logger.Debug("llm.FallbackCompleter: skipping provider, circuit open",
				zap.String("provider", f.names[i]), zap.Time("reset_at", resetAt))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := c.Complete(ctx, req)
		if err == nil {
			return out, nil
		}

		f.logger.Warn("llm.FallbackCompleter: provider failed",
			zap.String("provider", f.names[i]), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm completion canceled: %w", err)
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
		retryAfter := earliestReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all llm providers rate limited"), int(retryAfter.Seconds()))
	}

	return nil, fmt.Errorf("all llm providers failed: %w", lastErr)
}
