// Package gateway wraps the external reasoning model behind a serialized,
// rate-respecting gate with retry and exponential backoff.
//
// All calls funnel through a single mutex so the minimum inter-call interval
// holds globally, not per caller. Throttling errors and timeouts are retried
// with doubling delays; any other error propagates immediately.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/llm"
)

// ErrExhausted wraps the last throttling error once all retries are spent.
// Callers treat it as a rate-limit failure eligible for memory-only fallback.
var ErrExhausted = errors.New("model retries exhausted")

// Config controls the gateway's pacing and retry behaviour.
type Config struct {
	// MinInterval is the minimum spacing between calls to the provider.
	// Calls arriving sooner are delayed.
	MinInterval time.Duration

	// MaxRetries is how many times a throttled or timed-out call is
	// retried after the first attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; subsequent
	// delays double (2s, 4s, 8s with the defaults).
	InitialBackoff time.Duration

	// CallTimeout bounds each individual provider call. A timeout is
	// treated like a throttle: retried, then surfaced as ErrExhausted.
	CallTimeout time.Duration

	// Clock and Sleep are injection points for tests. When nil, the real
	// clock and a context-aware timer sleep are used.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Gateway is a throttled, retrying wrapper around an llm.Provider.
type Gateway struct {
	provider llm.Provider
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// New creates a Gateway around the given provider.
func New(provider llm.Provider, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, cfg: cfg, logger: logger}
}

// Generate calls the provider, pacing and retrying per the configuration.
//
// Failure modes:
//   - throttling (llm.ErrThrottled) or per-call timeout: retried up to
//     MaxRetries with exponential backoff, then returned wrapped in
//     ErrExhausted;
//   - any other provider error: returned immediately without retry;
//   - ctx cancellation: returned immediately.
func (g *Gateway) Generate(ctx context.Context, prompt string, media *llm.Media, opts ...llm.GenerateOption) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delay := g.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if wait := g.cfg.MinInterval - g.cfg.Clock().Sub(g.lastCall); wait > 0 && !g.lastCall.IsZero() {
			if err := g.cfg.Sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if g.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		}
		text, err := g.provider.Generate(callCtx, prompt, media, opts...)
		if cancel != nil {
			cancel()
		}
		g.lastCall = g.cfg.Clock()

		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			return "", err
		}

		if attempt < g.cfg.MaxRetries {
			g.logger.Debug("model call throttled, retrying",
				"attempt", attempt+1,
				"max_retries", g.cfg.MaxRetries,
				"delay", delay,
				"err", err)
			if serr := g.cfg.Sleep(ctx, delay); serr != nil {
				return "", serr
			}
			delay *= 2
		}
	}

	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// Close closes the underlying provider.
func (g *Gateway) Close() error {
	return g.provider.Close()
}

// retryable reports whether the error is a transient throttle or a per-call
// timeout. A cancelled parent context is never retryable.
func retryable(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return errors.Is(err, llm.ErrThrottled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
