package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/gateway"
	"github.com/memoryglass/memoryglass-go/pkg/llm"
)

// scriptProvider returns the scripted errors in order, then succeeds.
type scriptProvider struct {
	errs  []error
	calls int
}

func (p *scriptProvider) Generate(context.Context, string, *llm.Media, ...llm.GenerateOption) (string, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return "", p.errs[p.calls-1]
	}
	return "answer", nil
}

func (p *scriptProvider) Close() error { return nil }

// sleepRecorder captures backoff delays without actually sleeping.
type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newGateway(p llm.Provider, rec *sleepRecorder, maxRetries int) *gateway.Gateway {
	return gateway.New(p, gateway.Config{
		MaxRetries:     maxRetries,
		InitialBackoff: 2 * time.Second,
		Clock:          func() time.Time { return time.Unix(0, 0) },
		Sleep:          rec.sleep,
	}, nil)
}

func TestGenerateRetriesThrottlingWithBackoff(t *testing.T) {
	p := &scriptProvider{errs: []error{llm.ErrThrottled, llm.ErrThrottled}}
	rec := &sleepRecorder{}
	gw := newGateway(p, rec, 3)

	text, err := gw.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	p := &scriptProvider{errs: []error{llm.ErrThrottled, llm.ErrThrottled, llm.ErrThrottled, llm.ErrThrottled}}
	rec := &sleepRecorder{}
	gw := newGateway(p, rec, 3)

	_, err := gw.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrExhausted))
	assert.Equal(t, 4, p.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func TestGenerateDoesNotRetryBadInput(t *testing.T) {
	p := &scriptProvider{errs: []error{fmt.Errorf("%w: image rejected", llm.ErrBadInput)}}
	rec := &sleepRecorder{}
	gw := newGateway(p, rec, 3)

	_, err := gw.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrBadInput))
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, rec.delays)
}

func TestGenerateHonorsMinInterval(t *testing.T) {
	p := &scriptProvider{}
	rec := &sleepRecorder{}
	gw := gateway.New(p, gateway.Config{
		MinInterval: time.Second,
		Clock:       func() time.Time { return time.Unix(0, 0) },
		Sleep:       rec.sleep,
	}, nil)

	// First call goes straight through; the second waits out the interval.
	_, err := gw.Generate(context.Background(), "one", nil)
	require.NoError(t, err)
	assert.Empty(t, rec.delays)

	_, err = gw.Generate(context.Background(), "two", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	p := &scriptProvider{errs: []error{llm.ErrThrottled}}
	ctx, cancel := context.WithCancel(context.Background())

	gw := gateway.New(p, gateway.Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		Clock:          func() time.Time { return time.Unix(0, 0) },
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, nil)

	_, err := gw.Generate(ctx, "prompt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, p.calls)
}
