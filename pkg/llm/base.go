// Package llm defines the interface to the external multimodal reasoning
// capability, along with the media payload type and generation options.
package llm

import (
	"context"
	"errors"
)

// Classified provider errors. Vendor clients map their API errors onto these
// so callers can decide retry behaviour without importing vendor packages.
var (
	// ErrThrottled indicates the provider rejected the call for rate
	// reasons (HTTP 429 or equivalent). Retryable with backoff.
	ErrThrottled = errors.New("model throttled")

	// ErrBadInput indicates the request itself was rejected. Not retryable.
	ErrBadInput = errors.New("model rejected input")

	// ErrUnavailable indicates the provider is down or unreachable.
	// Surfaced immediately, no retry.
	ErrUnavailable = errors.New("model unavailable")
)

// Media is an inline media payload accompanying a prompt.
type Media struct {
	// MimeType is the declared media type, e.g. "video/mp4" or "image/jpeg".
	MimeType string

	// Data is the raw payload.
	Data []byte
}

// Provider is the narrow interface to the external reasoning capability.
//
// Implementations must honour ctx cancellation and deadline. A nil media
// argument means a text-only call.
type Provider interface {
	// Generate produces text for the prompt, optionally grounded on media.
	Generate(ctx context.Context, prompt string, media *Media, opts ...GenerateOption) (string, error)

	// Close releases provider resources.
	Close() error
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64
}

// GenerateOption configures GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of response tokens.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// ApplyGenerateOptions folds a slice of options over the defaults.
// Defaults: Temperature=0.4, MaxTokens=1000, TopP=1.0.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.4,
		MaxTokens:   1000,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
