// Package core provides the live-session memory client and the tiered
// query-resolution pipeline.
package core

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors for the pipeline failure taxonomy.
var (
	// ErrRateLimited indicates the per-user request budget was exceeded.
	// Surfaced directly to the caller with a retry hint, never retried.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates an external failure that was retried
	// internally until the attempt cap; surfaced only after exhaustion.
	ErrTransient = errors.New("transient external failure")

	// ErrBadInput indicates the request was rejected before or by the
	// external call. No retry, no fallback.
	ErrBadInput = errors.New("bad input")

	// ErrUnavailable indicates the external reasoning capability is down.
	ErrUnavailable = errors.New("model unavailable")

	// ErrMalformedMedia indicates the media payload was rejected before
	// any external call.
	ErrMalformedMedia = errors.New("malformed media")

	// ErrNotFound indicates a session or referenced record is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PipelineError wraps errors with the name of the failing operation.
type PipelineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "memoryglass: <Op>: <Err>".
func (e *PipelineError) Error() string {
	return fmt.Sprintf("memoryglass: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with operation context. Returns nil when err is
// nil so call sites can wrap unconditionally.
func NewPipelineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Op: op, Err: err}
}

// RateLimitError carries the numeric retry hint required on every
// rate-limit rejection.
type RateLimitError struct {
	// RetryAfter is how long the caller should wait before retrying.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Unwrap ties the error into the taxonomy via ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfterSeconds returns the hint rounded up to whole seconds, minimum 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// MalformedMediaError reports why a media payload was rejected.
type MalformedMediaError struct {
	// Reason is a human-readable rejection reason.
	Reason string
}

func (e *MalformedMediaError) Error() string {
	return fmt.Sprintf("malformed media: %s", e.Reason)
}

// Unwrap ties the error into the taxonomy via ErrMalformedMedia.
func (e *MalformedMediaError) Unwrap() error {
	return ErrMalformedMedia
}
