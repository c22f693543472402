package providers

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/riverton-labs/sqlpilot/internal/backoff"
)

// StreamRetryPolicy and JSONRetryPolicy match the attempt counts and
// delay bounds from spec §4.1: 3-5 attempts for stream starts, 5 for
// JSON calls, initial 2s, cap 10-20s.
var (
	StreamRetryPolicy = backoff.BackoffPolicy{InitialMs: 2000, MaxMs: 15000, Factor: 2, Jitter: 0.2}
	JSONRetryPolicy   = backoff.BackoffPolicy{InitialMs: 2000, MaxMs: 20000, Factor: 2, Jitter: 0.2}

	StreamMaxAttempts = 4
	JSONMaxAttempts   = 5
)

// IsRetryable reports whether err is a transport or 5xx-class error that
// warrants a retry, as opposed to a fatal/client error (§4.1, §7
// ProviderTransient vs ProviderFatal).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "connection reset", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// RetryStreamStart wraps a stream-opening call with exponential backoff
// and full jitter, per §4.1's 3-5 attempts for stream starts. The caller
// classifies the final error with IsRetryable to decide ErrTransient vs
// ErrFatal before surfacing it.
func RetryStreamStart[T any](ctx context.Context, fn func(attempt int) (T, error)) (T, error) {
	result, err := backoff.RetryWithBackoff(ctx, StreamRetryPolicy, StreamMaxAttempts, fn)
	return result.Value, err
}

// RetryJSONCall wraps a generate_json call with exponential backoff.
func RetryJSONCall[T any](ctx context.Context, fn func(attempt int) (T, error)) (T, error) {
	result, err := backoff.RetryWithBackoff(ctx, JSONRetryPolicy, JSONMaxAttempts, fn)
	return result.Value, err
}
