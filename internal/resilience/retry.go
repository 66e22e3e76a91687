// Package resilience wraps external calls (embedding provider, LLM provider,
// object storage, document extraction) with a bounded retry schedule and a
// shared error classification so every adapter treats transient failures the
// same way.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Classification is the outcome of inspecting a failed call.
type Classification int

const (
	// Permanent errors are re-raised immediately; retrying cannot help.
	Permanent Classification = iota
	// Transient errors are worth another attempt.
	Transient
)

// Config is the bounded-attempt retry schedule for one call site.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig matches the schedule most adapters in this codebase use:
// five attempts, 250ms base, capped at 8s.
var DefaultConfig = Config{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 8 * time.Second}

// StatusError is implemented by provider errors that carry an HTTP status
// code, letting Classify use it without caring which SDK produced it.
type StatusError interface {
	StatusCode() int
}

var permanentStatus = map[int]bool{
	http.StatusBadRequest:   true,
	http.StatusUnauthorized: true,
	http.StatusForbidden:    true,
	http.StatusNotFound:     true,
}

var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// transientTokens catches provider errors that stringify a status instead of
// exposing StatusError, or wrap one of the APIs' own retryable sentinels.
var transientTokens = []string{
	"429", "RESOURCE_EXHAUSTED", "quota", "rate limit", "rate_limit",
	"503", "UNAVAILABLE", "deadline exceeded", "connection reset",
	"temporarily unavailable",
}

// Classify implements the error-classification order: HTTP status first,
// then built-in timeout/connection/I/O errors, then a token heuristic for
// providers that don't type their errors. Unknown errors default to
// Permanent — a conservative choice so an unclassified bug doesn't retry
// forever.
func Classify(err error) Classification {
	if err == nil {
		return Permanent
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode()
		if transientStatus[code] {
			return Transient
		}
		if permanentStatus[code] {
			return Permanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	msg := err.Error()
	for _, token := range transientTokens {
		if strings.Contains(msg, token) {
			return Transient
		}
	}

	return Permanent
}

// Do runs fn up to cfg.MaxAttempts times, retrying while Classify(err) is
// Transient. operation names the call site in logs; requestID correlates
// retries to a single inbound request and may be empty.
func Do[T any](ctx context.Context, cfg Config, operation, requestID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("resilience: retry succeeded",
					"operation", operation, "request_id", requestID, "attempt", attempt)
			}
			return result, nil
		}

		lastErr = err
		class := Classify(err)
		if class == Permanent || attempt == cfg.MaxAttempts {
			slog.Error("resilience: call failed",
				"operation", operation, "request_id", requestID,
				"attempt", attempt, "classification", classString(class), "error", err.Error())
			return zero, err
		}

		delay := backoff(cfg, attempt)
		slog.Warn("resilience: retrying after transient error",
			"operation", operation, "request_id", requestID,
			"attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err.Error())

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// backoff computes delay = min(max_delay, base * 2^(attempt-1)) with uniform
// jitter in [0, delay].
func backoff(cfg Config, attempt int) time.Duration {
	raw := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	capped := math.Min(raw, float64(cfg.MaxDelay))
	return time.Duration(rand.Float64() * capped)
}

func classString(c Classification) string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}
