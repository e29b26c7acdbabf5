// Package retry runs an operation a bounded number of times with optional
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that Do stops immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Config configures the retry behavior.
type Config struct {
	// MaxAttempts limits total attempts. Must be positive.
	MaxAttempts int
	// InitialDelay is the pause before the second attempt. Zero retries
	// immediately.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff. Zero means no cap.
	MaxDelay time.Duration
	// MaxElapsed stops retrying once exceeded. Zero means no limit.
	MaxElapsed time.Duration
	// Logger receives per-attempt diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Do calls fn until it succeeds, returns a PermanentError, or the limits in
// cfg are reached. The attempt number passed to fn starts at 1. The returned
// error wraps the last failure.
func Do(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: cancelled after %d attempts: %w", operation, attempt-1, errors.Join(err, lastErr))
			}
			return fmt.Errorf("%s: %w", operation, err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt,
					"elapsed", time.Since(start).Round(time.Millisecond),
				)
			}
			return nil
		}

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			logger.Warn("Operation returned permanent error, not retrying",
				"operation", operation,
				"attempt", attempt,
				"error", permErr.Err,
			)
			return fmt.Errorf("%s: %w", operation, permErr.Err)
		}

		lastErr = err

		if attempt >= cfg.MaxAttempts {
			logger.Warn("Retries exhausted (max attempts)",
				"operation", operation,
				"attempts", attempt,
				"elapsed", time.Since(start).Round(time.Millisecond),
				"lastError", err,
			)
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", operation, attempt, lastErr)
		}

		if cfg.MaxElapsed > 0 && time.Since(start) >= cfg.MaxElapsed {
			logger.Warn("Retries exhausted (max elapsed)",
				"operation", operation,
				"attempts", attempt,
				"elapsed", time.Since(start).Round(time.Millisecond),
				"lastError", err,
			)
			return fmt.Errorf("%s: retries exhausted after %v: %w", operation, time.Since(start).Round(time.Millisecond), lastErr)
		}

		logger.Info("Attempt failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if delay > 0 {
			sleep := delay
			if half := int64(delay) / 2; half > 0 {
				sleep += time.Duration(rand.Int63n(half))
			}
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context cancelled during retry: %w", operation, errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
			delay *= 2
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
}
