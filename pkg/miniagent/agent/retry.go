// Package agent – retry.go wraps transient-failure retry with exponential
// backoff and jitter. The loop uses it around the model call so rate limits
// restart the turn instead of failing the run.
package agent

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	// DefaultRetryAttempts bounds the total tries, first call included.
	DefaultRetryAttempts = 3

	DefaultRetryMinDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay = 8 * time.Second
	DefaultRetryJitter   = 0.2
)

// RetryConfig controls the backoff schedule.
type RetryConfig struct {
	// Attempts is the total number of tries including the first.
	Attempts int

	// MinDelay seeds the exponential schedule and is its lower clamp.
	MinDelay time.Duration

	// MaxDelay is the upper clamp of the schedule.
	MaxDelay time.Duration

	// Jitter spreads each delay by a uniform factor in [1-Jitter, 1+Jitter].
	Jitter float64

	// OnAttempt, when set, is called before each sleep with the attempt
	// number (1-based), the chosen delay, and the error that caused it.
	OnAttempt func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the schedule used for model calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: DefaultRetryAttempts,
		MinDelay: DefaultRetryMinDelay,
		MaxDelay: DefaultRetryMaxDelay,
		Jitter:   DefaultRetryJitter,
	}
}

// RetryDelay computes the backoff delay after the k-th failed attempt
// (1-based): minDelay doubled per attempt, spread by jitter, clamped to
// [MinDelay, MaxDelay].
func (c RetryConfig) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.MinDelay)
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if c.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*c.Jitter
	}
	delay := time.Duration(d)
	if delay < c.MinDelay {
		delay = c.MinDelay
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Retry runs op up to cfg.Attempts times, sleeping the backoff schedule
// between failures for which shouldRetry returns true. Context cancellation
// bypasses the schedule entirely: a cancelled ctx or an op error caused by
// cancellation returns immediately. The last error is returned when all
// attempts are exhausted.
func Retry(ctx context.Context, cfg RetryConfig, shouldRetry func(err error, attempt int) bool, op func(ctx context.Context) error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = op(ctx)
		if err == nil {
			return nil
		}
		if IsCancellation(err) || ctx.Err() != nil {
			return err
		}
		if attempt == cfg.Attempts || shouldRetry == nil || !shouldRetry(err, attempt) {
			return err
		}
		delay := cfg.RetryDelay(attempt)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, delay, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// logRetryAttempt is the standard OnAttempt hook wired by the loop.
func logRetryAttempt(logger *slog.Logger) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		logger.Warn("retrying after transient error",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	}
}
