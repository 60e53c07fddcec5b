package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		Attempts: attempts,
		MinDelay: time.Millisecond,
		MaxDelay: 5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3),
		func(error, int) bool { return true },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("rate limit")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	want := errors.New("still failing")
	calls := 0
	err := Retry(context.Background(), fastRetry(3),
		func(error, int) bool { return true },
		func(context.Context) error {
			calls++
			return want
		})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want last failure", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsWhenNotRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5),
		func(err error, _ int) bool { return false },
		func(context.Context) error {
			calls++
			return errors.New("fatal")
		})
	if err == nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d; want single failing call", err, calls)
	}
}

func TestRetryCancellationBypassesSchedule(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5),
		func(error, int) bool { return true },
		func(context.Context) error {
			calls++
			return context.Canceled
		})
	if !IsCancellation(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryCancelledContextReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, fastRetry(3), nil, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if calls != 0 {
		t.Errorf("op ran %d times on a dead context", calls)
	}
}

func TestRetryDelayClampsAndGrows(t *testing.T) {
	cfg := RetryConfig{
		Attempts: 5,
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 400 * time.Millisecond,
	}
	if d := cfg.RetryDelay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := cfg.RetryDelay(2); d != 200*time.Millisecond {
		t.Errorf("attempt 2 delay = %v", d)
	}
	if d := cfg.RetryDelay(10); d != 400*time.Millisecond {
		t.Errorf("attempt 10 delay = %v, want max clamp", d)
	}
}

func TestRetryOnAttemptHook(t *testing.T) {
	cfg := fastRetry(3)
	var attempts []int
	cfg.OnAttempt = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}
	_ = Retry(context.Background(), cfg,
		func(error, int) bool { return true },
		func(context.Context) error { return errors.New("x") })

	// The hook fires before each sleep: attempts 1 and 2, never the last.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}
