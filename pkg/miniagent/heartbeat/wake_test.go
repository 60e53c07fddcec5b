package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collectWake builds a wake whose handler records every request it executes.
func collectWake(coalesce time.Duration, respond func(req Request) Result) (*Wake, func() []Request) {
	var mu sync.Mutex
	var got []Request
	w := NewWake(coalesce, func(_ context.Context, req Request) Result {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		if respond != nil {
			return respond(req)
		}
		return Result{Status: StatusOK}
	}, nil)
	return w, func() []Request {
		mu.Lock()
		defer mu.Unlock()
		return append([]Request(nil), got...)
	}
}

func TestWakeCoalescesBurst(t *testing.T) {
	w, requests := collectWake(30*time.Millisecond, nil)
	defer w.Stop()

	for i := 0; i < 10; i++ {
		w.Request(ReasonRequested, "burst")
	}

	time.Sleep(150 * time.Millisecond)
	if got := requests(); len(got) != 1 {
		t.Fatalf("burst produced %d executions, want 1", len(got))
	}
}

func TestWakeMergesToHighestPriorityReason(t *testing.T) {
	w, requests := collectWake(30*time.Millisecond, nil)
	defer w.Stop()

	w.Request(ReasonRequested, "low")
	w.Request(ReasonCron, "0 * * * *")
	w.Request(ReasonRetry, "later")

	time.Sleep(150 * time.Millisecond)
	got := requests()
	if len(got) != 1 {
		t.Fatalf("got %d executions, want 1", len(got))
	}
	if got[0].Reason != ReasonCron || got[0].Source != "0 * * * *" {
		t.Errorf("merged request = %+v, want cron reason with its source", got[0])
	}
}

func TestWakeBuffersRequestDuringRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var runs atomic.Int32

	w := NewWake(10*time.Millisecond, func(_ context.Context, req Request) Result {
		if runs.Add(1) == 1 {
			close(entered)
			<-release
		}
		return Result{Status: StatusOK}
	}, nil)
	defer w.Stop()

	w.Request(ReasonInterval, "timer")
	<-entered

	// Many requests while the handler runs must collapse into exactly one
	// follow-up execution.
	for i := 0; i < 5; i++ {
		w.Request(ReasonRequested, "mid-run")
	}
	close(release)

	time.Sleep(100 * time.Millisecond)
	if n := runs.Load(); n != 2 {
		t.Fatalf("got %d executions, want 2", n)
	}
}

func TestWakeRetriesAfterRequestsInFlightSkip(t *testing.T) {
	var runs atomic.Int32
	w := NewWake(10*time.Millisecond, func(_ context.Context, req Request) Result {
		if runs.Add(1) == 1 {
			return Result{Status: StatusSkipped, Reason: SkipRequestsInFlight}
		}
		return Result{Status: StatusOK}
	}, nil)
	defer w.Stop()

	w.Request(ReasonInterval, "timer")

	// First execution skips; a retry fires after the in-flight delay (1s).
	time.Sleep(1300 * time.Millisecond)
	if n := runs.Load(); n != 2 {
		t.Fatalf("got %d executions, want 2 (original + retry)", n)
	}
}

func TestWakeStopDropsPending(t *testing.T) {
	w, requests := collectWake(50*time.Millisecond, nil)

	w.Request(ReasonRequested, "doomed")
	w.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := requests(); len(got) != 0 {
		t.Fatalf("stopped wake executed %d times", len(got))
	}

	// Requests after Stop are ignored.
	w.Request(ReasonExec, "late")
	time.Sleep(100 * time.Millisecond)
	if got := requests(); len(got) != 0 {
		t.Fatalf("post-stop request executed")
	}
}

func TestWakeUnknownReasonFallsBackToRequested(t *testing.T) {
	w, requests := collectWake(20*time.Millisecond, nil)
	defer w.Stop()

	w.Request("bogus", "src")
	time.Sleep(100 * time.Millisecond)

	got := requests()
	if len(got) != 1 {
		t.Fatalf("got %d executions, want 1", len(got))
	}
	if got[0].Reason != ReasonRequested {
		t.Errorf("reason = %q, want %q", got[0].Reason, ReasonRequested)
	}
}
