// Package heartbeat – wake.go implements the wake coalescer. Wake requests
// arriving within the coalesce window collapse into one handler execution;
// a request arriving while the handler runs is double-buffered so exactly
// one follow-up execution happens after the current one returns.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Wake reasons, highest priority first. When requests coalesce, the pending
// reason is the highest-priority one seen.
const (
	ReasonExec      = "exec"
	ReasonCron      = "cron"
	ReasonInterval  = "interval"
	ReasonRetry     = "retry"
	ReasonRequested = "requested"
)

var reasonPriority = map[string]int{
	ReasonExec:      5,
	ReasonCron:      4,
	ReasonInterval:  3,
	ReasonRetry:     2,
	ReasonRequested: 1,
}

// Execution result statuses and skip reasons.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"

	SkipOutsideActiveHours = "outside-active-hours"
	SkipNoPendingTasks     = "no-pending-tasks"
	SkipRequestsInFlight   = "requests-in-flight"
	SkipDuplicateOutput    = "duplicate-output"
)

// DefaultCoalesce is the window within which wake requests merge.
const DefaultCoalesce = 250 * time.Millisecond

// inFlightRetryDelay is the rearm delay after a requests-in-flight skip.
const inFlightRetryDelay = time.Second

// Request is one coalesced wake: the merged reason and the source string of
// the request that set it.
type Request struct {
	Reason string
	Source string
}

// Result is what the wake handler reports back. A skipped result with
// reason "requests-in-flight" asks the coalescer to retry in one second.
type Result struct {
	Status string
	Reason string
	Text   string
}

// Handler executes one coalesced wake.
type Handler func(ctx context.Context, req Request) Result

// Wake coalesces wake requests into handler executions. At most one timer
// is pending and at most one execution is in flight at any time.
type Wake struct {
	handler  Handler
	coalesce time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	timer         *time.Timer
	running       bool
	scheduled     bool
	pendingReason string
	pendingSource string
	stopped       bool
}

// NewWake creates a coalescer over the handler. A non-positive coalesce
// falls back to DefaultCoalesce.
func NewWake(coalesce time.Duration, handler Handler, logger *slog.Logger) *Wake {
	if coalesce <= 0 {
		coalesce = DefaultCoalesce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Wake{
		handler:  handler,
		coalesce: coalesce,
		logger:   logger.With("component", "heartbeat-wake"),
	}
}

// Request records a wake request and schedules execution. While the handler
// runs, the request is buffered: exactly one follow-up execution happens
// after the current one, no matter how many requests arrive meanwhile.
func (w *Wake) Request(reason, source string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.mergePendingLocked(reason, source)
	if w.running {
		w.scheduled = true
		return
	}
	if w.timer != nil {
		// A timer is already armed; this request rode along.
		return
	}
	w.armLocked(w.coalesce)
}

// Stop cancels any pending timer and drops buffered requests. A handler
// already in flight finishes but does not rearm.
func (w *Wake) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.scheduled = false
	w.pendingReason = ""
	w.pendingSource = ""
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Running reports whether a handler execution is in flight.
func (w *Wake) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// mergePendingLocked keeps the highest-priority reason; the source follows
// the winning reason. Callers hold w.mu.
func (w *Wake) mergePendingLocked(reason, source string) {
	if reasonPriority[reason] == 0 {
		reason = ReasonRequested
	}
	if w.pendingReason == "" || reasonPriority[reason] >= reasonPriority[w.pendingReason] {
		w.pendingReason = reason
		w.pendingSource = source
	}
}

// armLocked starts the single-shot execution timer. Callers hold w.mu.
func (w *Wake) armLocked(delay time.Duration) {
	w.timer = time.AfterFunc(delay, w.fire)
}

// fire snapshots the pending request, runs the handler, and decides whether
// to rearm: once for a buffered mid-run request, or with a retry delay when
// the handler reported requests in flight.
func (w *Wake) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	req := Request{Reason: w.pendingReason, Source: w.pendingSource}
	if req.Reason == "" {
		req.Reason = ReasonRequested
	}
	w.pendingReason = ""
	w.pendingSource = ""
	w.timer = nil
	w.running = true
	w.mu.Unlock()

	res := w.handler(context.Background(), req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	if w.stopped {
		return
	}
	if w.scheduled {
		w.scheduled = false
		w.armLocked(0)
		return
	}
	if res.Status == StatusSkipped && res.Reason == SkipRequestsInFlight {
		w.logger.Debug("wake deferred, requests in flight", "reason", req.Reason)
		w.mergePendingLocked(ReasonRetry, req.Source)
		w.armLocked(inFlightRetryDelay)
	}
}
