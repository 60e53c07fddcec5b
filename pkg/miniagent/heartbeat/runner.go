// Package heartbeat – runner.go schedules and executes heartbeat runs. The
// interval timer is single-shot and recomputed from the last run, so drift in
// one cycle never accumulates, and the timer only issues a wake request: every
// execution flows through the coalescer's gates.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultInterval is the heartbeat cadence when none is configured.
	DefaultInterval = 30 * time.Minute

	// DefaultDuplicateWindow is how long an identical response is
	// suppressed after it was last delivered.
	DefaultDuplicateWindow = 24 * time.Hour
)

// RunnerConfig shapes a heartbeat runner.
type RunnerConfig struct {
	// Interval between self-initiated runs. Non-positive means
	// DefaultInterval.
	Interval time.Duration

	// TaskFile is the markdown checklist to parse each run.
	TaskFile string

	// ActiveStart and ActiveEnd bound the daily active window as "HH:MM"
	// local time, interval [start, end). End at or before start wraps past
	// midnight. Both empty disables the gate.
	ActiveStart string
	ActiveEnd   string

	// DuplicateWindow is the suppression window for trimmed-equal
	// responses. Non-positive means DefaultDuplicateWindow.
	DuplicateWindow time.Duration

	// Coalesce is the wake coalescing window. Non-positive means
	// DefaultCoalesce.
	Coalesce time.Duration
}

// TaskHandler processes the pending tasks of one run and optionally returns
// response text for delivery.
type TaskHandler func(ctx context.Context, tasks []Task, req Request) (string, error)

// Runner owns the heartbeat schedule and run state. Executions funnel
// through its embedded wake coalescer.
type Runner struct {
	cfg    RunnerConfig
	wake   *Wake
	logger *slog.Logger
	now    func() time.Time

	activeStart int // minutes of day, -1 when the gate is off
	activeEnd   int

	mu         sync.Mutex
	timer      *time.Timer
	lastRunAt  time.Time
	lastText   string
	lastTextAt time.Time
	handlers   []TaskHandler
	onResponse func(text string)
	stopped    bool
}

// NewRunner validates the config and builds a stopped runner. Call Start to
// begin the schedule.
func NewRunner(cfg RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	start, end := -1, -1
	if cfg.ActiveStart != "" || cfg.ActiveEnd != "" {
		var err error
		if start, err = parseClock(cfg.ActiveStart); err != nil {
			return nil, fmt.Errorf("active_start: %w", err)
		}
		if end, err = parseClock(cfg.ActiveEnd); err != nil {
			return nil, fmt.Errorf("active_end: %w", err)
		}
	}

	r := &Runner{
		cfg:         cfg,
		logger:      logger.With("component", "heartbeat"),
		now:         time.Now,
		activeStart: start,
		activeEnd:   end,
	}
	r.wake = NewWake(cfg.Coalesce, r.RunOnce, logger)
	return r, nil
}

// OnTasks registers a handler invoked with the pending tasks of each run.
func (r *Runner) OnTasks(h TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// OnResponse registers the delivery callback for non-suppressed response
// text.
func (r *Runner) OnResponse(fn func(text string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResponse = fn
}

// Wake exposes the coalescer so external sources (cron, file watchers,
// manual triggers) can request runs.
func (r *Runner) Wake() *Wake { return r.wake }

// RequestNow asks for a run through the coalescer.
func (r *Runner) RequestNow(reason, source string) {
	r.wake.Request(reason, source)
}

// Start arms the schedule: the first run is due immediately, later ones at
// lastRunAt + interval.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	delay := time.Duration(0)
	if !r.lastRunAt.IsZero() {
		delay = time.Until(r.lastRunAt.Add(r.cfg.Interval))
		if delay < 0 {
			delay = 0
		}
	}
	r.armLocked(delay)
	r.logger.Info("heartbeat started",
		"interval", r.cfg.Interval.String(),
		"task_file", r.cfg.TaskFile,
		"active_hours", fmt.Sprintf("%s-%s", r.cfg.ActiveStart, r.cfg.ActiveEnd),
	)
}

// Stop cancels the schedule and the coalescer.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	r.wake.Stop()
	r.logger.Info("heartbeat stopped")
}

// LastRunAt returns when the last committed run happened.
func (r *Runner) LastRunAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRunAt
}

// RunOnce executes one heartbeat run. It is the wake coalescer's handler and
// may also be driven directly in tests.
func (r *Runner) RunOnce(ctx context.Context, req Request) Result {
	now := r.now()

	// Active-hours gate: a skipped run leaves lastRunAt alone so the next
	// in-window run is not mistaken for recent activity.
	if !r.withinActiveHours(now) {
		r.logger.Debug("heartbeat outside active hours", "reason", req.Reason)
		r.rearm(r.cfg.Interval)
		return Result{Status: StatusSkipped, Reason: SkipOutsideActiveHours}
	}

	tasks, err := LoadTasks(r.cfg.TaskFile)
	if err != nil {
		r.logger.Warn("heartbeat task file unreadable", "path", r.cfg.TaskFile, "error", err)
	}
	pending := Pending(tasks)

	// Nothing to do: commit the run so the schedule stays on cadence, but
	// don't bother the handlers. An explicit exec request always runs.
	if len(pending) == 0 && req.Reason != ReasonExec {
		r.commit(now, "")
		return Result{Status: StatusSkipped, Reason: SkipNoPendingTasks}
	}

	text := r.dispatch(ctx, pending, req)

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && r.isDuplicate(trimmed, now) {
		r.logger.Debug("heartbeat response suppressed as duplicate", "len", len(trimmed))
		r.commit(now, "")
		return Result{Status: StatusSkipped, Reason: SkipDuplicateOutput}
	}

	r.commit(now, trimmed)
	if trimmed != "" {
		r.mu.Lock()
		deliver := r.onResponse
		r.mu.Unlock()
		if deliver != nil {
			deliver(trimmed)
		}
	}
	return Result{Status: StatusOK, Text: trimmed}
}

// dispatch fans the run out to every handler; the last non-empty response
// wins. A handler error is logged and does not stop the others.
func (r *Runner) dispatch(ctx context.Context, pending []Task, req Request) string {
	r.mu.Lock()
	handlers := append([]TaskHandler(nil), r.handlers...)
	r.mu.Unlock()

	var text string
	for _, h := range handlers {
		out, err := h(ctx, pending, req)
		if err != nil {
			r.logger.Warn("heartbeat handler failed", "reason", req.Reason, "error", err)
			continue
		}
		if strings.TrimSpace(out) != "" {
			text = out
		}
	}
	return text
}

// isDuplicate reports whether text matches the last delivered response
// within the suppression window.
func (r *Runner) isDuplicate(trimmed string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return trimmed == strings.TrimSpace(r.lastText) &&
		!r.lastTextAt.IsZero() &&
		now.Sub(r.lastTextAt) < r.cfg.DuplicateWindow
}

// commit records the run and rearms the schedule from it.
func (r *Runner) commit(now time.Time, trimmed string) {
	r.mu.Lock()
	r.lastRunAt = now
	if trimmed != "" {
		r.lastText = trimmed
		r.lastTextAt = now
	}
	r.mu.Unlock()
	r.rearm(r.cfg.Interval)
}

// rearm replaces the single-shot schedule timer. The timer only issues a
// wake request so the execution still passes the coalescer and all gates.
func (r *Runner) rearm(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.armLocked(delay)
}

// armLocked replaces the schedule timer. Callers hold r.mu.
func (r *Runner) armLocked(delay time.Duration) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(delay, func() {
		r.wake.Request(ReasonInterval, "timer")
	})
}

// withinActiveHours applies the [start, end) minutes-of-day gate; end at or
// before start wraps past midnight.
func (r *Runner) withinActiveHours(now time.Time) bool {
	if r.activeStart < 0 || r.activeEnd < 0 {
		return true
	}
	m := now.Hour()*60 + now.Minute()
	if r.activeEnd <= r.activeStart {
		return m >= r.activeStart || m < r.activeEnd
	}
	return m >= r.activeStart && m < r.activeEnd
}

// parseClock parses "HH:MM" into minutes of day.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
