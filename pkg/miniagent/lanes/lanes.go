// Package lanes implements named FIFO execution lanes with per-lane
// concurrency caps. The orchestrator nests a per-session lane (cap 1) inside
// a shared global lane so runs for one session serialize while distinct
// sessions interleave up to the global cap.
package lanes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Scheduler owns the lane table. Lanes are created on demand by Enqueue and
// live until Delete succeeds.
type Scheduler struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	logger *slog.Logger
}

type lane struct {
	name   string
	max    int
	active int
	queue  []*waiter
}

// waiter is one queued task. admitted is closed when the lane grants a slot;
// cancelled marks a waiter abandoned before admission so the pump skips it.
type waiter struct {
	admitted  chan struct{}
	cancelled bool
}

// NewScheduler creates an empty lane scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		lanes:  make(map[string]*lane),
		logger: logger.With("component", "lanes"),
	}
}

// Enqueue appends fn to the named lane and blocks until fn has run or ctx is
// cancelled while still queued. The lane is created with maxConcurrent if it
// does not exist yet; an existing lane keeps its current cap. fn's error is
// returned to this caller and never affects other queued tasks.
func (s *Scheduler) Enqueue(ctx context.Context, name string, maxConcurrent int, fn func() error) error {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	s.mu.Lock()
	ln, ok := s.lanes[name]
	if !ok {
		ln = &lane{name: name, max: maxConcurrent}
		s.lanes[name] = ln
	}
	w := &waiter{admitted: make(chan struct{})}
	ln.queue = append(ln.queue, w)
	s.pumpLocked(ln)
	s.mu.Unlock()

	select {
	case <-w.admitted:
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-w.admitted:
			// Admission raced the cancellation: the slot is already
			// held and must be released.
			ln.active--
			s.pumpLocked(ln)
			s.mu.Unlock()
		default:
			w.cancelled = true
			s.mu.Unlock()
		}
		return ctx.Err()
	}

	defer func() {
		s.mu.Lock()
		ln.active--
		s.pumpLocked(ln)
		s.mu.Unlock()
	}()
	return fn()
}

// pumpLocked admits queued waiters while capacity remains. Callers hold s.mu.
func (s *Scheduler) pumpLocked(ln *lane) {
	for ln.active < ln.max && len(ln.queue) > 0 {
		w := ln.queue[0]
		ln.queue = ln.queue[1:]
		if w.cancelled {
			continue
		}
		ln.active++
		close(w.admitted)
	}
}

// SetMaxConcurrent changes a lane's cap. Raising the cap admits queued
// tasks immediately; lowering it only affects future admissions, tasks
// already running are never interrupted. Creates the lane when absent so a
// cap can be configured ahead of first use.
func (s *Scheduler) SetMaxConcurrent(name string, max int) {
	if max < 1 {
		max = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ln, ok := s.lanes[name]
	if !ok {
		ln = &lane{name: name, max: max}
		s.lanes[name] = ln
		return
	}
	ln.max = max
	s.pumpLocked(ln)
}

// Delete removes an idle lane. A lane with running or queued tasks is left
// in place and an error is returned.
func (s *Scheduler) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ln, ok := s.lanes[name]
	if !ok {
		return nil
	}
	if ln.active > 0 || len(ln.queue) > 0 {
		return fmt.Errorf("lane %q busy: %d active, %d queued", name, ln.active, len(ln.queue))
	}
	delete(s.lanes, name)
	return nil
}

// Stats reports a lane's active and queued counts. Both are zero for an
// unknown lane.
func (s *Scheduler) Stats(name string) (active, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ln, ok := s.lanes[name]
	if !ok {
		return 0, 0
	}
	pending := 0
	for _, w := range ln.queue {
		if !w.cancelled {
			pending++
		}
	}
	return ln.active, pending
}

// Lanes returns the names of all existing lanes.
func (s *Scheduler) Lanes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.lanes))
	for name := range s.lanes {
		names = append(names, name)
	}
	return names
}
