// Package agent – events.go implements the in-memory pub/sub event bus the
// orchestrator and loop emit into. Fan-out is synchronous by direct function
// call; a panicking subscriber is swallowed so observers can never take down
// a run.
//
// Event streams:
//   - "lifecycle": phase start, end, error
//   - "assistant": text_delta, text_end
//   - "tool":      toolcall_start, toolcall_end
//   - "subagent":  spawned, summary
//   - "error":     classified run errors
package agent

import (
	"sync"
	"sync/atomic"
)

// Event streams.
const (
	StreamLifecycle = "lifecycle"
	StreamAssistant = "assistant"
	StreamTool      = "tool"
	StreamSubagent  = "subagent"
	StreamError     = "error"
)

// Lifecycle phases carried in Data["phase"].
const (
	PhaseStart = "start"
	PhaseEnd   = "end"
	PhaseError = "error"
)

// Event is one observable moment of a run. Seq starts at 1 and increases
// monotonically within a run; ordering across runs is by Timestamp only.
type Event struct {
	RunID      string         `json:"run_id"`
	Seq        int64          `json:"seq"`
	Timestamp  int64          `json:"ts"`
	Stream     string         `json:"stream"`
	Type       string         `json:"type"`
	SessionKey string         `json:"session_key,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// EventListener is a callback that receives events.
type EventListener func(event Event)

// EventBus is a thread-safe pub/sub hub. Subscribers receive events
// synchronously during Emit; keep listener logic fast or hand off to a
// goroutine internally.
type EventBus struct {
	listeners sync.Map // listenerID (uint64) → EventListener
	nextID    atomic.Uint64
	seqByRun  sync.Map // runID → *atomic.Int64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (eb *EventBus) Subscribe(fn EventListener) func() {
	id := eb.nextID.Add(1)
	eb.listeners.Store(id, fn)
	return func() { eb.listeners.Delete(id) }
}

// SubscribeRun registers a listener filtered to one run id.
func (eb *EventBus) SubscribeRun(runID string, fn EventListener) func() {
	return eb.Subscribe(func(event Event) {
		if event.RunID == runID {
			fn(event)
		}
	})
}

// Emit assigns the event's per-run sequence number and timestamp, then fans
// out to every listener. Emitting a lifecycle end or error event releases
// the run's sequence counter, so a reused run id would start again at 1.
func (eb *EventBus) Emit(event Event) {
	seq := eb.runSeq(event.RunID)
	event.Seq = seq.Add(1)
	if event.Timestamp == 0 {
		event.Timestamp = NowMillis()
	}

	eb.listeners.Range(func(_, value any) bool {
		if fn, ok := value.(EventListener); ok {
			safeNotify(fn, event)
		}
		return true
	})

	if event.Stream == StreamLifecycle {
		if phase, _ := event.Data["phase"].(string); phase == PhaseEnd || phase == PhaseError {
			eb.seqByRun.Delete(event.RunID)
		}
	}
}

// safeNotify delivers one event, swallowing listener panics.
func safeNotify(fn EventListener, event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}

func (eb *EventBus) runSeq(runID string) *atomic.Int64 {
	if v, ok := eb.seqByRun.Load(runID); ok {
		return v.(*atomic.Int64)
	}
	seq := &atomic.Int64{}
	actual, _ := eb.seqByRun.LoadOrStore(runID, seq)
	return actual.(*atomic.Int64)
}
