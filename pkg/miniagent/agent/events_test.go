package agent

import (
	"sync"
	"testing"
)

func TestEventBusSequencePerRun(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var got []Event
	defer bus.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})()

	bus.Emit(Event{RunID: "r1", Stream: StreamAssistant, Type: StreamEventTextDelta})
	bus.Emit(Event{RunID: "r1", Stream: StreamAssistant, Type: StreamEventTextDelta})
	bus.Emit(Event{RunID: "r2", Stream: StreamAssistant, Type: StreamEventTextDelta})

	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("r1 seqs = %d, %d; want 1, 2", got[0].Seq, got[1].Seq)
	}
	if got[2].Seq != 1 {
		t.Errorf("r2 seq = %d, want independent counter starting at 1", got[2].Seq)
	}
	for _, ev := range got {
		if ev.Timestamp == 0 {
			t.Error("timestamp not stamped")
		}
	}
}

func TestEventBusReleasesSequenceOnLifecycleEnd(t *testing.T) {
	bus := NewEventBus()

	var last Event
	defer bus.Subscribe(func(ev Event) { last = ev })()

	bus.Emit(Event{RunID: "r1", Stream: StreamAssistant, Type: StreamEventTextDelta})
	bus.Emit(Event{RunID: "r1", Stream: StreamLifecycle, Type: "run", Data: map[string]any{"phase": PhaseEnd}})

	// A reused run id starts a fresh counter after release.
	bus.Emit(Event{RunID: "r1", Stream: StreamAssistant, Type: StreamEventTextDelta})
	if last.Seq != 1 {
		t.Errorf("seq after release = %d, want 1", last.Seq)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	count := 0
	unsub := bus.Subscribe(func(Event) { count++ })

	bus.Emit(Event{RunID: "r1", Stream: StreamTool, Type: StreamEventToolCallStart})
	unsub()
	bus.Emit(Event{RunID: "r1", Stream: StreamTool, Type: StreamEventToolCallEnd})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestEventBusSubscribeRunFilters(t *testing.T) {
	bus := NewEventBus()

	count := 0
	defer bus.SubscribeRun("mine", func(Event) { count++ })()

	bus.Emit(Event{RunID: "mine", Stream: StreamAssistant, Type: StreamEventTextDelta})
	bus.Emit(Event{RunID: "other", Stream: StreamAssistant, Type: StreamEventTextDelta})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestEventBusSurvivesPanickingListener(t *testing.T) {
	bus := NewEventBus()

	defer bus.Subscribe(func(Event) { panic("listener bug") })()
	delivered := false
	defer bus.Subscribe(func(Event) { delivered = true })()

	bus.Emit(Event{RunID: "r1", Stream: StreamError, Type: "unknown"})

	if !delivered {
		t.Error("panic in one listener starved the others")
	}
}
