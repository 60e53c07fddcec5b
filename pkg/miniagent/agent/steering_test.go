package agent

import (
	"reflect"
	"testing"
)

func TestSteeringQueues(t *testing.T) {
	q := NewSteeringQueues()

	if q.HasPending("s1") {
		t.Error("fresh queue reports pending")
	}

	q.Push("s1", "first")
	q.Push("s1", "second")
	q.Push("s2", "elsewhere")
	q.Push("s1", "   ") // ignored

	if !q.HasPending("s1") || !q.HasPending("s2") {
		t.Fatal("pending not reported")
	}

	got := q.Drain("s1")
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("drain = %v", got)
	}
	if q.HasPending("s1") {
		t.Error("drain must empty the queue")
	}
	if q.Drain("s1") != nil {
		t.Error("second drain should be empty")
	}

	// Other sessions untouched.
	if !q.HasPending("s2") {
		t.Error("s2 drained by accident")
	}
}

func TestSteeringDrainJoined(t *testing.T) {
	q := NewSteeringQueues()
	q.Push("s", "line one")
	q.Push("s", "line two")

	if got := q.DrainJoined("s"); got != "line one\nline two" {
		t.Errorf("got %q", got)
	}
	if got := q.DrainJoined("s"); got != "" {
		t.Errorf("empty queue joined = %q", got)
	}
}
