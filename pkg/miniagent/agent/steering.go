// Package agent – steering.go holds the per-session queues of follow-up
// user text injected into live runs. The loop drains a session's queue
// between tool executions; text queued for an idle session waits for the
// next run.
package agent

import (
	"strings"
	"sync"
)

// SteeringQueues is the session-keyed steering buffer shared between the
// orchestrator (writer) and the loop (reader).
type SteeringQueues struct {
	mu sync.Mutex
	m  map[string][]string
}

// NewSteeringQueues creates an empty buffer.
func NewSteeringQueues() *SteeringQueues {
	return &SteeringQueues{m: make(map[string][]string)}
}

// Push appends text to the session's queue. Empty text is ignored.
func (q *SteeringQueues) Push(sessionKey, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.m[sessionKey] = append(q.m[sessionKey], text)
}

// HasPending reports whether the session has queued steering text.
func (q *SteeringQueues) HasPending(sessionKey string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.m[sessionKey]) > 0
}

// Drain removes and returns the session's queued texts in arrival order.
func (q *SteeringQueues) Drain(sessionKey string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	texts := q.m[sessionKey]
	delete(q.m, sessionKey)
	return texts
}

// DrainJoined drains the queue and joins the texts with newlines, which is
// the form the loop appends as a single user message.
func (q *SteeringQueues) DrainJoined(sessionKey string) string {
	return strings.Join(q.Drain(sessionKey), "\n")
}
