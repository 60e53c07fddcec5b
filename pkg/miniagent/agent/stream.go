// Package agent – stream.go defines the seam between the loop and a model
// provider. The loop hands the provider a request and an emit callback; the
// provider surfaces deltas and tool calls through emit as they arrive and
// settles the turn with its return value.
package agent

import (
	"context"
)

// Stream event types emitted during one model turn.
const (
	StreamEventTextDelta     = "text_delta"
	StreamEventTextEnd       = "text_end"
	StreamEventToolCallStart = "toolcall_start"
	StreamEventToolCallEnd   = "toolcall_end"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// StreamEvent is one increment of a model turn.
//
//   - text_delta:     Delta holds the new text fragment
//   - text_end:       Content holds the accumulated turn text
//   - toolcall_start: ToolCall holds ID and Name (Input not yet known)
//   - toolcall_end:   ToolCall holds the complete call with parsed Input
type StreamEvent struct {
	Type     string
	Delta    string
	Content  string
	ToolCall *ToolCall
}

// ToolDescriptor is the provider-facing description of a callable tool.
// InputSchema is a JSON Schema object.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StreamRequest is one model turn: full working message list plus the
// system prompt and the tool set the policy admitted.
type StreamRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDescriptor
	Model       string
	MaxTokens   int
	Temperature float64
}

// StreamFn executes one streaming model turn. Implementations must emit
// events in arrival order from the calling goroutine, honor ctx, and return
// only after the turn settles: a nil return means every emitted tool call is
// complete and the text is final. Errors are classified by the caller, so
// provider errors should preserve upstream status text.
type StreamFn func(ctx context.Context, req *StreamRequest, emit func(StreamEvent)) error
