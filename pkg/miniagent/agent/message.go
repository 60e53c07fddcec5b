// Package agent – message.go defines the conversation message model shared
// by the agent loop, the session log, and the model providers. A message is
// a role plus an ordered list of content blocks; blocks are a tagged union
// distinguished by a "type" field when serialized.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block type discriminators used in serialized form.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// ContentBlock is one unit of message content. Exactly one variant is
// populated, selected by Type:
//
//   - "text":        Text
//   - "tool_use":    ID, Name, Input
//   - "tool_result": ToolUseID, Name, Content
type ContentBlock struct {
	Type string `json:"type"`

	// Text payload for "text" blocks.
	Text string `json:"text,omitempty"`

	// Tool invocation fields for "tool_use" blocks.
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// Tool outcome fields for "tool_result" blocks. Name is shared with
	// tool_use and names the tool that produced the result.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// ToolUseBlock builds a tool invocation block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool outcome block answering the tool_use
// identified by toolUseID.
func ToolResultBlock(toolUseID, name, content string) ContentBlock {
	return ContentBlock{Type: BlockTypeToolResult, ToolUseID: toolUseID, Name: name, Content: content}
}

// Message is one conversation entry. Timestamp is Unix milliseconds,
// assigned when the message is created.
type Message struct {
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	Timestamp int64          `json:"ts"`
}

// NewUserMessage builds a user message from content blocks.
func NewUserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks, Timestamp: NowMillis()}
}

// NewUserText builds a user message holding a single text block.
func NewUserText(text string) Message {
	return NewUserMessage(TextBlock(text))
}

// NewAssistantMessage builds an assistant message from content blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks, Timestamp: NowMillis()}
}

// NowMillis returns the current time as Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Text concatenates the message's text blocks in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the message's tool_use blocks in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockTypeToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolResults returns the message's tool_result blocks in order.
func (m Message) ToolResults() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockTypeToolResult {
			out = append(out, b)
		}
	}
	return out
}

// HasToolUse reports whether the message contains at least one tool_use block.
func (m Message) HasToolUse() bool {
	for _, b := range m.Content {
		if b.Type == BlockTypeToolUse {
			return true
		}
	}
	return false
}

// blockText renders a block to the string form used for token estimation.
func blockText(b ContentBlock) string {
	switch b.Type {
	case BlockTypeText:
		return b.Text
	case BlockTypeToolUse:
		args := ""
		if len(b.Input) > 0 {
			if raw, err := json.Marshal(b.Input); err == nil {
				args = string(raw)
			}
		}
		return fmt.Sprintf("%s %s", b.Name, args)
	case BlockTypeToolResult:
		return b.Content
	default:
		return ""
	}
}
