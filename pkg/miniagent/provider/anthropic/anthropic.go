// Package anthropic adapts the Anthropic Messages streaming API to the
// agent's stream contract. SDK stream events map onto the four loop events
// (text delta, text end, tool call start, tool call end); the adapter's
// return value is the settle signal for the turn.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jholhewres/mini-agent/pkg/miniagent/agent"
)

// DefaultModel is used when the request names no model.
const DefaultModel = "claude-sonnet-4-5"

// defaultMaxTokens caps completions when the request does not.
const defaultMaxTokens = 4096

// Client wraps an Anthropic SDK client behind agent.StreamFn.
type Client struct {
	sdk sdk.Client
}

// New builds a client from an API key.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required (set ANTHROPIC_API_KEY)")
	}
	return &Client{sdk: sdk.NewClient(option.WithAPIKey(apiKey))}, nil
}

// StreamFn returns the adapter bound to this client.
func (c *Client) StreamFn() agent.StreamFn {
	return c.Stream
}

// Stream executes one streaming Messages turn, emitting loop events as SDK
// events arrive. Returning nil means every emitted tool call is complete and
// the text is final. Provider error text is preserved verbatim so the
// caller's classifier sees upstream status strings.
func (c *Client) Stream(ctx context.Context, req *agent.StreamRequest, emit func(agent.StreamEvent)) error {
	params, err := encodeRequest(req)
	if err != nil {
		return err
	}

	stream := c.sdk.Messages.NewStreaming(ctx, *params)
	defer stream.Close()

	var (
		text  strings.Builder
		tools = make(map[int]*toolBuffer)
	)
	for stream.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				tools[int(ev.Index)] = &toolBuffer{id: tu.ID, name: tu.Name}
				emit(agent.StreamEvent{
					Type:     agent.StreamEventToolCallStart,
					ToolCall: &agent.ToolCall{ID: tu.ID, Name: tu.Name},
				})
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				text.WriteString(delta.Text)
				emit(agent.StreamEvent{Type: agent.StreamEventTextDelta, Delta: delta.Text})
			case sdk.InputJSONDelta:
				if tb := tools[int(ev.Index)]; tb != nil {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			tb := tools[int(ev.Index)]
			if tb == nil {
				continue
			}
			delete(tools, int(ev.Index))
			input, err := tb.decodeInput()
			if err != nil {
				return fmt.Errorf("anthropic: tool %q arguments: %w", tb.name, err)
			}
			emit(agent.StreamEvent{
				Type:     agent.StreamEventToolCallEnd,
				ToolCall: &agent.ToolCall{ID: tb.id, Name: tb.name, Input: input},
			})
		case sdk.MessageStopEvent:
			emit(agent.StreamEvent{Type: agent.StreamEventTextEnd, Content: text.String()})
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return ctx.Err()
}

// toolBuffer accumulates a tool call's streamed JSON argument fragments.
type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) decodeInput() (map[string]any, error) {
	joined := strings.TrimSpace(strings.Join(tb.fragments, ""))
	if joined == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(joined), &input); err != nil {
		return nil, err
	}
	return input, nil
}

// encodeRequest translates a stream request into Messages params.
func encodeRequest(req *agent.StreamRequest) (*sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// encodeMessages maps the agent's block union onto SDK content blocks.
func encodeMessages(msgs []agent.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case agent.BlockTypeText:
				if b.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(b.Text))
				}
			case agent.BlockTypeToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(b.ID, input, b.Name))
			case agent.BlockTypeToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Content, false))
			default:
				return nil, fmt.Errorf("anthropic: unsupported block type %q", b.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case agent.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case agent.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("anthropic: at least one message is required")
	}
	return out, nil
}

// encodeTools maps tool descriptors onto SDK tool params. The input schema
// passes through as-is; the loop builds plain JSON Schema objects.
func encodeTools(descriptors []agent.ToolDescriptor) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: d.InputSchema}, d.Name)
		if u.OfTool != nil && d.Description != "" {
			u.OfTool.Description = sdk.String(d.Description)
		}
		out = append(out, u)
	}
	return out
}
