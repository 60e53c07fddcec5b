// Package agent – tools.go manages the registry of callable tools and
// executes tool calls from the model one at a time. Execution is strictly
// sequential: the loop needs a settled result (and a steering check) between
// calls.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultToolTimeout bounds a single tool execution.
const DefaultToolTimeout = 30 * time.Second

// Tool failure texts. Failures are surfaced to the model as tool_result
// content, never as run errors, so the model can route around them.
const (
	toolErrorPrefix   = "执行错误: "
	unknownToolPrefix = "未知工具: "
)

// ToolHandlerFunc executes a tool call. The returned value is formatted
// into the tool_result content; an error is reported to the model with the
// failure prefix.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDefinition describes a registered tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

type registeredTool struct {
	def     ToolDefinition
	handler ToolHandlerFunc
}

// ToolRegistry holds the callable tools and dispatches calls to them.
// Observer views created by withObserver share the tool table, so all
// registration must complete before the first run.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]registeredTool
	order   []string
	timeout time.Duration
	logger  *slog.Logger
	observe func(call ToolCall, content string)
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:   make(map[string]registeredTool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tools"),
	}
}

// SetTimeout overrides the per-call timeout.
func (r *ToolRegistry) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(def ToolDefinition, handler ToolHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
}

// Names returns the registered tool names sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the provider-facing descriptors of the tools the
// policy admits, in registration order.
func (r *ToolRegistry) Descriptors(policy ToolPolicy) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ToolDescriptor
	for _, name := range r.order {
		if !policy.Allows(name) {
			continue
		}
		t := r.tools[name]
		out = append(out, ToolDescriptor{
			Name:        t.def.Name,
			Description: t.def.Description,
			InputSchema: t.def.InputSchema,
		})
	}
	return out
}

// Execute runs one tool call under the registry timeout and returns the
// tool_result content. A call naming an unregistered tool and a handler
// failure both produce result text rather than an error, mirroring what the
// model is allowed to see.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) string {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	timeout := r.timeout
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", "tool", call.Name)
		content := unknownToolPrefix + call.Name
		if r.observe != nil {
			r.observe(call, content)
		}
		return content
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := t.handler(callCtx, call.Input)
	elapsed := time.Since(start)

	var content string
	if err != nil {
		r.logger.Warn("tool execution failed",
			"tool", call.Name,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		content = toolErrorPrefix + err.Error()
	} else {
		r.logger.Debug("tool executed",
			"tool", call.Name,
			"duration_ms", elapsed.Milliseconds(),
		)
		content = formatToolOutput(result)
	}
	if r.observe != nil {
		r.observe(call, content)
	}
	return content
}

// withObserver returns a registry view that reports every execution's call
// and result content to observe. The underlying tool table is shared; only
// the observation hook differs per view.
func (r *ToolRegistry) withObserver(observe func(call ToolCall, content string)) *ToolRegistry {
	return &ToolRegistry{
		tools:   r.tools,
		order:   r.order,
		timeout: r.timeout,
		logger:  r.logger,
		observe: observe,
	}
}

// formatToolOutput renders a handler's return value as tool_result content.
func formatToolOutput(result any) string {
	switch v := result.(type) {
	case nil:
		return "OK"
	case string:
		return v
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// ObjectSchema builds the JSON Schema for a tool taking the given
// properties. required lists the property names that must be present.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProp builds a string property for ObjectSchema.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
