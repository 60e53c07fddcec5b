// Package agent – memory_tools.go exposes the long-term memory store to the
// model. Facts saved here surface in later runs through the system prompt's
// memory section.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jholhewres/mini-agent/pkg/miniagent/memory"
)

// RegisterMemoryTools adds the remember and recall tools over the store.
func RegisterMemoryTools(reg *ToolRegistry, store *memory.Store) {
	reg.Register(ToolDefinition{
		Name:        "remember",
		Description: "Save a fact to long-term memory so it is available in future conversations.",
		InputSchema: ObjectSchema(map[string]any{
			"content": StringProp("The fact to remember, one concise sentence."),
			"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional topic tags."},
		}, "content"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		content, _ := args["content"].(string)
		entry, err := store.Append(content, "agent", stringSlice(args["tags"]))
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("remembered (id %s)", entry.ID), nil
	})

	reg.Register(ToolDefinition{
		Name:        "recall",
		Description: "Search long-term memory for facts matching a query.",
		InputSchema: ObjectSchema(map[string]any{
			"query": StringProp("Keywords to search for."),
		}, "query"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		results, err := store.Search(query, memory.DefaultMaxResults)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return "no matching memories", nil
		}
		var sb strings.Builder
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s\n", r.Content)
		}
		return sb.String(), nil
	})
}

// stringSlice coerces a decoded JSON array into []string, dropping anything
// that is not a string.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
