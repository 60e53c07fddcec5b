// Package agent – heartbeat.go binds the heartbeat runner to the
// orchestrator: each wake becomes a normal run in a dedicated session, so
// self-initiated work shares the lanes, pruning, and audit trail with chat.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/mini-agent/pkg/miniagent/heartbeat"
)

// HeartbeatSessionTail is the session id heartbeat runs execute in.
const HeartbeatSessionTail = "heartbeat"

// BuildHeartbeatPrompt renders the user message a heartbeat run starts
// from: the current time, the wake reason, and the pending checklist.
func BuildHeartbeatPrompt(now time.Time, req heartbeat.Request, tasks []heartbeat.Task) string {
	var sb strings.Builder
	sb.WriteString("Heartbeat check at ")
	sb.WriteString(now.Format("2006-01-02 15:04"))
	sb.WriteString(" (reason: ")
	sb.WriteString(req.Reason)
	if req.Source != "" {
		sb.WriteString(", source: ")
		sb.WriteString(req.Source)
	}
	sb.WriteString(").\n")

	if len(tasks) == 0 {
		sb.WriteString("No pending tasks. Reply briefly if there is nothing to do.\n")
		return sb.String()
	}

	sb.WriteString("Pending tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- [line %d] %s\n", t.Line, t.Description)
	}
	sb.WriteString("\nWork on what you can. Use mark_task_complete for anything you finish.\n")
	return sb.String()
}

// NewHeartbeatHandler returns the task handler the runner dispatches on
// each committed wake. It executes one run in the agent's heartbeat session
// and hands the final text back to the runner for duplicate suppression
// and delivery.
func NewHeartbeatHandler(o *Orchestrator, agentID string) heartbeat.TaskHandler {
	return func(ctx context.Context, tasks []heartbeat.Task, req heartbeat.Request) (string, error) {
		pending := heartbeat.Pending(tasks)
		prompt := BuildHeartbeatPrompt(time.Now(), req, pending)
		res, err := o.Run(ctx, RunRequest{
			AgentID:   agentID,
			SessionID: HeartbeatSessionTail,
			Input:     prompt,
		})
		if err != nil {
			return "", fmt.Errorf("heartbeat run: %w", err)
		}
		return strings.TrimSpace(res.Text), nil
	}
}

// RegisterHeartbeatTools adds the checklist tools so a heartbeat run can
// close out the tasks it finishes.
func RegisterHeartbeatTools(reg *ToolRegistry, taskFile string) {
	reg.Register(ToolDefinition{
		Name:        "list_tasks",
		Description: "List the heartbeat task checklist with line numbers and completion state.",
		InputSchema: ObjectSchema(map[string]any{}),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		tasks, err := heartbeat.LoadTasks(taskFile)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			return "no tasks", nil
		}
		var sb strings.Builder
		for _, t := range tasks {
			box := " "
			if t.Completed {
				box = "x"
			}
			fmt.Fprintf(&sb, "%d: [%s] %s\n", t.Line, box, t.Description)
		}
		return sb.String(), nil
	})

	reg.Register(ToolDefinition{
		Name:        "mark_task_complete",
		Description: "Mark one heartbeat task as done by its line number.",
		InputSchema: ObjectSchema(map[string]any{
			"line": map[string]any{"type": "integer", "description": "1-based line number of the task"},
		}, "line"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		line, ok := numberArg(args, "line")
		if !ok {
			return nil, fmt.Errorf("line is required")
		}
		if err := heartbeat.MarkComplete(taskFile, line); err != nil {
			return nil, err
		}
		return fmt.Sprintf("task at line %d marked complete", line), nil
	})
}

// numberArg reads an integer argument that JSON decoding may have left as
// float64.
func numberArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
