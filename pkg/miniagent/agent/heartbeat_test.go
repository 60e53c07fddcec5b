package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/mini-agent/pkg/miniagent/heartbeat"
)

func TestBuildHeartbeatPrompt(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	tasks := []heartbeat.Task{
		{Line: 3, Description: "water the plants"},
		{Line: 7, Description: "check the inbox"},
	}

	out := BuildHeartbeatPrompt(now, heartbeat.Request{Reason: heartbeat.ReasonCron, Source: "0 9 * * *"}, tasks)
	if !strings.Contains(out, "Heartbeat check at 2026-03-10 09:15") {
		t.Errorf("timestamp missing:\n%s", out)
	}
	if !strings.Contains(out, "reason: cron") || !strings.Contains(out, "source: 0 9 * * *") {
		t.Errorf("wake attribution missing:\n%s", out)
	}
	if !strings.Contains(out, "- [line 3] water the plants") ||
		!strings.Contains(out, "- [line 7] check the inbox") {
		t.Errorf("pending list missing:\n%s", out)
	}
	if !strings.Contains(out, "mark_task_complete") {
		t.Errorf("completion instruction missing:\n%s", out)
	}
}

func TestBuildHeartbeatPromptNoTasks(t *testing.T) {
	out := BuildHeartbeatPrompt(time.Now(), heartbeat.Request{Reason: heartbeat.ReasonInterval}, nil)
	if !strings.Contains(out, "No pending tasks") {
		t.Errorf("empty checklist line missing:\n%s", out)
	}
	if strings.Contains(out, "source:") {
		t.Errorf("empty source rendered:\n%s", out)
	}
}

func TestHeartbeatTools(t *testing.T) {
	taskFile := filepath.Join(t.TempDir(), "HEARTBEAT.md")
	content := "# Tasks\n- [ ] first thing\n- [x] already done\n- [ ] second thing\n"
	if err := os.WriteFile(taskFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewToolRegistry(nil)
	RegisterHeartbeatTools(reg, taskFile)

	listing := reg.Execute(context.Background(), ToolCall{Name: "list_tasks"})
	if !strings.Contains(listing, "[ ] first thing") || !strings.Contains(listing, "[x] already done") {
		t.Errorf("listing = %q", listing)
	}

	// Mark line 2 ("first thing") complete; JSON numbers arrive as float64.
	got := reg.Execute(context.Background(), ToolCall{
		Name:  "mark_task_complete",
		Input: map[string]any{"line": float64(2)},
	})
	if !strings.Contains(got, "line 2 marked complete") {
		t.Errorf("got %q", got)
	}
	tasks, err := heartbeat.LoadTasks(taskFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(heartbeat.Pending(tasks)) != 1 {
		t.Errorf("pending after completion = %d, want 1", len(heartbeat.Pending(tasks)))
	}

	// Missing argument surfaces as tool failure text, not a run error.
	bad := reg.Execute(context.Background(), ToolCall{Name: "mark_task_complete"})
	if !strings.HasPrefix(bad, "执行错误: ") {
		t.Errorf("missing line = %q", bad)
	}
}
