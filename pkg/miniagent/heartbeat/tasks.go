// Package heartbeat implements the agent's self-initiated invocation
// subsystem: a markdown task list, a wake coalescer that merges bursts of
// wake requests into single executions, and a drift-free runner that gates
// executions by active hours and suppresses duplicate output.
package heartbeat

import (
	"fmt"
	"os"
	"strings"
)

// Task is one checklist item from the heartbeat task file.
type Task struct {
	// Description is the item text after the list marker and checkbox.
	Description string

	// Completed is true for "- [x]" items (case-insensitive x).
	Completed bool

	// Raw is the original line, unmodified.
	Raw string

	// Line is the 1-based line number in the file, used by MarkComplete.
	Line int
}

// ParseTasks extracts tasks from a markdown checklist. Recognized lines:
//
//	- [ ] description   → incomplete
//	- [x] description   → complete
//	- description       → incomplete (bare list item)
//
// Blank lines and headings are skipped; any other line is ignored.
func ParseTasks(content string) []Task {
	var tasks []Task
	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "- ") && line != "-" {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "-"))

		task := Task{Raw: raw, Line: i + 1}
		switch {
		case strings.HasPrefix(rest, "[ ]"):
			task.Description = strings.TrimSpace(rest[3:])
		case strings.HasPrefix(rest, "[x]"), strings.HasPrefix(rest, "[X]"):
			task.Completed = true
			task.Description = strings.TrimSpace(rest[3:])
		default:
			task.Description = rest
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// LoadTasks reads and parses the task file. A missing file yields an empty
// list, not an error: an absent HEARTBEAT.md simply means nothing to do.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return ParseTasks(string(data)), nil
}

// Pending filters tasks down to the incomplete ones.
func Pending(tasks []Task) []Task {
	var out []Task
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// MarkComplete rewrites the task file, replacing the first "[ ]" on the
// given 1-based line with "[x]". Lines without an open checkbox are left
// unchanged and reported as an error so callers notice a stale line number.
func MarkComplete(path string, line int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	if line < 1 || line > len(lines) {
		return fmt.Errorf("line %d out of range (file has %d lines)", line, len(lines))
	}
	idx := line - 1
	if !strings.Contains(lines[idx], "[ ]") {
		return fmt.Errorf("line %d has no open checkbox: %q", line, strings.TrimSpace(lines[idx]))
	}
	lines[idx] = strings.Replace(lines[idx], "[ ]", "[x]", 1)

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), mode); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}
