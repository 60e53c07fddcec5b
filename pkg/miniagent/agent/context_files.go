// Package agent – context_files.go loads the workspace bootstrap files
// (AGENT.md, HEARTBEAT.md, CONTEXT.md) that become the context section of
// the system prompt. Three locations are consulted per file, later ones
// overriding earlier: the home config dir, the workspace root, and the
// workspace's private .mini-agent mirror.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Bootstrap file names scanned in order.
var contextFileNames = []string{"AGENT.md", "HEARTBEAT.md", "CONTEXT.md"}

// contextMaxChars caps the assembled context section so oversized bootstrap
// files cannot crowd out the conversation.
const contextMaxChars = 20_000

// ContextDirs names the three layered locations for bootstrap files.
type ContextDirs struct {
	// Home is the user-global config dir (~/.mini-agent).
	Home string

	// Workspace is the workspace root.
	Workspace string

	// WorkspacePrivate is the workspace's .mini-agent dir.
	WorkspacePrivate string
}

// DefaultContextDirs derives the standard three locations.
func DefaultContextDirs(homeDir, workspace string) ContextDirs {
	dirs := ContextDirs{Workspace: workspace}
	if homeDir != "" {
		dirs.Home = filepath.Join(homeDir, ".mini-agent")
	}
	if workspace != "" {
		dirs.WorkspacePrivate = filepath.Join(workspace, ".mini-agent")
	}
	return dirs
}

// LoadContextFiles assembles the context section: one "## NAME" section per
// bootstrap file found, in scan order. For each name the most specific
// location wins outright; contents are not merged across locations.
func LoadContextFiles(dirs ContextDirs) string {
	var sb strings.Builder
	for _, name := range contextFileNames {
		content := readLayeredFile(dirs, name)
		if content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", name, content)
	}
	out := sb.String()
	if len(out) > contextMaxChars {
		out = out[:contextMaxChars] + "\n... [context truncated at limit]"
	}
	return out
}

// readLayeredFile returns the content of the highest-precedence copy of
// name, or "" when no location has it.
func readLayeredFile(dirs ContextDirs, name string) string {
	var content string
	for _, dir := range []string{dirs.Home, dirs.Workspace, dirs.WorkspacePrivate} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			content = text
		}
	}
	return content
}
