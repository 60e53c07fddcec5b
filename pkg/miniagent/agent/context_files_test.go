package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeContextFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadContextFilesLayering(t *testing.T) {
	home := t.TempDir()
	workspace := t.TempDir()
	private := filepath.Join(workspace, ".mini-agent")

	writeContextFile(t, home, "AGENT.md", "home agent")
	writeContextFile(t, workspace, "AGENT.md", "workspace agent")
	writeContextFile(t, workspace, "HEARTBEAT.md", "workspace heartbeat")
	writeContextFile(t, private, "HEARTBEAT.md", "private heartbeat")
	writeContextFile(t, home, "CONTEXT.md", "home context")

	out := LoadContextFiles(ContextDirs{Home: home, Workspace: workspace, WorkspacePrivate: private})

	// Most specific copy wins outright, no merging.
	if !strings.Contains(out, "workspace agent") || strings.Contains(out, "home agent") {
		t.Errorf("workspace should shadow home for AGENT.md:\n%s", out)
	}
	if !strings.Contains(out, "private heartbeat") || strings.Contains(out, "workspace heartbeat") {
		t.Errorf("private should shadow workspace for HEARTBEAT.md:\n%s", out)
	}
	if !strings.Contains(out, "home context") {
		t.Errorf("home-only file missing:\n%s", out)
	}

	// Sections appear in scan order under markdown headers.
	agentIdx := strings.Index(out, "## AGENT.md")
	hbIdx := strings.Index(out, "## HEARTBEAT.md")
	ctxIdx := strings.Index(out, "## CONTEXT.md")
	if agentIdx < 0 || hbIdx < 0 || ctxIdx < 0 || !(agentIdx < hbIdx && hbIdx < ctxIdx) {
		t.Errorf("section order wrong: %d %d %d", agentIdx, hbIdx, ctxIdx)
	}
}

func TestLoadContextFilesEmpty(t *testing.T) {
	if out := LoadContextFiles(ContextDirs{Workspace: t.TempDir()}); out != "" {
		t.Errorf("no files should render empty, got %q", out)
	}
	// Whitespace-only files count as absent.
	dir := t.TempDir()
	writeContextFile(t, dir, "AGENT.md", "   \n\t\n")
	if out := LoadContextFiles(ContextDirs{Workspace: dir}); out != "" {
		t.Errorf("blank file rendered %q", out)
	}
}

func TestLoadContextFilesTruncates(t *testing.T) {
	dir := t.TempDir()
	writeContextFile(t, dir, "AGENT.md", strings.Repeat("x", 30_000))

	out := LoadContextFiles(ContextDirs{Workspace: dir})
	if len(out) > 21_000 {
		t.Errorf("len = %d, want truncated near the cap", len(out))
	}
	if !strings.HasSuffix(out, "[context truncated at limit]") {
		t.Errorf("truncation marker missing: %q", out[len(out)-60:])
	}
}

func TestDefaultContextDirs(t *testing.T) {
	dirs := DefaultContextDirs("/home/u", "/ws")
	if dirs.Home != filepath.Join("/home/u", ".mini-agent") {
		t.Errorf("home = %q", dirs.Home)
	}
	if dirs.Workspace != "/ws" || dirs.WorkspacePrivate != filepath.Join("/ws", ".mini-agent") {
		t.Errorf("dirs = %+v", dirs)
	}
	empty := DefaultContextDirs("", "")
	if empty.Home != "" || empty.WorkspacePrivate != "" {
		t.Errorf("empty inputs should leave dirs empty: %+v", empty)
	}
}
