package agent

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestAudit(t *testing.T) *AuditLogger {
	t.Helper()
	db, err := OpenAuditDB(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("OpenAuditDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditLogger(db, nil)
}

func TestAuditLogAndRecent(t *testing.T) {
	audit := newTestAudit(t)

	audit.Log("read", "agent:main:cli", "run-1", true, "map[path:a.txt]", "file contents")
	audit.Log("exec", "agent:main:cli", "run-1", false, "map[command:rm -rf /]", "执行错误: denied")

	if got := audit.Count(); got != 2 {
		t.Fatalf("count = %d", got)
	}

	entries := audit.Recent(10)
	if len(entries) != 2 {
		t.Fatalf("recent = %d entries", len(entries))
	}
	// Newest first.
	if !strings.Contains(entries[0], "tool=exec") || !strings.Contains(entries[0], "BLOCKED") {
		t.Errorf("first entry = %q", entries[0])
	}
	if !strings.Contains(entries[1], "tool=read") || !strings.Contains(entries[1], "OK") {
		t.Errorf("second entry = %q", entries[1])
	}
}

func TestAuditTruncatesSummaries(t *testing.T) {
	audit := newTestAudit(t)
	audit.Log("read", "agent:main:cli", "run-1", true, strings.Repeat("a", 900), strings.Repeat("b", 900))

	entries := audit.Recent(1)
	if len(entries) != 1 {
		t.Fatal("entry missing")
	}
	if !strings.Contains(entries[0], "...[truncated]") {
		t.Error("oversized summary not truncated")
	}
}

func TestAuditConcurrentLogAndRead(t *testing.T) {
	audit := newTestAudit(t)

	// WAL mode keeps loop appends and CLI reads from blocking each other.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			audit.Log("ping", "agent:main:cli", "run-2", true, "", "pong")
		}
		close(done)
	}()
	for i := 0; i < 20; i++ {
		audit.Recent(5)
	}
	<-done
	if audit.Count() != 20 {
		t.Errorf("count = %d", audit.Count())
	}
}
