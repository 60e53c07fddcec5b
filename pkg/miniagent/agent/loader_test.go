package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Agent.ID != DefaultAgentID {
		t.Errorf("agent id = %q", cfg.Agent.ID)
	}
	if cfg.Agent.MaxTurns != DefaultMaxTurns || cfg.Agent.TokenBudget != 120_000 {
		t.Errorf("run limits = %+v", cfg.Agent)
	}
	if cfg.Lanes.MainMaxConcurrent != DefaultMaxConcurrentRuns {
		t.Errorf("main cap = %d", cfg.Lanes.MainMaxConcurrent)
	}
	if cfg.Heartbeat.Enabled || cfg.Tools.AllowExec {
		t.Error("heartbeat and exec must default off")
	}
	if !cfg.Tools.AllowWrite {
		t.Error("write defaults on")
	}
}

func TestLoadConfigFromFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mini-agent.yaml")
	content := `
agent:
  id: Helper
  max_turns: 5
heartbeat:
  enabled: true
  interval: 10m
  task_file: tasks/HEARTBEAT.md
audit:
  path: audit.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.ID != "Helper" || cfg.Agent.MaxTurns != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("unset fields must keep defaults, MaxTokens = %d", cfg.Agent.MaxTokens)
	}
	if cfg.Heartbeat.IntervalDuration() != 10*time.Minute {
		t.Errorf("interval = %v", cfg.Heartbeat.IntervalDuration())
	}
	// Relative paths anchor at the config file's directory.
	if cfg.Heartbeat.TaskFile != filepath.Join(dir, "tasks/HEARTBEAT.md") {
		t.Errorf("task file = %q", cfg.Heartbeat.TaskFile)
	}
	if cfg.Audit.Path != filepath.Join(dir, "audit.db") {
		t.Errorf("audit path = %q", cfg.Audit.Path)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MA_TEST_SET", "value")
	os.Unsetenv("MA_TEST_UNSET")

	tests := []struct {
		name, in, want string
	}{
		{"plain set", "key: ${MA_TEST_SET}", "key: value"},
		{"plain unset left intact", "key: ${MA_TEST_UNSET}", "key: ${MA_TEST_UNSET}"},
		{"default used", "key: ${MA_TEST_UNSET:-fallback}", "key: fallback"},
		{"default skipped when set", "key: ${MA_TEST_SET:-fallback}", "key: value"},
		{"no references", "key: plain", "key: plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnvVars(tt.in)
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnvVarsRequired(t *testing.T) {
	os.Unsetenv("MA_TEST_REQ")
	_, err := ExpandEnvVars("key: ${MA_TEST_REQ:?api key is required}")
	if err == nil || !strings.Contains(err.Error(), "api key is required") {
		t.Errorf("err = %v", err)
	}

	t.Setenv("MA_TEST_REQ", "present")
	got, err := ExpandEnvVars("key: ${MA_TEST_REQ:?missing}")
	if err != nil || got != "key: present" {
		t.Errorf("got %q err=%v", got, err)
	}
}

func TestFindConfigFile(t *testing.T) {
	ws := t.TempDir()
	if got := FindConfigFile(ws); got != "" {
		t.Errorf("empty workspace found %q", got)
	}

	hidden := filepath.Join(ws, ".mini-agent")
	os.MkdirAll(hidden, 0o755)
	os.WriteFile(filepath.Join(hidden, "config.yaml"), []byte("{}"), 0o600)
	if got := FindConfigFile(ws); got != filepath.Join(hidden, "config.yaml") {
		t.Errorf("got %q", got)
	}

	// Root-level file takes precedence.
	os.WriteFile(filepath.Join(ws, "mini-agent.yaml"), []byte("{}"), 0o600)
	if got := FindConfigFile(ws); got != filepath.Join(ws, "mini-agent.yaml") {
		t.Errorf("got %q", got)
	}
}

func TestHeartbeatConfigDurations(t *testing.T) {
	if d := (HeartbeatConfig{Interval: "bogus"}).IntervalDuration(); d != 30*time.Minute {
		t.Errorf("bad interval = %v", d)
	}
	if d := (HeartbeatConfig{Interval: "-5m"}).IntervalDuration(); d != 30*time.Minute {
		t.Errorf("negative interval = %v", d)
	}
	if d := (HeartbeatConfig{CoalesceMs: 500}).CoalesceDuration(); d != 500*time.Millisecond {
		t.Errorf("coalesce = %v", d)
	}
	if d := (HeartbeatConfig{}).CoalesceDuration(); d != 0 {
		t.Errorf("zero coalesce = %v, want package default deferral", d)
	}
}

func TestToolsConfigAccessors(t *testing.T) {
	c := ToolsConfig{Allow: []string{"read"}, Deny: []string{"exec"}, TimeoutSeconds: 5}
	p := c.Policy()
	if !p.Allows("read") || p.Allows("exec") {
		t.Error("policy conversion wrong")
	}
	if c.Timeout() != 5*time.Second {
		t.Errorf("timeout = %v", c.Timeout())
	}
	if (ToolsConfig{}).Timeout() != DefaultToolTimeout {
		t.Error("zero timeout should fall back to default")
	}
}
