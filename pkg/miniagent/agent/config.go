// Package agent – config.go defines the runtime configuration loaded from
// mini-agent.yaml. Every section carries usable defaults so an empty file
// (or none at all) yields a working local agent.
package agent

import (
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	// Agent configures the model and run limits.
	Agent AgentConfig `yaml:"agent"`

	// Lanes configures the shared execution lane.
	Lanes LanesConfig `yaml:"lanes"`

	// Heartbeat configures self-initiated runs.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Tools configures the tool policy and sandbox toggles.
	Tools ToolsConfig `yaml:"tools"`

	// Memory configures long-term fact recall.
	Memory MemoryConfig `yaml:"memory"`

	// Audit configures the tool-execution audit trail.
	Audit AuditConfig `yaml:"audit"`
}

// AgentConfig configures the model and per-run limits.
type AgentConfig struct {
	// ID is the default agent identity used in session keys.
	ID string `yaml:"id"`

	// Model is the LLM model identifier.
	Model string `yaml:"model"`

	// APIKey is the provider key. Prefer ${ANTHROPIC_API_KEY} or the OS
	// keyring over a literal value here.
	APIKey string `yaml:"api_key"`

	// SystemPrompt overrides the built-in core identity.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTurns bounds model round-trips per run.
	MaxTurns int `yaml:"max_turns"`

	// MaxTokens caps a single completion.
	MaxTokens int `yaml:"max_tokens"`

	// TokenBudget is the estimated-token window the pruner targets.
	TokenBudget int `yaml:"token_budget"`

	// Temperature, when positive, is passed to the provider.
	Temperature float64 `yaml:"temperature"`
}

// LanesConfig configures the shared lane.
type LanesConfig struct {
	// MainMaxConcurrent caps process-wide parallel runs.
	MainMaxConcurrent int `yaml:"main_max_concurrent"`
}

// HeartbeatConfig configures the heartbeat subsystem.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat on.
	Enabled bool `yaml:"enabled"`

	// Interval between runs as a Go duration string ("30m").
	Interval string `yaml:"interval"`

	// CoalesceMs is the wake coalescing window in milliseconds.
	CoalesceMs int `yaml:"coalesce_ms"`

	// ActiveStart and ActiveEnd bound the daily window as "HH:MM";
	// end at or before start wraps midnight. Both empty disables the gate.
	ActiveStart string `yaml:"active_start"`
	ActiveEnd   string `yaml:"active_end"`

	// TaskFile is the markdown checklist; default <workspace>/HEARTBEAT.md.
	TaskFile string `yaml:"task_file"`

	// Cron lists additional wake schedules (standard 5-field syntax).
	Cron []string `yaml:"cron"`

	// PollTaskFile enables the change poller on the task file.
	PollTaskFile bool `yaml:"poll_task_file"`
}

// IntervalDuration parses Interval, falling back to 30 minutes.
func (c HeartbeatConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// CoalesceDuration converts CoalesceMs; non-positive defers to the
// heartbeat package default.
func (c HeartbeatConfig) CoalesceDuration() time.Duration {
	if c.CoalesceMs <= 0 {
		return 0
	}
	return time.Duration(c.CoalesceMs) * time.Millisecond
}

// ToolsConfig configures tool exposure and the sandbox toggles.
type ToolsConfig struct {
	// Allow and Deny are glob patterns over tool names; deny wins.
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`

	// AllowWrite enables the write tool.
	AllowWrite bool `yaml:"allow_write"`

	// AllowExec enables the exec tool.
	AllowExec bool `yaml:"allow_exec"`

	// TimeoutSeconds bounds one tool execution.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Policy converts the allow/deny lists into a ToolPolicy.
func (c ToolsConfig) Policy() ToolPolicy {
	return ToolPolicy{Allow: c.Allow, Deny: c.Deny}
}

// Timeout converts TimeoutSeconds, falling back to the registry default.
func (c ToolsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultToolTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MemoryConfig configures recall.
type MemoryConfig struct {
	// MaxResults bounds prompt-injected recall entries.
	MaxResults int `yaml:"max_results"`

	// HalfLifeHours controls recency-boost decay.
	HalfLifeHours float64 `yaml:"half_life_hours"`
}

// AuditConfig configures the SQLite audit trail.
type AuditConfig struct {
	// Enabled turns auditing on.
	Enabled bool `yaml:"enabled"`

	// Path is the database file; default .mini-agent/mini-agent.db.
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:          DefaultAgentID,
			Model:       "claude-sonnet-4-5",
			MaxTurns:    DefaultMaxTurns,
			MaxTokens:   4096,
			TokenBudget: 120_000,
		},
		Lanes: LanesConfig{
			MainMaxConcurrent: DefaultMaxConcurrentRuns,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  false,
			Interval: "30m",
			TaskFile: "HEARTBEAT.md",
		},
		Tools: ToolsConfig{
			AllowWrite: true,
			AllowExec:  false,
		},
		Memory: MemoryConfig{},
		Audit: AuditConfig{
			Enabled: false,
			Path:    ".mini-agent/mini-agent.db",
		},
	}
}
