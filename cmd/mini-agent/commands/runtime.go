package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/mini-agent/pkg/miniagent/agent"
	"github.com/jholhewres/mini-agent/pkg/miniagent/heartbeat"
	"github.com/jholhewres/mini-agent/pkg/miniagent/memory"
	"github.com/jholhewres/mini-agent/pkg/miniagent/provider/anthropic"
)

// runtime bundles the assembled collaborators a command works with.
type runtime struct {
	cfg          *agent.Config
	orchestrator *agent.Orchestrator
	skills       *agent.SkillSet
	heartbeat    *heartbeat.Runner
	cron         *heartbeat.CronSource
	poller       *heartbeat.FilePoller
	workspace    string
	stateDir     string
	logger       *slog.Logger

	closers []func()
}

// loadConfig resolves the config file (flag, then standard locations) and
// parses it, falling back to defaults when none exists.
func loadConfig(cmd *cobra.Command, workspace string) (*agent.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = agent.FindConfigFile(workspace)
	}
	if path == "" {
		return agent.DefaultConfig(), nil
	}
	cfg, err := agent.LoadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRuntime assembles the full runtime from config: provider, tools,
// skills, memory, sessions, audit, orchestrator, and (when enabled) the
// heartbeat with its wake sources.
func buildRuntime(cfg *agent.Config, workspace string, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:       cfg,
		workspace: workspace,
		stateDir:  filepath.Join(workspace, ".mini-agent"),
		logger:    logger,
	}

	apiKey := agent.ResolveAPIKey(cfg, logger)
	provider, err := anthropic.New(apiKey)
	if err != nil {
		return nil, err
	}

	tools := agent.NewToolRegistry(logger)
	tools.SetTimeout(cfg.Tools.Timeout())
	agent.RegisterBuiltinTools(tools, agent.SandboxConfig{
		WorkDir:    workspace,
		AllowWrite: cfg.Tools.AllowWrite,
		AllowExec:  cfg.Tools.AllowExec,
	})

	memStore := memory.NewStore(
		filepath.Join(rt.stateDir, "memory", "index.json"),
		cfg.Memory.HalfLifeHours,
		logger,
	)
	agent.RegisterMemoryTools(tools, memStore)
	agent.RegisterHeartbeatTools(tools, cfg.Heartbeat.TaskFile)

	var managedSkills string
	if home, err := os.UserHomeDir(); err == nil {
		managedSkills = filepath.Join(home, ".mini-agent", "skills")
	}
	rt.skills = agent.LoadSkills(managedSkills, filepath.Join(workspace, "skills"), logger)

	sessions, err := agent.NewSessionStore(filepath.Join(rt.stateDir, "sessions"), logger)
	if err != nil {
		return nil, err
	}

	var audit *agent.AuditLogger
	if cfg.Audit.Enabled {
		db, err := agent.OpenAuditDB(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		audit = agent.NewAuditLogger(db, logger)
		rt.closers = append(rt.closers, func() { _ = db.Close() })
	}

	home, _ := os.UserHomeDir()
	rt.orchestrator, err = agent.NewOrchestrator(
		agent.OrchestratorConfig{
			Model:             cfg.Agent.Model,
			MaxTokens:         cfg.Agent.MaxTokens,
			Temperature:       cfg.Agent.Temperature,
			MaxTurns:          cfg.Agent.MaxTurns,
			TokenBudget:       cfg.Agent.TokenBudget,
			MaxConcurrentRuns: cfg.Lanes.MainMaxConcurrent,
			SystemPrompt:      cfg.Agent.SystemPrompt,
			MemoryMaxResults:  cfg.Memory.MaxResults,
			Retry:             agent.DefaultRetryConfig(),
		},
		agent.OrchestratorDeps{
			Stream:   provider.StreamFn(),
			Tools:    tools,
			Policy:   cfg.Tools.Policy(),
			Sessions: sessions,
			Skills:   rt.skills,
			Memory:   memStore,
			Context:  agent.DefaultContextDirs(home, workspace),
			Audit:    audit,
			Logger:   logger,
		},
	)
	if err != nil {
		return nil, err
	}

	if cfg.Heartbeat.Enabled {
		if err := rt.wireHeartbeat(); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

// wireHeartbeat builds the runner, binds it to the orchestrator, and attaches
// the configured wake sources.
func (rt *runtime) wireHeartbeat() error {
	cfg := rt.cfg
	runner, err := heartbeat.NewRunner(heartbeat.RunnerConfig{
		Interval:    cfg.Heartbeat.IntervalDuration(),
		TaskFile:    cfg.Heartbeat.TaskFile,
		ActiveStart: cfg.Heartbeat.ActiveStart,
		ActiveEnd:   cfg.Heartbeat.ActiveEnd,
		Coalesce:    cfg.Heartbeat.CoalesceDuration(),
	}, rt.logger)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	runner.OnTasks(agent.NewHeartbeatHandler(rt.orchestrator, cfg.Agent.ID))
	rt.heartbeat = runner

	if len(cfg.Heartbeat.Cron) > 0 {
		rt.cron, err = heartbeat.NewCronSource(runner.Wake(), cfg.Heartbeat.Cron, rt.logger)
		if err != nil {
			return fmt.Errorf("heartbeat cron: %w", err)
		}
	}
	if cfg.Heartbeat.PollTaskFile {
		rt.poller = heartbeat.NewFilePoller(runner.Wake(), cfg.Heartbeat.TaskFile, 0, rt.logger)
	}
	return nil
}

// start begins the background subsystems.
func (rt *runtime) start() {
	if rt.heartbeat != nil {
		rt.heartbeat.Start()
	}
	if rt.cron != nil {
		rt.cron.Start()
	}
	if rt.poller != nil {
		rt.poller.Start()
	}
}

// close stops background subsystems and releases held resources.
func (rt *runtime) close() {
	if rt.poller != nil {
		rt.poller.Stop()
	}
	if rt.cron != nil {
		rt.cron.Stop()
	}
	if rt.heartbeat != nil {
		rt.heartbeat.Stop()
	}
	for _, fn := range rt.closers {
		fn()
	}
}
