// Package agent – orchestrator.go is the composition root for runs. It
// resolves session keys, serializes runs through the lane scheduler, wires
// the loop's dependencies, and owns the run registry that steering and
// abort act on.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/mini-agent/pkg/miniagent/lanes"
	"github.com/jholhewres/mini-agent/pkg/miniagent/memory"
)

const (
	// DefaultGlobalLane is the shared lane every run passes through.
	DefaultGlobalLane = "main"

	// DefaultMaxConcurrentRuns caps the global lane.
	DefaultMaxConcurrentRuns = 2

	// Token budget floors. Below the hard floor a run is refused; below
	// the soft floor it proceeds with a warning.
	hardFloorTokens = 2048
	softFloorTokens = 8192

	// subagentSummaryMax truncates the summary a subagent reports back
	// into its parent session.
	subagentSummaryMax = 600

	subagentSummaryPrefix = "[subagent summary]\n"
)

// OrchestratorConfig carries the per-deployment run parameters.
type OrchestratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	MaxTurns    int
	TokenBudget int

	// GlobalLane and MaxConcurrentRuns shape the shared lane.
	GlobalLane        string
	MaxConcurrentRuns int

	// SystemPrompt overrides the core identity; Fragments append to it.
	SystemPrompt string
	Fragments    []string

	// MemoryMaxResults bounds prompt-injected recall.
	MemoryMaxResults int

	Retry RetryConfig
}

// Orchestrator routes runs. All fields are set at construction and
// immutable afterwards except the run registry.
type Orchestrator struct {
	cfg      OrchestratorConfig
	stream   StreamFn
	tools    *ToolRegistry
	policy   ToolPolicy
	lanes    *lanes.Scheduler
	sessions *SessionStore
	skills   *SkillSet
	memStore *memory.Store
	ctxDirs  ContextDirs
	events   *EventBus
	steering *SteeringQueues
	audit    *AuditLogger
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

// OrchestratorDeps groups the collaborators; nil optional fields disable
// their feature (memory recall, audit, skills).
type OrchestratorDeps struct {
	Stream   StreamFn
	Tools    *ToolRegistry
	Policy   ToolPolicy
	Lanes    *lanes.Scheduler
	Sessions *SessionStore
	Skills   *SkillSet
	Memory   *memory.Store
	Context  ContextDirs
	Events   *EventBus
	Audit    *AuditLogger
	Logger   *slog.Logger
}

// NewOrchestrator validates and assembles an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Stream == nil {
		return nil, fmt.Errorf("orchestrator requires a stream function")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("orchestrator requires a session store")
	}
	if deps.Tools == nil {
		deps.Tools = NewToolRegistry(deps.Logger)
	}
	if deps.Lanes == nil {
		deps.Lanes = lanes.NewScheduler(deps.Logger)
	}
	if deps.Events == nil {
		deps.Events = NewEventBus()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.GlobalLane == "" {
		cfg.GlobalLane = DefaultGlobalLane
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MemoryMaxResults <= 0 {
		cfg.MemoryMaxResults = memory.DefaultMaxResults
	}
	if cfg.TokenBudget < hardFloorTokens {
		return nil, fmt.Errorf("%w: %d < %d", ErrTokenBudgetTooSmall, cfg.TokenBudget, hardFloorTokens)
	}
	if cfg.TokenBudget < softFloorTokens {
		deps.Logger.Warn("token budget below recommended floor",
			"budget", cfg.TokenBudget,
			"recommended", softFloorTokens,
		)
	}

	return &Orchestrator{
		cfg:      cfg,
		stream:   deps.Stream,
		tools:    deps.Tools,
		policy:   deps.Policy,
		lanes:    deps.Lanes,
		sessions: deps.Sessions,
		skills:   deps.Skills,
		memStore: deps.Memory,
		ctxDirs:  deps.Context,
		events:   deps.Events,
		steering: NewSteeringQueues(),
		audit:    deps.Audit,
		logger:   deps.Logger.With("component", "orchestrator"),
		runs:     make(map[string]context.CancelFunc),
	}, nil
}

// Events exposes the bus for subscribers.
func (o *Orchestrator) Events() *EventBus { return o.events }

// Sessions exposes the session store.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// RunRequest describes one requested run.
type RunRequest struct {
	// AgentID may be empty; it then falls back to the configured default
	// during key resolution.
	AgentID string

	// SessionID is a bare tail or a full session key.
	SessionID string

	// Input is the user text. Slash commands are resolved against the
	// skill set before the run starts.
	Input string
}

// Run executes one conversational run to completion. Runs for the same
// session key serialize; distinct sessions interleave up to the global lane
// cap. The returned result carries the final assistant text.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	sessionKey := ResolveSessionKey(req.AgentID, req.SessionID)
	agentID := AgentIDFromKey(sessionKey)

	var (
		result *RunResult
		runErr error
	)
	err := o.lanes.Enqueue(ctx, "session:"+sessionKey, 1, func() error {
		return o.lanes.Enqueue(ctx, o.cfg.GlobalLane, o.cfg.MaxConcurrentRuns, func() error {
			result, runErr = o.execute(ctx, sessionKey, agentID, req.Input)
			return runErr
		})
	})
	if err != nil {
		return nil, err
	}
	return result, runErr
}

// execute is the admitted portion of a run: both lane slots are held.
func (o *Orchestrator) execute(ctx context.Context, sessionKey, agentID, input string) (*RunResult, error) {
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.runs[runID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.runs, runID)
		o.mu.Unlock()
	}()

	start := time.Now()
	o.emit(runID, sessionKey, agentID, StreamLifecycle, "run", map[string]any{
		"phase": PhaseStart,
	})
	o.logger.Info("run started", "run_id", runID, "session", sessionKey)

	result, err := o.runOnce(runCtx, runID, sessionKey, agentID, input)
	if err != nil {
		kind := KindOf(err)
		if kind != ErrorKindCancelled {
			o.emit(runID, sessionKey, agentID, StreamError, string(kind), map[string]any{
				"kind":  string(kind),
				"error": err.Error(),
			})
		}
		o.emit(runID, sessionKey, agentID, StreamLifecycle, "run", map[string]any{
			"phase": PhaseError,
			"kind":  string(kind),
			"error": err.Error(),
		})
		o.logger.Warn("run failed",
			"run_id", runID,
			"session", sessionKey,
			"kind", string(kind),
			"error", err,
		)
		return nil, err
	}

	o.emit(runID, sessionKey, agentID, StreamLifecycle, "run", map[string]any{
		"phase":      PhaseEnd,
		"turns":      result.Turns,
		"tool_calls": result.ToolCalls,
	})
	o.logger.Info("run finished",
		"run_id", runID,
		"session", sessionKey,
		"turns", result.Turns,
		"tool_calls", result.ToolCalls,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// runOnce prepares the working list and drives the loop.
func (o *Orchestrator) runOnce(ctx context.Context, runID, sessionKey, agentID, input string) (*RunResult, error) {
	// Slash commands rewrite into skill invocations before anything is
	// logged, so the session history holds the rewritten prompt.
	if o.skills != nil {
		if rewritten, matched := o.skills.ResolveInput(input); matched {
			input = rewritten
		}
	}

	history, err := o.sessions.LoadMessages(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	userMsg := NewUserText(input)
	if _, err := o.sessions.Append(sessionKey, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	working := append(history, userMsg)

	summarize := o.modelSummarizer()

	// Whole-history compaction before the loop when the transcript has
	// outgrown the budget. The summary is best-effort here; the pruned
	// tail alone is still a valid working list.
	if EstimateHistoryTokens(working) > o.cfg.TokenBudget {
		compacted, summary, cerr := CompactMessages(ctx, working, o.cfg.TokenBudget, summarize)
		switch {
		case cerr != nil:
			o.logger.Warn("pre-run compaction proceeding without summary", "error", cerr)
			compactedTail, _ := PruneMessages(working, o.cfg.TokenBudget)
			working = compactedTail
		default:
			working = compacted
			if summary != "" {
				o.logger.Info("pre-run compaction installed summary",
					"session", sessionKey,
					"summary_len", len(summary),
				)
			}
		}
	}

	env := &loopEnv{
		runID:       runID,
		sessionKey:  sessionKey,
		agentID:     agentID,
		stream:      o.stream,
		summarize:   summarize,
		retry:       o.cfg.Retry,
		system:      o.buildSystemPrompt(input),
		model:       o.cfg.Model,
		maxTokens:   o.cfg.MaxTokens,
		temperature: o.cfg.Temperature,
		messages:    working,
		tokenBudget: o.cfg.TokenBudget,
		maxTurns:    o.cfg.MaxTurns,
		tools:       o.auditedRegistry(runID, sessionKey),
		policy:      o.policy,
		events:      o.events,
		steering:    o.steering,
		sessions:    o.sessions,
		logger:      o.logger.With("run_id", runID),
	}
	return runAgentLoop(ctx, env)
}

// buildSystemPrompt assembles the system prompt for one run.
func (o *Orchestrator) buildSystemPrompt(input string) string {
	parts := SystemPromptParts{
		Core:           o.cfg.SystemPrompt,
		Fragments:      o.cfg.Fragments,
		ContextSection: LoadContextFiles(o.ctxDirs),
	}
	if o.skills != nil {
		parts.SkillsFragment = o.skills.PromptFragment()
	}
	if o.memStore != nil {
		parts.MemorySection = BuildMemorySection(o.memStore.RecallFacts(input, o.cfg.MemoryMaxResults))
	}
	return BuildSystemPrompt(parts)
}

// auditedRegistry returns the tool registry, wrapped so every execution
// lands in the audit trail when auditing is enabled.
func (o *Orchestrator) auditedRegistry(runID, sessionKey string) *ToolRegistry {
	if o.audit == nil {
		return o.tools
	}
	return o.tools.withObserver(func(call ToolCall, content string) {
		args := ""
		if len(call.Input) > 0 {
			args = fmt.Sprintf("%v", call.Input)
		}
		allowed := !strings.HasPrefix(content, toolErrorPrefix) && !strings.HasPrefix(content, unknownToolPrefix)
		o.audit.Log(call.Name, sessionKey, runID, allowed, args, content)
	})
}

// Steer queues follow-up text for a session. A live run drains the queue
// between tool calls; an idle session sees it on the next run.
func (o *Orchestrator) Steer(sessionKey, text string) {
	o.steering.Push(sessionKey, text)
}

// Abort cancels the run with the given id. Returns false when no such run
// is live.
func (o *Orchestrator) Abort(runID string) bool {
	o.mu.Lock()
	cancel, ok := o.runs[runID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// AbortAll cancels every live run and returns how many were signalled.
func (o *Orchestrator) AbortAll() int {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.runs))
	for _, c := range o.runs {
		cancels = append(cancels, c)
	}
	o.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return len(cancels)
}

// LiveRunCount reports how many runs hold a run context right now.
func (o *Orchestrator) LiveRunCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

// SpawnSubagent starts a fire-and-forget run in a fresh subagent session
// and, when it settles, reports a truncated summary into the parent
// session. Subagents cannot spawn further subagents. Returns the subagent's
// session key.
func (o *Orchestrator) SpawnSubagent(parentKey, task string) (string, error) {
	if IsSubagentKey(parentKey) {
		return "", fmt.Errorf("subagents cannot spawn subagents")
	}
	agentID := AgentIDFromKey(parentKey)
	childKey := NewSubagentKey(agentID)

	o.emit("", childKey, agentID, StreamSubagent, "spawned", map[string]any{
		"parent": parentKey,
		"task":   task,
	})

	go func() {
		// The subagent outlives its trigger; only Abort can stop it.
		res, err := o.Run(context.Background(), RunRequest{
			AgentID:   agentID,
			SessionID: childKey,
			Input:     task,
		})

		summary := ""
		switch {
		case err != nil:
			summary = fmt.Sprintf("subagent failed: %v", err)
		case res != nil:
			summary = res.Text
		}
		summary = truncateRunes(summary, subagentSummaryMax)

		writeErr := o.lanes.Enqueue(context.Background(), "session:"+parentKey, 1, func() error {
			_, appendErr := o.sessions.Append(parentKey, NewUserText(subagentSummaryPrefix+summary))
			return appendErr
		})
		if writeErr != nil {
			o.logger.Warn("subagent summary write failed",
				"parent", parentKey,
				"child", childKey,
				"error", writeErr,
			)
		}
		o.emit("", childKey, agentID, StreamSubagent, "summary", map[string]any{
			"parent":  parentKey,
			"summary": summary,
		})
	}()

	return childKey, nil
}

func (o *Orchestrator) emit(runID, sessionKey, agentID, stream, eventType string, data map[string]any) {
	o.events.Emit(Event{
		RunID:      runID,
		Stream:     stream,
		Type:       eventType,
		SessionKey: sessionKey,
		AgentID:    agentID,
		Data:       data,
	})
}

// modelSummarizer builds the compaction summarizer over the configured
// stream function: a plain call with the fixed summarizer prompt and no
// tools.
func (o *Orchestrator) modelSummarizer() Summarizer {
	return func(ctx context.Context, dropped []Message) (string, error) {
		transcript := RenderMessagesForSummary(dropped)
		req := &StreamRequest{
			System:    summarizerSystemPrompt,
			Messages:  []Message{NewUserText(transcript)},
			Model:     o.cfg.Model,
			MaxTokens: o.cfg.MaxTokens,
		}
		var text strings.Builder
		err := o.stream(ctx, req, func(ev StreamEvent) {
			if ev.Type == StreamEventTextDelta {
				text.WriteString(ev.Delta)
			}
		})
		if err != nil {
			return "", err
		}
		return text.String(), nil
	}
}

// truncateRunes clamps s to max runes.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
