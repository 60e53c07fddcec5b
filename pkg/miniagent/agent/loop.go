// Package agent – loop.go implements the agentic turn loop: call the model,
// execute requested tools sequentially, append results, call the model
// again, until the model answers with no tool calls or a termination
// condition fires. All dependencies arrive through loopEnv so the loop
// itself stays a function over explicit state.
package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultMaxTurns bounds model round-trips per run.
const DefaultMaxTurns = 24

// RunResult is the outcome of one completed run.
type RunResult struct {
	// Text is the assistant text of the final turn.
	Text string

	// Turns is the number of model calls made.
	Turns int

	// ToolCalls counts tool executions across all turns.
	ToolCalls int
}

// loopEnv carries everything one run needs. The orchestrator assembles it;
// tests assemble it directly with fakes.
type loopEnv struct {
	runID      string
	sessionKey string
	agentID    string

	stream    StreamFn
	summarize Summarizer
	retry     RetryConfig

	system      string
	model       string
	maxTokens   int
	temperature float64

	messages    []Message
	tokenBudget int
	maxTurns    int

	tools    *ToolRegistry
	policy   ToolPolicy
	events   *EventBus
	steering *SteeringQueues
	sessions *SessionStore

	logger *slog.Logger
}

// turnOutcome accumulates what one model call produced.
type turnOutcome struct {
	text  string
	calls []ToolCall
}

// runAgentLoop drives the turn loop to completion. The working list in
// env.messages must already contain the triggering user message.
func runAgentLoop(ctx context.Context, env *loopEnv) (*RunResult, error) {
	if env.maxTurns <= 0 {
		env.maxTurns = DefaultMaxTurns
	}

	var (
		totalToolCalls int
		lastText       string
		compacted      bool
	)

	descriptors := env.tools.Descriptors(env.policy)

	for turn := 1; turn <= env.maxTurns; turn++ {
		if ctx.Err() != nil {
			return nil, NewRunError(ErrorKindCancelled, ctx.Err())
		}

		// ── Prune to budget ──
		// Per-turn pruning drops without summarizing; whole-history
		// compaction happened before the loop and on overflow below.
		retained, dropped := PruneMessages(env.messages, env.tokenBudget)
		if len(dropped) > 0 {
			env.logger.Debug("pruned working list",
				"turn", turn,
				"dropped", len(dropped),
				"retained", len(retained),
			)
			env.messages = retained
		}

		// ── Call model ──
		outcome, err := env.streamTurn(ctx, descriptors)
		if err != nil {
			if IsCancellation(err) || ctx.Err() != nil {
				return nil, NewRunError(ErrorKindCancelled, err)
			}
			if IsContextOverflow(err) {
				if compacted {
					return nil, NewRunError(ErrorKindContextOverflow,
						fmt.Errorf("context overflow persisted after compaction: %w", err))
				}
				env.logger.Warn("context overflow, compacting history",
					"turn", turn,
					"messages", len(env.messages),
				)
				// The working list already fit the estimated budget, so the
				// estimate undershot. Compact to half the budget to get real
				// headroom back.
				out, summary, cerr := CompactMessages(ctx, env.messages, env.tokenBudget/2, env.summarize)
				if cerr != nil || summary == "" {
					if cerr == nil {
						cerr = fmt.Errorf("compaction produced no summary")
					}
					return nil, NewRunError(ErrorKindContextOverflow, cerr)
				}
				env.messages = out
				compacted = true
				// Re-enter without consuming a turn.
				turn--
				continue
			}
			return nil, NewRunError(KindOf(err), err)
		}
		lastText = outcome.text

		// ── Append assistant message ──
		blocks := make([]ContentBlock, 0, len(outcome.calls)+1)
		if outcome.text != "" {
			blocks = append(blocks, TextBlock(outcome.text))
		}
		for _, call := range outcome.calls {
			blocks = append(blocks, ToolUseBlock(call.ID, call.Name, call.Input))
		}
		if len(blocks) > 0 {
			env.appendMessage(NewAssistantMessage(blocks...))
		}

		// ── No tool calls → final response ──
		if len(outcome.calls) == 0 {
			env.logger.Info("run completed",
				"turns", turn,
				"tool_calls", totalToolCalls,
				"response_len", len(outcome.text),
			)
			return &RunResult{Text: outcome.text, Turns: turn, ToolCalls: totalToolCalls}, nil
		}

		// ── Execute tools sequentially ──
		// Steering is checked between calls: queued user text interrupts
		// the remaining calls of this turn, so a steered turn may answer
		// only a prefix of the requested calls.
		var (
			results []ContentBlock
			steered bool
		)
		for i, call := range outcome.calls {
			if i > 0 && env.steering != nil && env.steering.HasPending(env.sessionKey) {
				steered = true
				env.logger.Info("steering interrupt, skipping remaining tool calls",
					"turn", turn,
					"executed", i,
					"requested", len(outcome.calls),
				)
				break
			}
			if ctx.Err() != nil {
				if len(results) > 0 {
					env.appendMessage(NewUserMessage(results...))
				}
				return nil, NewRunError(ErrorKindCancelled, ctx.Err())
			}

			env.emit(StreamTool, StreamEventToolCallStart, map[string]any{
				"id":   call.ID,
				"tool": call.Name,
			})
			content := env.tools.Execute(ctx, call)
			env.emit(StreamTool, StreamEventToolCallEnd, map[string]any{
				"id":      call.ID,
				"tool":    call.Name,
				"content": content,
			})

			results = append(results, ToolResultBlock(call.ID, call.Name, content))
			totalToolCalls++
		}

		if len(results) > 0 {
			env.appendMessage(NewUserMessage(results...))
		}

		// ── Inject steering text ──
		if steered || (env.steering != nil && env.steering.HasPending(env.sessionKey)) {
			if joined := env.steering.DrainJoined(env.sessionKey); joined != "" {
				env.appendMessage(NewUserText(joined))
			}
		}
	}

	env.logger.Warn("run hit max turns", "max_turns", env.maxTurns, "tool_calls", totalToolCalls)
	return &RunResult{Text: lastText, Turns: env.maxTurns, ToolCalls: totalToolCalls}, nil
}

// streamTurn performs one model call under the retry schedule. Rate limits
// restart the whole turn; every other failure surfaces to the loop.
func (env *loopEnv) streamTurn(ctx context.Context, descriptors []ToolDescriptor) (*turnOutcome, error) {
	var outcome *turnOutcome

	op := func(ctx context.Context) error {
		fresh := &turnOutcome{}
		req := &StreamRequest{
			System:      env.system,
			Messages:    env.messages,
			Tools:       descriptors,
			Model:       env.model,
			MaxTokens:   env.maxTokens,
			Temperature: env.temperature,
		}
		err := env.stream(ctx, req, func(ev StreamEvent) {
			switch ev.Type {
			case StreamEventTextDelta:
				fresh.text += ev.Delta
				env.emit(StreamAssistant, StreamEventTextDelta, map[string]any{
					"delta": ev.Delta,
				})
			case StreamEventTextEnd:
				if ev.Content != "" {
					fresh.text = ev.Content
				}
				env.emit(StreamAssistant, StreamEventTextEnd, map[string]any{
					"content": fresh.text,
				})
			case StreamEventToolCallEnd:
				if ev.ToolCall != nil {
					fresh.calls = append(fresh.calls, *ev.ToolCall)
				}
			}
		})
		if err != nil {
			return err
		}
		outcome = fresh
		return nil
	}

	shouldRetry := func(err error, _ int) bool {
		return KindOf(err) == ErrorKindRateLimit
	}

	cfg := env.retry
	if cfg.Attempts == 0 {
		cfg = DefaultRetryConfig()
	}
	if cfg.OnAttempt == nil {
		cfg.OnAttempt = logRetryAttempt(env.logger)
	}
	if err := Retry(ctx, cfg, shouldRetry, op); err != nil {
		return nil, err
	}
	return outcome, nil
}

// appendMessage extends the working list and mirrors the message into the
// session log. A log write failure is reported but does not fail the run;
// the in-memory conversation stays authoritative until the next append.
func (env *loopEnv) appendMessage(msg Message) {
	env.messages = append(env.messages, msg)
	if env.sessions == nil {
		return
	}
	if _, err := env.sessions.Append(env.sessionKey, msg); err != nil {
		env.logger.Warn("session log append failed",
			"session", env.sessionKey,
			"error", err,
		)
	}
}

// emit publishes an event for this run.
func (env *loopEnv) emit(stream, eventType string, data map[string]any) {
	if env.events == nil {
		return
	}
	env.events.Emit(Event{
		RunID:      env.runID,
		Stream:     stream,
		Type:       eventType,
		SessionKey: env.sessionKey,
		AgentID:    env.agentID,
		Data:       data,
	})
}
