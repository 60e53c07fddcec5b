// Package agent – prune.go keeps the working message list inside the token
// budget. Estimation is chars/4, which is close enough for budget decisions
// and costs nothing. Pruning drops whole messages from the oldest end and
// never leaves a tool_result without the tool_use it answers.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EstimateTokens approximates the token count of a string: 4 characters per
// token, rounded up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// EstimateMessageTokens approximates the token count of one message across
// all of its blocks.
func EstimateMessageTokens(m Message) int {
	total := 0
	for _, b := range m.Content {
		total += EstimateTokens(blockText(b))
	}
	return total
}

// EstimateHistoryTokens approximates the token count of a message list.
func EstimateHistoryTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}

// PruneMessages drops the oldest messages until the estimated token count of
// the remainder fits budget. After the cut, any leading user message whose
// tool_result blocks answer a dropped tool_use is dropped as well, so the
// retained list never starts with orphaned results. Returns the retained
// tail and the dropped prefix in original order. With an impossibly small
// budget the retained list may be empty.
func PruneMessages(msgs []Message, budget int) (retained, dropped []Message) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if budget <= 0 {
		return nil, msgs
	}

	// Find the longest suffix that fits by walking totals from the back.
	total := 0
	cut := 0
	suffix := make([]int, len(msgs)+1)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += EstimateMessageTokens(msgs[i])
		suffix[i] = total
	}
	for cut < len(msgs) && suffix[cut] > budget {
		cut++
	}

	retained = msgs[cut:]
	dropped = msgs[:cut:cut]

	// Pairing repair at the boundary. A user message holding tool_results
	// whose partner tool_use fell in the dropped prefix cannot stay; its
	// results all answer the same dropped assistant message, so the whole
	// message goes.
	for len(retained) > 0 {
		if !hasOrphanResults(retained[0], retained) {
			break
		}
		dropped = append(dropped, retained[0])
		retained = retained[1:]
	}
	return retained, dropped
}

// hasOrphanResults reports whether msg carries a tool_result whose tool_use
// is absent from the retained window.
func hasOrphanResults(msg Message, window []Message) bool {
	if msg.Role != RoleUser {
		return false
	}
	results := msg.ToolResults()
	if len(results) == 0 {
		return false
	}
	ids := make(map[string]bool)
	for _, m := range window {
		for _, b := range m.ToolUses() {
			ids[b.ID] = true
		}
	}
	for _, r := range results {
		if !ids[r.ToolUseID] {
			return true
		}
	}
	return false
}

// Summarizer condenses a dropped message prefix into replacement text. The
// orchestrator backs it with a plain model call; tests use a canned one.
type Summarizer func(ctx context.Context, dropped []Message) (string, error)

// compactionSummaryPrefix heads the synthetic message so the model and the
// log reader both see that the content replaces earlier conversation.
const compactionSummaryPrefix = "[Conversation summary]\n"

// CompactMessages prunes msgs to the budget and, when anything was dropped,
// asks the summarizer to condense the dropped prefix. The summary is
// installed as a synthetic user message at the head of the retained list so
// the model keeps long-range context in compressed form.
//
// A summarizer failure is not fatal here: the pruned list is still returned
// with an empty summary, and the error tells the caller whether it may
// proceed. The reactive overflow path treats a missing summary as fatal; the
// proactive pre-loop path proceeds without one.
func CompactMessages(ctx context.Context, msgs []Message, budget int, summarize Summarizer) (out []Message, summary string, err error) {
	retained, dropped := PruneMessages(msgs, budget)
	if len(dropped) == 0 {
		return retained, "", nil
	}
	if summarize == nil {
		return retained, "", fmt.Errorf("compaction dropped %d messages with no summarizer", len(dropped))
	}
	summary, err = summarize(ctx, dropped)
	if err != nil {
		return retained, "", fmt.Errorf("compaction summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return retained, "", nil
	}
	head := NewUserText(compactionSummaryPrefix + summary)
	out = append([]Message{head}, retained...)
	return out, summary, nil
}

// summarizerSystemPrompt steers the compaction model call. The prompt is
// fixed: compaction must behave the same regardless of the agent's own
// system prompt.
const summarizerSystemPrompt = "You are a conversation summarizer. Condense the conversation " +
	"into a compact summary that preserves key facts, decisions, user intent, tool outcomes, " +
	"and unfinished tasks. Reply with the summary text only."

// RenderMessagesForSummary flattens messages into the plain-text transcript
// handed to the summarizer.
func RenderMessagesForSummary(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		for _, b := range m.Content {
			switch b.Type {
			case BlockTypeText:
				fmt.Fprintf(&sb, "%s: %s\n", m.Role, b.Text)
			case BlockTypeToolUse:
				args := ""
				if len(b.Input) > 0 {
					if raw, err := json.Marshal(b.Input); err == nil {
						args = string(raw)
					}
				}
				fmt.Fprintf(&sb, "%s called %s(%s)\n", m.Role, b.Name, args)
			case BlockTypeToolResult:
				fmt.Fprintf(&sb, "%s returned: %s\n", b.Name, b.Content)
			}
		}
	}
	return sb.String()
}
