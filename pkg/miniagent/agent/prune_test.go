package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// textMsg builds a user message of roughly n estimated tokens.
func textMsg(role Role, n int) Message {
	m := Message{Role: role, Content: []ContentBlock{TextBlock(strings.Repeat("abcd", n))}}
	return m
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 40), 10},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPruneMessagesKeepsFittingSuffix(t *testing.T) {
	msgs := []Message{
		textMsg(RoleUser, 100),
		textMsg(RoleAssistant, 100),
		textMsg(RoleUser, 100),
	}
	retained, dropped := PruneMessages(msgs, 250)
	if len(retained) != 2 || len(dropped) != 1 {
		t.Fatalf("retained %d dropped %d, want 2/1", len(retained), len(dropped))
	}
	if EstimateHistoryTokens(retained) > 250 {
		t.Errorf("retained still over budget: %d", EstimateHistoryTokens(retained))
	}
}

func TestPruneMessagesNoopWhenUnderBudget(t *testing.T) {
	msgs := []Message{textMsg(RoleUser, 10), textMsg(RoleAssistant, 10)}
	retained, dropped := PruneMessages(msgs, 1000)
	if len(retained) != 2 || len(dropped) != 0 {
		t.Fatalf("retained %d dropped %d", len(retained), len(dropped))
	}
}

func TestPruneMessagesZeroBudgetDropsAll(t *testing.T) {
	msgs := []Message{textMsg(RoleUser, 10)}
	retained, dropped := PruneMessages(msgs, 0)
	if retained != nil || len(dropped) != 1 {
		t.Fatalf("retained %v dropped %d", retained, len(dropped))
	}
}

func TestPruneMessagesRepairsOrphanedToolResults(t *testing.T) {
	// assistant(tool_use) / user(tool_result) pair at the head; pruning that
	// cuts between them must also drop the result message.
	pairUse := NewAssistantMessage(
		TextBlock(strings.Repeat("pad ", 100)),
		ToolUseBlock("call-1", "read", map[string]any{"path": "a.txt"}),
	)
	pairResult := NewUserMessage(ToolResultBlock("call-1", "read", "contents"))
	tail := textMsg(RoleAssistant, 20)

	msgs := []Message{pairUse, pairResult, tail}
	budget := EstimateMessageTokens(pairResult) + EstimateMessageTokens(tail) + 2

	retained, dropped := PruneMessages(msgs, budget)
	for _, m := range retained {
		for _, r := range m.ToolResults() {
			found := false
			for _, rm := range retained {
				for _, u := range rm.ToolUses() {
					if u.ID == r.ToolUseID {
						found = true
					}
				}
			}
			if !found {
				t.Errorf("orphaned tool_result %q survived pruning", r.ToolUseID)
			}
		}
	}
	if len(retained)+len(dropped) != len(msgs) {
		t.Errorf("message count changed: %d + %d != %d", len(retained), len(dropped), len(msgs))
	}
}

func TestPruneMessagesKeepsIntactPairs(t *testing.T) {
	use := NewAssistantMessage(ToolUseBlock("call-2", "grep", nil))
	result := NewUserMessage(ToolResultBlock("call-2", "grep", "match"))
	msgs := []Message{textMsg(RoleUser, 500), use, result}

	retained, _ := PruneMessages(msgs, EstimateMessageTokens(use)+EstimateMessageTokens(result)+1)
	if len(retained) != 2 {
		t.Fatalf("retained %d, want the intact pair", len(retained))
	}
	if len(retained[1].ToolResults()) != 1 {
		t.Error("pair lost its result")
	}
}

func TestCompactMessagesInstallsSummary(t *testing.T) {
	msgs := []Message{
		textMsg(RoleUser, 200),
		textMsg(RoleAssistant, 200),
		textMsg(RoleUser, 50),
	}
	summarize := func(_ context.Context, dropped []Message) (string, error) {
		if len(dropped) == 0 {
			t.Error("summarizer called with nothing dropped")
		}
		return "they discussed things", nil
	}

	out, summary, err := CompactMessages(context.Background(), msgs, 300, summarize)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if summary != "they discussed things" {
		t.Errorf("summary = %q", summary)
	}
	head := out[0]
	if head.Role != RoleUser || !strings.HasPrefix(head.Text(), "[Conversation summary]\n") {
		t.Errorf("head = %+v, want synthetic summary message", head)
	}
}

func TestCompactMessagesNothingDropped(t *testing.T) {
	msgs := []Message{textMsg(RoleUser, 5)}
	out, summary, err := CompactMessages(context.Background(), msgs, 1000, nil)
	if err != nil || summary != "" || len(out) != 1 {
		t.Fatalf("out=%d summary=%q err=%v", len(out), summary, err)
	}
}

func TestCompactMessagesSummarizerFailure(t *testing.T) {
	msgs := []Message{textMsg(RoleUser, 200), textMsg(RoleUser, 50)}
	summarize := func(context.Context, []Message) (string, error) {
		return "", errors.New("model down")
	}
	out, summary, err := CompactMessages(context.Background(), msgs, 100, summarize)
	if err == nil {
		t.Fatal("expected error")
	}
	if summary != "" {
		t.Errorf("summary = %q, want empty", summary)
	}
	// The pruned tail is still usable.
	if EstimateHistoryTokens(out) > 100 {
		t.Errorf("returned list over budget")
	}
}

func TestRenderMessagesForSummary(t *testing.T) {
	msgs := []Message{
		NewUserText("hello"),
		NewAssistantMessage(
			TextBlock("let me check"),
			ToolUseBlock("c1", "read", map[string]any{"path": "x"}),
		),
		NewUserMessage(ToolResultBlock("c1", "read", "data")),
	}
	out := RenderMessagesForSummary(msgs)
	for _, want := range []string{"user: hello", "assistant: let me check", "assistant called read", "read returned: data"} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}
