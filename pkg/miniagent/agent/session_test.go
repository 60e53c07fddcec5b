package agent

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := NewSessionStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	return s
}

func TestSessionAppendLoadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	key := "agent:main:cli"

	first, err := s.Append(key, NewUserText("hello"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == "" {
		t.Error("stored message has no id")
	}
	if _, err := s.Append(key, NewAssistantMessage(
		TextBlock("checking"),
		ToolUseBlock("c1", "read", map[string]any{"path": "x"}),
	)); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := s.LoadMessages(key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("loaded %d messages", len(msgs))
	}
	if msgs[0].Text() != "hello" || msgs[0].Role != RoleUser {
		t.Errorf("first = %+v", msgs[0])
	}
	uses := msgs[1].ToolUses()
	if len(uses) != 1 || uses[0].ID != "c1" || uses[0].Name != "read" {
		t.Errorf("tool use lost in roundtrip: %+v", uses)
	}
	if !reflect.DeepEqual(uses[0].Input, map[string]any{"path": "x"}) {
		t.Errorf("input = %v", uses[0].Input)
	}
}

func TestSessionLoadMissingIsEmpty(t *testing.T) {
	s := newTestStore(t)
	msgs, err := s.LoadMessages("agent:main:never")
	if err != nil || msgs != nil {
		t.Fatalf("msgs=%v err=%v", msgs, err)
	}
}

func TestSessionLoadSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	key := "agent:main:cli"
	if _, err := s.Append(key, NewUserText("good one")); err != nil {
		t.Fatal(err)
	}

	// Corrupt the middle of the file by hand.
	path := filepath.Join(s.Dir(), key+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n\n")
	f.Close()
	if _, err := s.Append(key, NewUserText("good two")); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.LoadMessages(key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("loaded %d messages, want corrupt line skipped", len(msgs))
	}
}

func TestSessionClear(t *testing.T) {
	s := newTestStore(t)
	key := "agent:main:cli"
	if _, err := s.Append(key, NewUserText("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, _ := s.LoadMessages(key)
	if len(msgs) != 0 {
		t.Error("history survived clear")
	}
	if err := s.Clear("agent:main:never"); err != nil {
		t.Errorf("clearing unknown session: %v", err)
	}
}

func TestSessionList(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"agent:main:b", "agent:main:a"} {
		if _, err := s.Append(key, NewUserText("x")); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"agent:main:a", "agent:main:b"}) {
		t.Errorf("keys = %v, want sorted", keys)
	}
}
