// Package agent – session.go implements the append-only JSONL session log.
// One file per session key under <dir>; each line is a message wrapped with
// a stable id. Appends are serialized per session, loads tolerate corrupt
// lines so a bad write never takes the whole history down.
package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StoredMessage is one session log entry: a message plus its log identity.
type StoredMessage struct {
	ID string `json:"id"`
	Message
}

// SessionStore persists session transcripts as JSONL files.
type SessionStore struct {
	dir    string
	logger *slog.Logger

	mapMu  sync.Mutex
	fileMu map[string]*sync.Mutex
}

// NewSessionStore creates the store and its directory.
func NewSessionStore(dir string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions dir %q: %w", dir, err)
	}
	return &SessionStore{
		dir:    dir,
		logger: logger.With("component", "sessions"),
		fileMu: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the store's directory.
func (s *SessionStore) Dir() string { return s.dir }

func (s *SessionStore) fileMuFor(sessionKey string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if m, ok := s.fileMu[sessionKey]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.fileMu[sessionKey] = m
	return m
}

func (s *SessionStore) path(sessionKey string) string {
	return filepath.Join(s.dir, sessionKey+".jsonl")
}

// Append writes one message to the session's log and returns it with its
// assigned id.
func (s *SessionStore) Append(sessionKey string, msg Message) (StoredMessage, error) {
	mu := s.fileMuFor(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	if msg.Timestamp == 0 {
		msg.Timestamp = NowMillis()
	}
	stored := StoredMessage{ID: uuid.NewString(), Message: msg}

	f, err := os.OpenFile(s.path(sessionKey), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("open session file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("failed to close session file", "session", sessionKey, "err", closeErr)
		}
	}()

	data, err := json.Marshal(stored)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("marshal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return StoredMessage{}, fmt.Errorf("write entry: %w", err)
	}
	return stored, nil
}

// Load reads the session's full transcript. Missing files yield an empty
// history; malformed lines are skipped with a warning.
func (s *SessionStore) Load(sessionKey string) ([]StoredMessage, error) {
	mu := s.fileMuFor(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(s.path(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var out []StoredMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry StoredMessage
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logger.Warn("skip invalid jsonl line", "session", sessionKey, "err", err)
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return out, nil
}

// LoadMessages reads the transcript as plain messages.
func (s *SessionStore) LoadMessages(sessionKey string) ([]Message, error) {
	stored, err := s.Load(sessionKey)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(stored))
	for i, e := range stored {
		msgs[i] = e.Message
	}
	return msgs, nil
}

// Clear removes the session's log file. Clearing a session that was never
// written is not an error.
func (s *SessionStore) Clear(sessionKey string) error {
	mu := s.fileMuFor(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(s.path(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// List returns all session keys with a log file, sorted.
func (s *SessionStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(keys)
	return keys, nil
}
