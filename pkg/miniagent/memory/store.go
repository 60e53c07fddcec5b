// Package memory implements the agent's long-term fact store. Entries live
// in a single JSON index and retrieval is keyword scoring with a recency
// boost, which is cheap, deterministic, and good enough for prompt-sized
// recall sets.
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxResults bounds a search when the caller passes no limit.
	DefaultMaxResults = 5

	// DefaultHalfLifeHours controls how fast the recency boost decays.
	DefaultHalfLifeHours = 168 // one week

	// recencyWeight balances the recency boost against keyword overlap.
	recencyWeight = 0.5
)

// Entry is one stored fact.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Source    string    `json:"source"` // "user", "agent", "system"
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredEntry pairs an entry with its retrieval score.
type ScoredEntry struct {
	Entry
	Score float64
}

// Store persists entries in a JSON index file. All access is serialized
// through the store's mutex; callers never touch the file directly.
type Store struct {
	path          string
	halfLifeHours float64
	logger        *slog.Logger

	mu      sync.Mutex
	entries []Entry
	loaded  bool
}

// NewStore creates a store over the given index file, typically
// <workspace>/.mini-agent/memory/index.json. The file is loaded lazily on
// first access.
func NewStore(path string, halfLifeHours float64, logger *slog.Logger) *Store {
	if halfLifeHours <= 0 {
		halfLifeHours = DefaultHalfLifeHours
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:          path,
		halfLifeHours: halfLifeHours,
		logger:        logger.With("component", "memory"),
	}
}

// Append stores a new fact and persists the index.
func (s *Store) Append(content, source string, tags []string) (Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Entry{}, fmt.Errorf("empty memory content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Content:   content,
		Source:    source,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	if err := s.saveLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return Entry{}, err
	}
	return entry, nil
}

// Search returns up to limit entries scored against the query, best first.
// An empty query ranks purely by recency. Entries with zero keyword overlap
// are excluded for non-empty queries.
func (s *Store) Search(query string, limit int) ([]ScoredEntry, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	terms := tokenize(query)
	now := time.Now().UTC()

	var scored []ScoredEntry
	for _, e := range s.entries {
		kw := keywordScore(terms, e)
		if len(terms) > 0 && kw == 0 {
			continue
		}
		score := kw + recencyWeight*s.recencyScore(now, e.CreatedAt)
		scored = append(scored, ScoredEntry{Entry: e, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// RecallFacts returns the top-scored entry contents for prompt injection.
func (s *Store) RecallFacts(query string, limit int) []string {
	scored, err := s.Search(query, limit)
	if err != nil {
		s.logger.Warn("memory search failed", "error", err)
		return nil
	}
	facts := make([]string, 0, len(scored))
	for _, e := range scored {
		facts = append(facts, e.Content)
	}
	return facts
}

// All returns every entry in insertion order.
func (s *Store) All() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return 0
	}
	return len(s.entries)
}

// ---------- Scoring ----------

// keywordScore is the fraction of query terms found in the entry's content
// or tags.
func keywordScore(terms []string, e Entry) float64 {
	if len(terms) == 0 {
		return 0
	}
	content := strings.ToLower(e.Content)
	matched := 0
	for _, term := range terms {
		if strings.Contains(content, term) {
			matched++
			continue
		}
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(terms))
}

// recencyScore decays exponentially with age at the configured half life.
func (s *Store) recencyScore(now, createdAt time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp(-math.Ln2 * ageHours / s.halfLifeHours)
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping terms
// shorter than two characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// ---------- Persistence ----------

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read memory index: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt index: start empty, leave the file for inspection.
		s.logger.Warn("memory index corrupt, starting empty", "path", s.path, "error", err)
		s.entries = nil
		s.loaded = true
		return nil
	}
	s.entries = entries
	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create memory dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory index: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write memory index: %w", err)
	}
	return nil
}
