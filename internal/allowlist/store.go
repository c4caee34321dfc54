// Package allowlist holds the set of player names eligible for
// leaderboard display. Membership is a display filter only; it never
// affects which players are scanned or counted.
package allowlist

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blockstats-server/internal/domain"
)

// Store is the reloadable in-memory allow-list. It keeps the canonical
// casing from the source file and matches case-insensitively.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	byFold map[string]string // lowercased name -> canonical name
	names  []string          // canonical names in file order
}

// New creates a Store reading from the given allow-list file. The store
// starts empty; call Reload to populate it.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		byFold: make(map[string]string),
	}
}

// Reload replaces the in-memory set wholesale from the source file.
// A missing or unreadable source leaves the store empty with a warning;
// downstream treats an empty store as "nothing passes the filter".
func (s *Store) Reload() {
	byFold := make(map[string]string)
	var names []string

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("allow-list not readable, treating as empty", "path", s.path, "error", err)
		s.replace(byFold, names)
		return
	}

	var entries []domain.AllowListEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("allow-list not parseable, treating as empty", "path", s.path, "error", err)
		s.replace(byFold, names)
		return
	}

	for _, entry := range entries {
		if entry.Name == "" {
			continue
		}
		fold := strings.ToLower(entry.Name)
		if _, ok := byFold[fold]; ok {
			continue
		}
		byFold[fold] = entry.Name
		names = append(names, entry.Name)
	}

	s.replace(byFold, names)
	s.logger.Debug("allow-list reloaded", "path", s.path, "entries", len(names))
}

func (s *Store) replace(byFold map[string]string, names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byFold = byFold
	s.names = names
}

// Contains reports whether the name matches an entry case-insensitively.
func (s *Store) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byFold[strings.ToLower(name)]
	return ok
}

// ContainsExact reports whether the name matches an entry including case.
func (s *Store) ContainsExact(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	canonical, ok := s.byFold[strings.ToLower(name)]
	return ok && canonical == name
}

// Canonical returns the allow-list's casing for a name matched
// case-insensitively.
func (s *Store) Canonical(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	canonical, ok := s.byFold[strings.ToLower(name)]
	return canonical, ok
}

// All returns the canonical names in source-file order.
func (s *Store) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}
