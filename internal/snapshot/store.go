// Package snapshot owns the current name-to-count mappings for both
// metrics and their persistence to a single durable JSON file.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blockstats-server/internal/domain"
)

// Store holds the reconciled snapshot. A scan replaces the whole state
// through Replace; readers always observe either the full pre-scan or
// the full post-scan snapshot, never an intermediate one.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	mining    domain.Counts
	placement domain.Counts
	order     []string // first-encountered name order, for display tie-breaking
}

// New creates an empty Store persisting to the given file.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:      path,
		logger:    logger,
		mining:    domain.Counts{},
		placement: domain.Counts{},
	}
}

// Load restores the snapshot from durable storage. A missing file
// initializes the store empty and immediately persists, so the file
// exists after first successful startup. Any other failure is a hard
// error: silently starting from scratch would look like data loss.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no snapshot file found, starting empty", "path", s.path)
		return s.Persist()
	}
	if err != nil {
		return fmt.Errorf("reading snapshot file: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing snapshot file: %w", err)
	}
	if snap.Mining == nil {
		snap.Mining = domain.Counts{}
	}
	if snap.Placement == nil {
		snap.Placement = domain.Counts{}
	}

	s.mu.Lock()
	s.mining = snap.Mining
	s.placement = snap.Placement
	s.order = sortedKeys(snap.Mining, snap.Placement)
	s.mu.Unlock()

	s.logger.Info("snapshot loaded",
		"path", s.path,
		"mining_entries", len(snap.Mining),
		"placement_entries", len(snap.Placement),
	)
	return nil
}

// Persist writes the current snapshot to durable storage with stable
// formatting so it round-trips exactly.
func (s *Store) Persist() error {
	snap := s.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// Replace swaps in both mappings wholesale. order lists the resolved
// names in the sequence the scan first encountered them.
func (s *Store) Replace(mined, placed domain.Counts, order []string) {
	if mined == nil {
		mined = domain.Counts{}
	}
	if placed == nil {
		placed = domain.Counts{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mining = mined
	s.placement = placed
	s.order = order
}

// Snapshot returns an independent copy of both mappings.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{
		Mining:    s.mining.Clone(),
		Placement: s.placement.Clone(),
	}
}

// Get returns one player's count for a metric.
func (s *Store) Get(metric domain.Metric, name string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, ok := s.counts(metric)[name]
	return count, ok
}

// Entries returns a metric's entries in first-encountered order.
func (s *Store) Entries(metric domain.Metric) []domain.NameCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := s.counts(metric)
	out := make([]domain.NameCount, 0, len(counts))
	for _, name := range s.order {
		if count, ok := counts[name]; ok {
			out = append(out, domain.NameCount{Name: name, Count: count})
		}
	}
	return out
}

// Len returns the number of players tracked for a metric.
func (s *Store) Len(metric domain.Metric) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counts(metric))
}

// counts must be called with the lock held.
func (s *Store) counts(metric domain.Metric) domain.Counts {
	if metric == domain.MetricPlacement {
		return s.placement
	}
	return s.mining
}

// sortedKeys merges the key sets of both mappings in name order. Used
// after a load, where the file does not carry encounter order.
func sortedKeys(mined, placed domain.Counts) []string {
	seen := make(map[string]struct{}, len(mined))
	keys := make([]string, 0, len(mined))
	for name := range mined {
		seen[name] = struct{}{}
		keys = append(keys, name)
	}
	for name := range placed {
		if _, ok := seen[name]; !ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}
