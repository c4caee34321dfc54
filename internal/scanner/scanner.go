// Package scanner rebuilds both leaderboard snapshots from the game
// server's per-player statistics files.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/domain"
	"github.com/blockstats-server/internal/names"
	"github.com/blockstats-server/internal/snapshot"
	"github.com/blockstats-server/internal/stats"
)

// Sink receives the results of a completed scan. Sinks are best-effort:
// they log their own failures and never fail the scan.
type Sink interface {
	ScanCompleted(ctx context.Context, snap domain.Snapshot, deltas []domain.PlayerDelta)
}

// Scanner performs full scans: it picks the first usable stats
// directory, extracts and resolves every record, and atomically replaces
// the snapshot store's state.
type Scanner struct {
	statsDirs []string
	store     *snapshot.Store
	allow     *allowlist.Store
	resolver  *names.Resolver
	logger    *slog.Logger
	sinks     []Sink

	// mu serializes scans; a scan requested while one runs is rejected.
	mu sync.Mutex
}

// New creates a Scanner over the given record directories, tried in order.
func New(
	statsDirs []string,
	store *snapshot.Store,
	allow *allowlist.Store,
	resolver *names.Resolver,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		statsDirs: statsDirs,
		store:     store,
		allow:     allow,
		resolver:  resolver,
		logger:    logger,
	}
}

// AddSink registers a sink notified after every scan that replaced the
// snapshot. Not safe to call once scans have started.
func (s *Scanner) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// RunScan performs one full scan and returns how many players' counts
// changed. Only one scan runs at a time; a concurrent request gets
// domain.ErrScanInProgress. Per-record failures are isolated and a
// missing record directory is tolerated; only a persistence failure
// surfaces as a hard error.
func (s *Scanner) RunScan(ctx context.Context) (int, error) {
	if !s.mu.TryLock() {
		return 0, domain.ErrScanInProgress
	}
	defer s.mu.Unlock()

	started := time.Now()
	s.allow.Reload()
	s.resolver.Reload()

	prev := s.store.Snapshot()

	mined, placed, order, scannedDir := s.collect()
	if scannedDir == "" {
		s.logger.Warn("no stats directory with parseable records found", "candidates", s.statsDirs)
		return 0, nil
	}

	updated, deltas := diff(prev, mined, placed, order)

	s.store.Replace(mined, placed, order)
	if err := s.store.Persist(); err != nil {
		return updated, fmt.Errorf("persisting snapshot: %w", err)
	}

	s.crossCheckAllowList(mined, placed)

	s.logger.Info("scan completed",
		"dir", scannedDir,
		"players", len(order),
		"updated", updated,
		"duration", time.Since(started),
	)

	snap := s.store.Snapshot()
	for _, sink := range s.sinks {
		sink.ScanCompleted(ctx, snap, deltas)
	}

	return updated, nil
}

// collect builds the working mappings from the first directory that
// exists and yields at least one parseable record. Directories are never
// merged; the priority order mirrors the known server layouts.
func (s *Scanner) collect() (mined, placed domain.Counts, order []string, scannedDir string) {
	mined = domain.Counts{}
	placed = domain.Counts{}

	for _, dir := range s.statsDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("stats directory not readable", "dir", dir, "error", err)
			}
			continue
		}

		processed := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			identifier := strings.TrimSuffix(entry.Name(), ".json")

			raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				s.logger.Error("skipping unreadable stat record", "identifier", identifier, "error", err)
				continue
			}

			mineCount, placeCount, err := stats.Extract(raw)
			if err != nil {
				s.logger.Error("skipping malformed stat record", "identifier", identifier, "error", err)
				continue
			}

			name := s.resolver.Resolve(identifier)
			if name == "" {
				name = names.FallbackName(identifier)
			}

			// Last writer wins when two identifiers resolve to one name.
			if _, seen := mined[name]; !seen {
				order = append(order, name)
			}
			mined[name] = mineCount
			placed[name] = placeCount
			processed++
		}

		if processed > 0 {
			return mined, placed, order, dir
		}
	}
	return mined, placed, nil, ""
}

// diff counts players whose totals changed against the previous snapshot
// and builds the per-player delta events. New players count as changed.
func diff(prev domain.Snapshot, mined, placed domain.Counts, order []string) (int, []domain.PlayerDelta) {
	now := time.Now().UTC()
	updated := 0
	var deltas []domain.PlayerDelta

	for _, name := range order {
		changed := false
		for _, metric := range []domain.Metric{domain.MetricMining, domain.MetricPlacement} {
			current := mined[name]
			if metric == domain.MetricPlacement {
				current = placed[name]
			}

			previous := domain.AbsentCount
			if count, ok := prev.Counts(metric)[name]; ok {
				previous = int64(count)
			}
			if previous == int64(current) {
				continue
			}

			changed = true
			delta := int64(current)
			if previous != domain.AbsentCount {
				delta = int64(current) - previous
			}
			deltas = append(deltas, domain.PlayerDelta{
				Player:    name,
				Metric:    metric,
				Previous:  previous,
				Current:   current,
				Delta:     delta,
				ScannedAt: now,
			})
		}
		if changed {
			updated++
		}
	}

	return updated, deltas
}

// crossCheckAllowList logs how many allow-listed names showed up in the
// new mappings. An operability signal only, never a gate.
func (s *Scanner) crossCheckAllowList(mined, placed domain.Counts) {
	allowed := s.allow.All()
	if len(allowed) == 0 {
		return
	}

	found := 0
	for _, name := range allowed {
		fold := strings.ToLower(name)
		hit := false
		for tracked := range mined {
			if strings.ToLower(tracked) == fold {
				hit = true
				break
			}
		}
		if !hit {
			for tracked := range placed {
				if strings.ToLower(tracked) == fold {
					hit = true
					break
				}
			}
		}
		if hit {
			found++
		}
	}

	s.logger.Info("allow-list coverage", "found", found, "allow_listed", len(allowed))
}
