// Package command implements the chat command surface: parsing command
// lines under the configured prefix and rendering leaderboard output.
// The dispatcher is transport-agnostic; HTTP and the chat bridge both
// feed it lines and deliver the resulting reply and broadcast text.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/domain"
	"github.com/blockstats-server/internal/snapshot"
)

// debugSampleFiles caps how many record filenames the debug dump lists.
const debugSampleFiles = 5

// ScanRunner triggers one full scan.
type ScanRunner interface {
	RunScan(ctx context.Context) (int, error)
}

// Result holds the lines produced by one command invocation. Replies go
// to the invoking player, Broadcasts to everyone on the server.
type Result struct {
	Replies    []string `json:"replies,omitempty"`
	Broadcasts []string `json:"broadcasts,omitempty"`
}

// Dispatcher routes command lines to their handlers.
type Dispatcher struct {
	cfg    *config.Config
	store  *snapshot.Store
	allow  *allowlist.Store
	runner ScanRunner
	logger *slog.Logger
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher(
	cfg *config.Config,
	store *snapshot.Store,
	allow *allowlist.Store,
	runner ScanRunner,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		store:  store,
		allow:  allow,
		runner: runner,
		logger: logger,
	}
}

// Prefix returns the configured command prefix.
func (d *Dispatcher) Prefix() string {
	return d.cfg.CommandPrefix
}

// Handles reports whether a chat line is addressed to this service.
func (d *Dispatcher) Handles(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), d.cfg.CommandPrefix)
}

// Dispatch executes one command line. Lines not under the prefix and
// unknown subcommands get a help pointer; the bare prefix shows help.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) Result {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, d.cfg.CommandPrefix) {
		return Result{Replies: []string{fmt.Sprintf("Commands start with %s; try %s help", d.cfg.CommandPrefix, d.cfg.CommandPrefix)}}
	}

	args := strings.Fields(strings.TrimPrefix(trimmed, d.cfg.CommandPrefix))
	sub := ""
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "", "help":
		return Result{Replies: d.helpLines()}
	case "mine":
		return Result{Broadcasts: d.leaderboardLines(domain.MetricMining)}
	case "place":
		return Result{Broadcasts: d.leaderboardLines(domain.MetricPlacement)}
	case "update":
		return d.update(ctx)
	case "debug":
		return Result{Replies: d.debugLines()}
	default:
		d.logger.Debug("unknown command", "command", sub)
		return Result{Replies: []string{
			fmt.Sprintf("Unknown command %q; try %s help", sub, d.cfg.CommandPrefix),
		}}
	}
}

// Top returns the ranked, allow-list-filtered leaderboard for a metric.
// Snapshot entries are matched to allow-list names case-insensitively
// and displayed under the allow-list's canonical casing; when both an
// exact and a case-variant key exist, the exact one wins. Ties keep the
// snapshot's first-encountered order.
func (d *Dispatcher) Top(metric domain.Metric, limit int) []domain.LeaderboardEntry {
	type candidate struct {
		count uint64
		exact bool
	}

	chosen := make(map[string]candidate)
	var order []string

	for _, entry := range d.store.Entries(metric) {
		canonical, ok := d.allow.Canonical(entry.Name)
		if !ok {
			continue
		}
		exact := entry.Name == canonical

		current, seen := chosen[canonical]
		switch {
		case !seen:
			chosen[canonical] = candidate{count: entry.Count, exact: exact}
			order = append(order, canonical)
		case exact && !current.exact:
			chosen[canonical] = candidate{count: entry.Count, exact: true}
		}
	}

	ranked := make([]domain.LeaderboardEntry, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, domain.LeaderboardEntry{Name: name, Count: chosen[name].count})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// leaderboardLines renders a metric's leaderboard for chat.
func (d *Dispatcher) leaderboardLines(metric domain.Metric) []string {
	entries := d.Top(metric, d.cfg.TopCount)
	if len(entries) == 0 {
		return []string{fmt.Sprintf("No %s data yet", metric)}
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("===== %s leaderboard - top %d =====", metricLabel(metric), len(entries)))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s %s - %d blocks", rankMarker(entry.Rank), entry.Name, entry.Count))
	}
	return lines
}

func metricLabel(metric domain.Metric) string {
	if metric == domain.MetricPlacement {
		return "Placement"
	}
	return "Mining"
}

func rankMarker(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

// update forces a scan and reports the outcome to everyone.
func (d *Dispatcher) update(ctx context.Context) Result {
	updated, err := d.runner.RunScan(ctx)
	if errors.Is(err, domain.ErrScanInProgress) {
		return Result{Replies: []string{"An update is already running, try again shortly"}}
	}
	if err != nil {
		d.logger.Error("manual update failed", "error", err)
		return Result{Replies: []string{fmt.Sprintf("Update failed: %v", err)}}
	}
	return Result{Broadcasts: []string{
		fmt.Sprintf("Stats updated, %d player(s) changed", updated),
	}}
}

// debugLines dumps configuration and record-source diagnostics.
func (d *Dispatcher) debugLines() []string {
	if !d.cfg.Debug {
		return []string{"Debug mode is disabled; set debug to true in the config file"}
	}

	lines := []string{"===== Debug info ====="}

	// The dump goes into chat; never leak credentials there.
	redacted := *d.cfg
	if redacted.Redis.Password != "" {
		redacted.Redis.Password = "<redacted>"
	}
	if cfgJSON, err := json.Marshal(redacted); err == nil {
		lines = append(lines, "Config: "+string(cfgJSON))
	}
	lines = append(lines,
		fmt.Sprintf("Mining entries: %d", d.store.Len(domain.MetricMining)),
		fmt.Sprintf("Placement entries: %d", d.store.Len(domain.MetricPlacement)),
		fmt.Sprintf("Allow-listed names: %d", d.allow.Len()),
	)

	if abs, err := filepath.Abs(d.cfg.ServerDir); err == nil {
		lines = append(lines, "Server directory: "+abs)
	}

	for _, dir := range d.cfg.StatsDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			lines = append(lines, "Stats directory missing: "+dir)
			continue
		}
		samples := make([]string, 0, debugSampleFiles)
		for _, entry := range entries {
			if len(samples) == debugSampleFiles {
				break
			}
			samples = append(samples, entry.Name())
		}
		lines = append(lines, fmt.Sprintf("Stats directory found: %s (sample: %s)", dir, strings.Join(samples, ", ")))
	}

	return lines
}

// helpLines lists the available commands.
func (d *Dispatcher) helpLines() []string {
	prefix := d.cfg.CommandPrefix
	return []string{
		"===== Block stats - help =====",
		prefix + " mine - show the mining leaderboard",
		prefix + " place - show the placement leaderboard",
		prefix + " update - refresh the stats now",
		prefix + " debug - show diagnostic info",
		prefix + " help - show this help",
	}
}
