package domain

import "time"

// Metric identifies one of the two tracked leaderboards.
type Metric string

const (
	MetricMining    Metric = "mining"
	MetricPlacement Metric = "placement"
)

// ParseMetric converts a user-supplied metric name into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricMining:
		return MetricMining, nil
	case MetricPlacement:
		return MetricPlacement, nil
	default:
		return "", ErrUnknownMetric
	}
}

// Counts maps a player's display name to a non-negative total.
type Counts map[string]uint64

// Clone returns an independent copy of the counts.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for name, count := range c {
		out[name] = count
	}
	return out
}

// Snapshot is the fully reconciled state of both leaderboards. It is also
// the durable on-disk form: a single JSON object holding both mappings.
type Snapshot struct {
	Mining    Counts `json:"mining"`
	Placement Counts `json:"placement"`
}

// Counts returns the mapping for the given metric.
func (s Snapshot) Counts(metric Metric) Counts {
	if metric == MetricPlacement {
		return s.Placement
	}
	return s.Mining
}

// NameCount is one snapshot entry in first-encountered order.
type NameCount struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// LeaderboardEntry is a single ranked row of a rendered leaderboard.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// AbsentCount marks a player that was not present in the previous snapshot
// when computing deltas.
const AbsentCount int64 = -1

// PlayerDelta describes how one player's total changed across a scan.
// Previous is AbsentCount for players seen for the first time.
type PlayerDelta struct {
	Player    string    `json:"player"`
	Metric    Metric    `json:"metric"`
	Previous  int64     `json:"previous"`
	Current   uint64    `json:"current"`
	Delta     int64     `json:"delta"`
	ScannedAt time.Time `json:"scanned_at"`
}

// CacheEntry is one record of the server's identifier-to-name directory
// (usercache.json).
type CacheEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// AllowListEntry is one record of the server's allow-list (whitelist.json).
// Only the name is used; records without one are skipped.
type AllowListEntry struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
}
