package websocket

import (
	"context"
	"log/slog"

	"github.com/blockstats-server/internal/domain"
)

// TopProvider renders the ranked, filtered leaderboard for a metric.
type TopProvider interface {
	Top(metric domain.Metric, limit int) []domain.LeaderboardEntry
}

// Notifier pushes leaderboard updates to all connected bridges after a
// scan that changed data. It plugs into the scanner as a sink.
type Notifier struct {
	hub    *Hub
	boards TopProvider
	limit  int
	logger *slog.Logger
}

// NewNotifier creates a new scan notifier
func NewNotifier(hub *Hub, boards TopProvider, limit int, logger *slog.Logger) *Notifier {
	return &Notifier{
		hub:    hub,
		boards: boards,
		limit:  limit,
		logger: logger,
	}
}

// ScanCompleted broadcasts fresh leaderboards when anything changed.
func (n *Notifier) ScanCompleted(ctx context.Context, snap domain.Snapshot, deltas []domain.PlayerDelta) {
	if len(deltas) == 0 {
		return
	}
	for _, metric := range []domain.Metric{domain.MetricMining, domain.MetricPlacement} {
		n.hub.BroadcastLeaderboard(metric, n.boards.Top(metric, n.limit))
	}
	n.logger.Debug("leaderboard update broadcast", "changed", len(deltas))
}
