// Package redismirror maintains an optional copy of each leaderboard in
// Redis sorted sets so external consumers can issue rank queries without
// touching this service. The file snapshot stays the source of truth;
// the mirror is rebuilt wholesale after every scan and is best-effort.
package redismirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/domain"
)

// Mirror mirrors snapshots into Redis sorted sets
type Mirror struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Mirror and verifies the connection
func New(cfg *config.RedisConfig, logger *slog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Mirror{client: client, logger: logger}, nil
}

// NewWithClient creates a Mirror over an existing client
func NewWithClient(client *redis.Client, logger *slog.Logger) *Mirror {
	return &Mirror{client: client, logger: logger}
}

// Close closes the Redis connection
func (m *Mirror) Close() error {
	return m.client.Close()
}

// key returns the Redis key for a metric's sorted set
func (m *Mirror) key(metric domain.Metric) string {
	return fmt.Sprintf("blockstats:%s", metric)
}

// ScanCompleted rebuilds both sorted sets from the new snapshot. Failure
// is logged and never fails the scan.
func (m *Mirror) ScanCompleted(ctx context.Context, snap domain.Snapshot, deltas []domain.PlayerDelta) {
	for _, metric := range []domain.Metric{domain.MetricMining, domain.MetricPlacement} {
		if err := m.rebuild(ctx, metric, snap.Counts(metric)); err != nil {
			m.logger.Error("failed to mirror leaderboard", "metric", metric, "error", err)
		}
	}
}

// rebuild replaces a metric's sorted set with the snapshot contents in
// one transaction, so readers never see a half-built set.
func (m *Mirror) rebuild(ctx context.Context, metric domain.Metric, counts domain.Counts) error {
	key := m.key(metric)

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, key)
	for name, count := range counts {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(count),
			Member: name,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding sorted set: %w", err)
	}

	m.logger.Debug("mirrored leaderboard", "metric", metric, "players", len(counts))
	return nil
}

// Top returns the top N players of a mirrored leaderboard
func (m *Mirror) Top(ctx context.Context, metric domain.Metric, n int) ([]domain.LeaderboardEntry, error) {
	results, err := m.client.ZRevRangeWithScores(ctx, m.key(metric), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Rank:  i + 1,
			Name:  result.Member.(string),
			Count: uint64(result.Score),
		}
	}
	return entries, nil
}

// Count returns the number of mirrored players for a metric
func (m *Mirror) Count(ctx context.Context, metric domain.Metric) (int64, error) {
	count, err := m.client.ZCard(ctx, m.key(metric)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}
