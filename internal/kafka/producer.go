// Package kafka publishes per-player scan deltas so downstream systems
// can react to leaderboard movement. Publishing is best-effort and never
// fails a scan.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/domain"
)

// Producer publishes scan delta events to a Kafka topic
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer creates a new delta producer
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    cfg.Topic,
		logger:   logger,
	}, nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// ScanCompleted publishes one event per changed player count. Keyed by
// player name so one player's events stay ordered within a partition.
func (p *Producer) ScanCompleted(ctx context.Context, snap domain.Snapshot, deltas []domain.PlayerDelta) {
	published := 0
	for _, delta := range deltas {
		if err := p.publish(delta); err != nil {
			p.logger.Error("failed to publish scan delta",
				"player", delta.Player,
				"metric", delta.Metric,
				"error", err,
			)
			continue
		}
		published++
	}

	if published > 0 {
		p.logger.Debug("published scan deltas", "topic", p.topic, "count", published)
	}
}

func (p *Producer) publish(delta domain.PlayerDelta) error {
	value, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("encoding delta event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(delta.Player),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("sending delta event: %w", err)
	}
	return nil
}
