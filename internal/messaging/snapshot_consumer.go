package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cypherlabdev/bet-sync-service/internal/metrics"
	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/internal/realtime"
)

// SnapshotConsumer consumes live fixture snapshots from Kafka and publishes them to
// the realtime backend
type SnapshotConsumer struct {
	reader          *kafka.Reader
	publisher       realtime.Publisher
	topicPrefix     string
	standingsPrefix string
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// KafkaConsumerConfig holds Kafka consumer configuration
type KafkaConsumerConfig struct {
	Brokers     []string // e.g., ["localhost:9092"]
	Topic       string   // e.g., "live_snapshots"
	GroupID     string   // e.g., "bet-sync"
	TopicPrefix string   // realtime topic prefix for fixture snapshots that carry none, e.g., "fixture:"

	StandingsPrefix string // realtime topic prefix for standings snapshots that carry none, e.g., "standings:"
}

// NewSnapshotConsumer creates a new Kafka snapshot consumer
func NewSnapshotConsumer(
	config KafkaConsumerConfig,
	publisher realtime.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *SnapshotConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &SnapshotConsumer{
		reader:          reader,
		publisher:       publisher,
		topicPrefix:     config.TopicPrefix,
		standingsPrefix: config.StandingsPrefix,
		metrics:         m,
		logger:          logger.With().Str("component", "snapshot_consumer").Logger(),
	}
}

// Start begins consuming messages from Kafka. It returns when ctx is cancelled.
func (c *SnapshotConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group_id", c.reader.Config().GroupID).
		Msg("started consuming from Kafka")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("stopping Kafka consumer")
			return nil

		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return nil
				}
				c.logger.Error().Err(err).Msg("failed to fetch message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().
					Err(err).
					Int64("offset", msg.Offset).
					Str("key", string(msg.Key)).
					Msg("failed to process message")
				// Don't commit if processing failed
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("failed to commit message")
			}
		}
	}
}

// processMessage publishes every snapshot of one batch. A failed publish fails the
// whole message so it is redelivered.
func (c *SnapshotConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var batch models.SnapshotBatchMessage
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	c.logger.Debug().
		Int("snapshot_count", len(batch.Snapshots)).
		Str("batch_id", batch.BatchID).
		Msg("processing snapshot batch")

	published := 0
	for _, snap := range batch.Snapshots {
		switch {
		case snap.Topic != "":
		case snap.FixtureID != "":
			snap.Topic = realtime.FixtureTopic(c.topicPrefix, snap.FixtureID)
		case snap.League != "":
			snap.Topic = realtime.StandingsTopic(c.standingsPrefix, snap.League)
		default:
			c.logger.Warn().
				Str("batch_id", batch.BatchID).
				Msg("skipping snapshot without topic, fixture or league")
			continue
		}

		if err := c.publisher.Publish(ctx, snap); err != nil {
			c.metrics.AddSnapshotsConsumed(published)
			return fmt.Errorf("failed to publish snapshot for %s: %w", snap.Topic, err)
		}
		published++
	}
	c.metrics.AddSnapshotsConsumed(published)

	c.logger.Info().
		Int("input_count", len(batch.Snapshots)).
		Int("published_count", published).
		Str("batch_id", batch.BatchID).
		Msg("published snapshot batch")

	return nil
}

// Close closes the Kafka reader
func (c *SnapshotConsumer) Close() error {
	return c.reader.Close()
}
