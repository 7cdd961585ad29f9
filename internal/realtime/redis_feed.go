package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

var errCorruptSnapshot = errors.New("corrupt stored snapshot")

// RedisFeed is a realtime backend on Redis. The current snapshot of a topic lives
// under {prefix}snapshot:{topic} and every update is published on {prefix}topic:{topic}.
type RedisFeed struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisFeedConfig holds Redis realtime configuration
type RedisFeedConfig struct {
	Addr        string // e.g., "localhost:6379"
	Password    string
	DB          int
	KeyPrefix   string        // e.g., "live:"
	SnapshotTTL time.Duration // e.g., 6 * time.Hour, 0 keeps snapshots forever
}

// NewRedisFeed creates a new Redis realtime feed
func NewRedisFeed(config RedisFeedConfig, logger zerolog.Logger) *RedisFeed {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisFeed{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    config.SnapshotTTL,
		logger: logger.With().Str("component", "redis_feed").Logger(),
	}
}

// Publish stores snap as the topic's current state and notifies subscribers in one transaction
func (f *RedisFeed) Publish(ctx context.Context, snap models.LiveSnapshot) error {
	if snap.Topic == "" {
		return fmt.Errorf("snapshot has no topic")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, f.snapshotKey(snap.Topic), data, f.ttl)
		pipe.Publish(ctx, f.channel(snap.Topic), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	f.logger.Debug().
		Str("topic", snap.Topic).
		Str("fixture_id", snap.FixtureID).
		Msg("published snapshot")

	return nil
}

// Subscribe listens on the topic channel, replays the stored snapshot if one exists,
// then forwards published snapshots until Unsubscribe.
func (f *RedisFeed) Subscribe(ctx context.Context, topic string, handler SnapshotHandler) (Subscription, error) {
	if topic == "" {
		return nil, &models.SubscriptionError{Topic: topic, Err: fmt.Errorf("empty topic")}
	}

	ps := f.client.Subscribe(ctx, f.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &models.SubscriptionError{Topic: topic, Err: err}
	}

	sub := newSubscription(topic, handler, func() {
		if err := ps.Close(); err != nil {
			f.logger.Warn().Err(err).Str("topic", topic).Msg("failed to close pubsub")
		}
	})

	// Start buffering before the replay read so nothing published in between is lost.
	messages := ps.Channel()

	snap, err := f.latest(ctx, topic)
	switch {
	case errors.Is(err, errCorruptSnapshot):
		f.logger.Warn().Err(err).Str("topic", topic).Msg("skipping replay of stored snapshot")
	case err != nil:
		sub.Unsubscribe()
		return nil, &models.SubscriptionError{Topic: topic, Err: err}
	case snap != nil:
		sub.deliver(*snap)
	}

	go f.pump(sub, messages)

	f.logger.Debug().Str("topic", topic).Str("subscription_id", sub.id).Msg("subscribed")
	return sub, nil
}

func (f *RedisFeed) pump(sub *subscription, messages <-chan *redis.Message) {
	for msg := range messages {
		if sub.isClosed() {
			return
		}

		var snap models.LiveSnapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			f.logger.Warn().
				Err(err).
				Str("channel", msg.Channel).
				Msg("failed to unmarshal snapshot")
			continue
		}
		sub.deliver(snap)
	}
}

// latest returns the stored snapshot of topic, or nil when the topic has none
func (f *RedisFeed) latest(ctx context.Context, topic string) (*models.LiveSnapshot, error) {
	data, err := f.client.Get(ctx, f.snapshotKey(topic)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap models.LiveSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptSnapshot, err)
	}
	return &snap, nil
}

// Ping checks Redis connection
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

func (f *RedisFeed) snapshotKey(topic string) string {
	return f.prefix + "snapshot:" + topic
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + "topic:" + topic
}
