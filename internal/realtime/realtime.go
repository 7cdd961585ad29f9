//go:generate mockgen -source=realtime.go -destination=../mocks/mock_realtime.go -package=mocks

package realtime

import (
	"context"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// SnapshotHandler receives full topic snapshots.
type SnapshotHandler func(snap models.LiveSnapshot)

// Subscriber is the realtime boundary: an opaque publish/subscribe source keyed by topic.
//
// Subscribe replays the topic's current snapshot, if there is one, and then delivers
// every later snapshot. A topic that has never been published produces no callbacks
// and no error. A failure to subscribe is returned as *models.SubscriptionError and is
// not retried.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler SnapshotHandler) (Subscription, error)
}

// Subscription is the handle of one active subscription.
type Subscription interface {
	ID() string
	Topic() string
	// Unsubscribe stops delivery. It is idempotent, and once it returns the handler
	// will not be called again. It must not be called from inside the handler.
	Unsubscribe()
}

// Publisher pushes snapshots into a realtime backend
type Publisher interface {
	Publish(ctx context.Context, snap models.LiveSnapshot) error
}

// FixtureTopic returns the topic carrying live data for a fixture.
func FixtureTopic(prefix, fixtureID string) string {
	return prefix + fixtureID
}

// StandingsTopic returns the topic carrying the table of a league.
func StandingsTopic(prefix, league string) string {
	return prefix + league
}
