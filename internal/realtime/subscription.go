package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// subscription serializes delivery and Unsubscribe on one mutex, so no delivery can
// start after Unsubscribe has returned.
type subscription struct {
	id      string
	topic   string
	handler SnapshotHandler
	onClose func()

	mu     sync.Mutex
	closed bool
	last   models.LiveSnapshot
	seen   bool
	once   sync.Once
}

func newSubscription(topic string, handler SnapshotHandler, onClose func()) *subscription {
	return &subscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		onClose: onClose,
	}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Topic() string {
	return s.topic
}

// deliver hands snap to the handler unless the subscription is closed or snap is
// older than what was already delivered.
func (s *subscription) deliver(snap models.LiveSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.seen && !snap.UpdatedAt.IsZero() && snap.UpdatedAt.Before(s.last.UpdatedAt) {
		return false
	}
	s.last = snap
	s.seen = true
	s.handler(snap)
	return true
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
