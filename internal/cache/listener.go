package cache

import (
	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// ChangeKind says what happened to a cache key.
type ChangeKind int

const (
	// ChangeState means only the loading or error flag moved.
	ChangeState ChangeKind = iota
	// ChangeItems means a page landed and the set of items may differ.
	ChangeItems
	// ChangeLive means a snapshot overlay replaced some items; the item set is unchanged.
	ChangeLive
	// ChangeReset means the key was cleared.
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeState:
		return "state"
	case ChangeItems:
		return "items"
	case ChangeLive:
		return "live"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after a key was modified. Listeners run on the
// goroutine that made the change, outside the store's locks, and should read the
// current state back from the store rather than trust the ordering of notifications.
type Change struct {
	Key     models.CacheKey
	Kind    ChangeKind
	Version uint64
}

// Listener observes store changes
type Listener interface {
	ListChanged(change Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(change Change)

func (f ListenerFunc) ListChanged(change Change) {
	f(change)
}
