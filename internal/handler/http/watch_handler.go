package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/internal/view"
)

const watchWriteTimeout = 10 * time.Second

// handleWatch handles GET /api/v1/watch/:tab[/:subtab]. It streams the list as a
// ListResponse JSON message on connect and after every change to it. Changes that
// arrive while a write is pending are coalesced into the next message.
func (h *ListsHandler) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	key, ok := parseKey(splitPath(r.URL.Path, watchPrefix))
	if !ok {
		h.errorResponse(w, http.StatusBadRequest, "invalid path: expected /api/v1/watch/:tab[/:subtab]")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.logger.Debug().Err(err).Str("key", key.String()).Msg("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan struct{}, 1)
	stop := h.service.Watch(key, func(models.CachedList) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer stop()

	closed := make(chan struct{})
	go h.readUntilClosed(conn, key, closed)

	v := h.service.View(key, filtersFromQuery(r))
	if err := h.writeList(conn, v); err != nil {
		return
	}

	go func() {
		// Failures land on the list itself and reach the client through the watch.
		if err := v.EnsureFresh(ctx, h.service.TTLFor(key)); err != nil {
			h.logger.Debug().Err(err).Str("key", key.String()).Msg("watch refresh failed")
		}
	}()

	h.logger.Debug().Str("key", key.String()).Msg("watch started")
	for {
		select {
		case <-closed:
			h.logger.Debug().Str("key", key.String()).Msg("watch closed")
			return
		case <-updates:
			if err := h.writeList(conn, v); err != nil {
				h.logger.Debug().Err(err).Str("key", key.String()).Msg("failed to write watch update")
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are processed, and closes
// done when the connection goes away.
func (h *ListsHandler) readUntilClosed(conn *websocket.Conn, key models.CacheKey, done chan<- struct{}) {
	defer close(done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("key", key.String()).Msg("watch read error")
			}
			return
		}
	}
}

func (h *ListsHandler) writeList(conn *websocket.Conn, v *view.View) error {
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ToListResponse(v.Snapshot(), v.Standings()))
}
