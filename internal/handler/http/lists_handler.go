package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
	"github.com/cypherlabdev/bet-sync-service/internal/service"
	"github.com/cypherlabdev/bet-sync-service/internal/view"
)

const (
	listsPrefix = "/api/v1/lists/"
	watchPrefix = "/api/v1/watch/"

	actionRefresh = "refresh"
	actionMore    = "more"
)

// ListsHandler handles HTTP requests for cached bet lists
type ListsHandler struct {
	service  *service.SyncService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewListsHandler creates a new lists HTTP handler
func NewListsHandler(service *service.SyncService, logger zerolog.Logger) *ListsHandler {
	return &ListsHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger.With().Str("component", "lists_handler").Logger(),
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *ListsHandler) RegisterRoutes(mux *http.ServeMux) {
	// GET  /api/v1/lists/:tab[/:subtab]         - Cached list, refetched when stale
	// POST /api/v1/lists/:tab[/:subtab]/refresh - Drop the list and load the first page
	// POST /api/v1/lists/:tab[/:subtab]/more    - Load the next page
	mux.HandleFunc(listsPrefix, h.handleLists)

	// POST /api/v1/session/reset - Drop every cached list
	mux.HandleFunc("/api/v1/session/reset", h.handleSessionReset)

	// GET /api/v1/subscriptions - Live fixture subscriptions
	mux.HandleFunc("/api/v1/subscriptions", h.handleSubscriptions)

	// GET /api/v1/watch/:tab[/:subtab] - WebSocket stream of list updates
	mux.HandleFunc(watchPrefix, h.handleWatch)
}

// handleLists dispatches /api/v1/lists/ on method and trailing action
func (h *ListsHandler) handleLists(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, listsPrefix)

	switch r.Method {
	case http.MethodGet:
		key, ok := parseKey(parts)
		if !ok {
			h.errorResponse(w, http.StatusBadRequest, "invalid path: expected /api/v1/lists/:tab[/:subtab]")
			return
		}
		h.handleGetList(w, r, key)

	case http.MethodPost:
		if len(parts) < 2 {
			h.errorResponse(w, http.StatusBadRequest, "invalid path: expected /api/v1/lists/:tab[/:subtab]/(refresh|more)")
			return
		}
		action := parts[len(parts)-1]
		key, ok := parseKey(parts[:len(parts)-1])
		if !ok || (action != actionRefresh && action != actionMore) {
			h.errorResponse(w, http.StatusBadRequest, "invalid path: expected /api/v1/lists/:tab[/:subtab]/(refresh|more)")
			return
		}
		h.handleListAction(w, r, key, action)

	default:
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetList handles GET /api/v1/lists/:tab[/:subtab]
func (h *ListsHandler) handleGetList(w http.ResponseWriter, r *http.Request, key models.CacheKey) {
	v := h.service.View(key, filtersFromQuery(r))
	err := v.EnsureFresh(r.Context(), h.service.TTLFor(key))
	h.listResponse(w, r, v, err)
}

// handleListAction handles POST /api/v1/lists/:tab[/:subtab]/(refresh|more)
func (h *ListsHandler) handleListAction(w http.ResponseWriter, r *http.Request, key models.CacheKey, action string) {
	v := h.service.View(key, filtersFromQuery(r))

	var err error
	if action == actionRefresh {
		err = v.Refresh(r.Context())
	} else {
		err = v.LoadMore(r.Context())
	}
	h.listResponse(w, r, v, err)
}

// handleSessionReset handles POST /api/v1/session/reset
func (h *ListsHandler) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.service.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscriptions handles GET /api/v1/subscriptions
func (h *ListsHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.jsonResponse(w, http.StatusOK, h.service.Subscriptions())
}

// listResponse writes the list state. A failed fetch is not an HTTP failure: the
// last known items are returned with the error attached.
func (h *ListsHandler) listResponse(w http.ResponseWriter, r *http.Request, v *view.View, err error) {
	if err != nil && r.Context().Err() != nil {
		// Client went away; nobody to answer.
		return
	}

	resp := ToListResponse(v.Snapshot(), v.Standings())
	if err != nil {
		h.logger.Debug().
			Err(err).
			Str("key", v.Key().String()).
			Msg("serving cached list after failed fetch")
		resp.Error = err.Error()
		resp.ErrorKind = errorKind(err)
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

// jsonResponse writes a JSON response
func (h *ListsHandler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes a JSON error response
func (h *ListsHandler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

// ListResponse represents the API response for a cached list
type ListResponse struct {
	Key           string        `json:"key"`
	Items         []models.Item `json:"items"`
	Count         int           `json:"count"`
	Offset        int           `json:"offset"`
	HasMore       bool          `json:"has_more"`
	Loading       bool          `json:"loading"`
	LastFetchedAt string        `json:"last_fetched_at,omitempty"`
	Version       uint64        `json:"version"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`

	Standings map[string][]models.Standing `json:"standings,omitempty"`
}

// ToListResponse converts a CachedList and the league tables of its items to API
// response format
func ToListResponse(list models.CachedList, standings map[string][]models.Standing) *ListResponse {
	items := list.Items
	if items == nil {
		items = []models.Item{}
	}

	resp := &ListResponse{
		Key:     list.Key.String(),
		Items:   items,
		Count:   len(items),
		Offset:  list.Offset,
		HasMore: list.HasMore,
		Loading: list.Loading,
		Version: list.Version,
	}
	if len(standings) > 0 {
		resp.Standings = standings
	}
	if !list.LastFetchedAt.IsZero() {
		resp.LastFetchedAt = list.LastFetchedAt.Format(time.RFC3339)
	}
	if list.Err != nil {
		resp.Error = list.Err.Error()
		resp.ErrorKind = errorKind(list.Err)
	}
	return resp
}

func errorKind(err error) string {
	if models.IsTransient(err) {
		return models.FetchTransient.String()
	}
	return models.FetchTerminal.String()
}

// splitPath returns the non-empty segments of path after prefix
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// parseKey turns [tab] or [tab, subtab] into a cache key
func parseKey(parts []string) (models.CacheKey, bool) {
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return models.CacheKey{}, false
		}
		return models.NewCacheKey(parts[0]), true
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return models.CacheKey{}, false
		}
		return models.NewCacheKey(parts[0], parts[1]), true
	default:
		return models.CacheKey{}, false
	}
}

// filtersFromQuery passes every query parameter through to the bets API, first value wins
func filtersFromQuery(r *http.Request) models.Filters {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}

	filters := make(models.Filters, len(query))
	for k, vals := range query {
		if len(vals) > 0 {
			filters[k] = vals[0]
		}
	}
	return filters
}
