package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// testHTTPFetcherSetup is a helper struct to hold test dependencies
type testHTTPFetcherSetup struct {
	fetcher *HTTPFetcher
	server  *httptest.Server
	ctx     context.Context
}

// setupTestHTTPFetcher creates a fetcher pointed at handler
func setupTestHTTPFetcher(t *testing.T, handler http.HandlerFunc) *testHTTPFetcherSetup {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher := NewHTTPFetcher(HTTPFetcherConfig{
		BaseURL: server.URL + "/api/v1/bets/",
		Timeout: time.Second,
	}, zerolog.Nop())

	return &testHTTPFetcherSetup{
		fetcher: fetcher,
		server:  server,
		ctx:     context.Background(),
	}
}

func pageRequest() models.PageRequest {
	return models.PageRequest{
		Key:     models.NewCacheKey("history", "football"),
		Offset:  20,
		Limit:   20,
		Filters: models.Filters{"league": "premier league"},
	}
}

// TestNewHTTPFetcher tests fetcher creation
func TestNewHTTPFetcher(t *testing.T) {
	fetcher := NewHTTPFetcher(HTTPFetcherConfig{
		BaseURL: "http://bets-api:8080/api/v1/bets/",
		Timeout: 10 * time.Second,
	}, zerolog.Nop())

	assert.NotNil(t, fetcher)
	assert.Equal(t, "http://bets-api:8080/api/v1/bets", fetcher.baseURL)
	assert.Equal(t, 10*time.Second, fetcher.httpClient.Timeout)
}

// TestFetchPage_Success tests request shape and response decoding
func TestFetchPage_Success(t *testing.T) {
	placedAt := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	total := 42

	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/bets/history/football", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "premier league", r.URL.Query().Get("league"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Page{
			Items: []models.Item{
				{
					ID:         "b21",
					FixtureID:  "f7",
					Market:     "match_winner",
					Prediction: "away",
					Stake:      decimal.NewFromInt(5),
					Odds:       decimal.NewFromFloat(3.2),
					Result:     models.ResultPending,
					Status:     models.StatusLive,
					PlacedAt:   placedAt,
				},
			},
			Total: &total,
		})
	})

	page, err := setup.fetcher.FetchPage(setup.ctx, pageRequest())

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "b21", page.Items[0].ID)
	assert.Equal(t, "f7", page.Items[0].FixtureID)
	assert.True(t, decimal.NewFromFloat(3.2).Equal(page.Items[0].Odds))
	assert.True(t, placedAt.Equal(page.Items[0].PlacedAt))
	require.NotNil(t, page.Total)
	assert.Equal(t, 42, *page.Total)
}

// TestFetchPage_NoSubTab tests the path of a key without a sub-tab
func TestFetchPage_NoSubTab(t *testing.T) {
	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bets/open", r.URL.Path)
		w.Write([]byte(`{"items":[]}`))
	})

	page, err := setup.fetcher.FetchPage(setup.ctx, models.PageRequest{
		Key:   models.NewCacheKey("open"),
		Limit: 20,
	})

	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.Total)
}

// TestFetchPage_StatusClassification tests which statuses are worth retrying
func TestFetchPage_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "Bad request", status: http.StatusBadRequest, transient: false},
		{name: "Unauthorized", status: http.StatusUnauthorized, transient: false},
		{name: "Not found", status: http.StatusNotFound, transient: false},
		{name: "Request timeout", status: http.StatusRequestTimeout, transient: true},
		{name: "Too many requests", status: http.StatusTooManyRequests, transient: true},
		{name: "Internal error", status: http.StatusInternalServerError, transient: true},
		{name: "Bad gateway", status: http.StatusBadGateway, transient: true},
		{name: "Service unavailable", status: http.StatusServiceUnavailable, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := setup.fetcher.FetchPage(setup.ctx, pageRequest())

			require.Error(t, err)
			var fe *models.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.transient, models.IsTransient(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

// TestFetchPage_MalformedBody tests that an undecodable body is terminal
func TestFetchPage_MalformedBody(t *testing.T) {
	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [`))
	})

	_, err := setup.fetcher.FetchPage(setup.ctx, pageRequest())

	require.Error(t, err)
	assert.False(t, models.IsTransient(err))
	assert.Contains(t, err.Error(), "failed to unmarshal page")
}

// TestFetchPage_TransportError tests that an unreachable API is transient
func TestFetchPage_TransportError(t *testing.T) {
	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {})
	setup.server.Close()

	_, err := setup.fetcher.FetchPage(setup.ctx, pageRequest())

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

// TestFetchPage_Timeout tests that a slow API is transient
func TestFetchPage_Timeout(t *testing.T) {
	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(setup.ctx, 50*time.Millisecond)
	defer cancel()

	_, err := setup.fetcher.FetchPage(ctx, pageRequest())

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

// TestFetchPage_InvalidRequest tests that bad offsets and limits never reach the network
func TestFetchPage_InvalidRequest(t *testing.T) {
	setup := setupTestHTTPFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	tests := []struct {
		name          string
		offset, limit int
	}{
		{name: "Zero limit", offset: 0, limit: 0},
		{name: "Negative limit", offset: 0, limit: -1},
		{name: "Negative offset", offset: -1, limit: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := setup.fetcher.FetchPage(setup.ctx, models.PageRequest{
				Key:    models.NewCacheKey("open"),
				Offset: tt.offset,
				Limit:  tt.limit,
			})

			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidPageRequest)
			assert.False(t, models.IsTransient(err))
		})
	}
}

// TestPageURL tests URL building
func TestPageURL(t *testing.T) {
	fetcher := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: "http://api/bets"}, zerolog.Nop())

	got := fetcher.pageURL(models.PageRequest{
		Key:     models.NewCacheKey("history", "a/b"),
		Offset:  40,
		Limit:   20,
		Filters: models.Filters{"status": "won"},
	})

	assert.Equal(t, "http://api/bets/history/a%2Fb?limit=20&offset=40&status=won", got)
}
