package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// HTTPFetcher reads pages of bets from the bets API
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPFetcherConfig holds bets API client configuration
type HTTPFetcherConfig struct {
	BaseURL string        // e.g., "http://bets-api:8080/api/v1/bets"
	Timeout time.Duration // e.g., 10 * time.Second
}

// NewHTTPFetcher creates a new bets API page fetcher
func NewHTTPFetcher(config HTTPFetcherConfig, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("component", "http_fetcher").Logger(),
	}
}

// FetchPage performs GET {base}/{tab}[/{subtab}]?offset=&limit=&<filters>.
// It never retries; failures come back as *models.FetchError.
func (f *HTTPFetcher) FetchPage(ctx context.Context, req models.PageRequest) (models.Page, error) {
	if req.Limit <= 0 || req.Offset < 0 {
		return models.Page{}, models.NewTerminalError(0,
			fmt.Errorf("%w: offset=%d limit=%d", models.ErrInvalidPageRequest, req.Offset, req.Limit))
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.pageURL(req), nil)
	if err != nil {
		return models.Page{}, models.NewTerminalError(0, fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return models.Page{}, models.NewTransientError(0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Page{}, models.NewTransientError(resp.StatusCode, fmt.Errorf("failed to read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("bets API error: %s", strings.TrimSpace(string(body)))
		if isTransientStatus(resp.StatusCode) {
			return models.Page{}, models.NewTransientError(resp.StatusCode, err)
		}
		return models.Page{}, models.NewTerminalError(resp.StatusCode, err)
	}

	var page models.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return models.Page{}, models.NewTerminalError(resp.StatusCode, fmt.Errorf("failed to unmarshal page: %w", err))
	}

	f.logger.Debug().
		Str("key", req.Key.String()).
		Int("offset", req.Offset).
		Int("limit", req.Limit).
		Int("items", len(page.Items)).
		Str("request_id", requestID).
		Msg("fetched page")

	return page, nil
}

func (f *HTTPFetcher) pageURL(req models.PageRequest) string {
	path := f.baseURL + "/" + url.PathEscape(req.Key.Tab)
	if req.Key.SubTab != "" {
		path += "/" + url.PathEscape(req.Key.SubTab)
	}

	v := url.Values{}
	for k, val := range req.Filters {
		v.Set(k, val)
	}
	v.Set("offset", strconv.Itoa(req.Offset))
	v.Set("limit", strconv.Itoa(req.Limit))
	return path + "?" + v.Encode()
}

func isTransientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}
