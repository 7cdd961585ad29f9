//go:generate mockgen -source=fetcher.go -destination=../mocks/mock_fetcher.go -package=mocks

package cache

import (
	"context"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// PageFetcher wraps the paginated bets API. Implementations are stateless, do not retry,
// and report failures as *models.FetchError so callers can tell transient from terminal.
type PageFetcher interface {
	FetchPage(ctx context.Context, req models.PageRequest) (models.Page, error)
}

// PageFetcherFunc adapts a plain function to PageFetcher
type PageFetcherFunc func(ctx context.Context, req models.PageRequest) (models.Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, req models.PageRequest) (models.Page, error) {
	return f(ctx, req)
}
