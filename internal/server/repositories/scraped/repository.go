package scraped

import (
	"context"

	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// ListQuery selects a window of stored pages, newest scrape first.
// An empty BaseURL lists everything.
type ListQuery struct {
	BaseURL string
	Limit   int
	Offset  int
}

type Repository interface {
	// Upsert inserts c or, when its ScrappedURL is already stored, replaces
	// content and scrape time while keeping id and created_at.
	Upsert(ctx context.Context, c *models.ScrapedContent) error
	List(ctx context.Context, q ListQuery) ([]models.ScrapedContent, int, error)
	GetByID(ctx context.Context, id string) (*models.ScrapedContent, error)
}
