// Package scraped stores crawled pages in PostgreSQL, one row per
// distinct scraped URL.
package scraped

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, c *models.ScrapedContent) error {
	query := `
		INSERT INTO scraped_contents (base_url, scrapped_url, html_content, markdown_content, last_scrapped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scrapped_url)
		DO UPDATE SET
			base_url = EXCLUDED.base_url,
			html_content = EXCLUDED.html_content,
			markdown_content = EXCLUDED.markdown_content,
			last_scrapped_at = EXCLUDED.last_scrapped_at,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.BaseURL, c.ScrappedURL, c.HTMLContent, c.MarkdownContent, c.LastScrappedAt).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return dbx.Classify(err)
}

// List returns one page of rows plus the total number of matching rows.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]models.ScrapedContent, int, error) {
	var total int
	countQuery := `SELECT count(*) FROM scraped_contents WHERE ($1 = '' OR base_url = $1)`
	if err := r.db.QueryRowContext(ctx, countQuery, q.BaseURL).Scan(&total); err != nil {
		return nil, 0, dbx.Classify(err)
	}

	query := `
		SELECT id, base_url, scrapped_url, html_content, markdown_content, last_scrapped_at, created_at, updated_at
		FROM scraped_contents
		WHERE ($1 = '' OR base_url = $1)
		ORDER BY last_scrapped_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, q.BaseURL, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select scraped contents: %w", err)
	}
	defer rows.Close()

	result := make([]models.ScrapedContent, 0, q.Limit)
	for rows.Next() {
		var item models.ScrapedContent
		if err := rows.Scan(
			&item.ID, &item.BaseURL, &item.ScrappedURL, &item.HTMLContent, &item.MarkdownContent,
			&item.LastScrappedAt, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ScrapedContent, error) {
	query := `
		SELECT id, base_url, scrapped_url, html_content, markdown_content, last_scrapped_at, created_at, updated_at
		FROM scraped_contents
		WHERE id = $1
	`
	item := &models.ScrapedContent{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.BaseURL, &item.ScrappedURL, &item.HTMLContent, &item.MarkdownContent,
		&item.LastScrappedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify(err)
	}
	return item, nil
}
