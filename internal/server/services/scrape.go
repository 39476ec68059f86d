package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/archive"
	"github.com/dmitrijs2005/kajix/internal/server/crawler"
	"github.com/dmitrijs2005/kajix/internal/server/htmlmd"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/scraped"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	persistConcurrency = 4
)

type Crawler interface {
	Crawl(ctx context.Context, seed *url.URL) ([]models.PageContent, error)
}

// SnapshotStore keeps the raw HTML of scraped pages.
type SnapshotStore interface {
	Put(ctx context.Context, key, html string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// ListFilter is a content listing request. Zero Page and PageSize take
// their defaults; an empty ContentType means markdown.
type ListFilter struct {
	BaseURL     string
	Page        int
	PageSize    int
	ContentType string
}

type ScrapeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	crawler     Crawler
	converter   htmlmd.Converter
	snapshots   SnapshotStore
	log         logging.Logger
	now         func() time.Time
}

// NewScrapeService wires the service. snapshots may be nil, which disables
// archiving.
func NewScrapeService(db *sql.DB, m repomanager.RepositoryManager, c Crawler, conv htmlmd.Converter, snapshots SnapshotStore, log logging.Logger) *ScrapeService {
	return &ScrapeService{
		db:          db,
		repomanager: m,
		crawler:     c,
		converter:   conv,
		snapshots:   snapshots,
		log:         log.With("module", "scrape"),
		now:         time.Now,
	}
}

// Scrape crawls rawURL, stores every page it reached and returns them.
// Pages already stored under the same URL are replaced in place.
func (s *ScrapeService) Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error) {
	seed, err := crawler.NormalizeSeed(rawURL)
	if err != nil {
		return nil, err
	}

	pages, err := s.crawler.Crawl(ctx, seed)
	if err != nil {
		return nil, s.crawlError(ctx, seed, err)
	}
	scrapedAt := s.now().UTC()

	for i := range pages {
		md, err := s.converter.Convert(pages[i].HTML)
		if err != nil {
			s.log.Warn(ctx, "markdown conversion failed", "url", pages[i].URL, "error", err)
			continue
		}
		pages[i].Markdown = &md
	}

	repo := s.repomanager.Scraped(s.db)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(persistConcurrency)
	for _, p := range pages {
		g.Go(func() error {
			html := p.HTML
			row := &models.ScrapedContent{
				BaseURL:         seed.String(),
				ScrappedURL:     p.URL,
				HTMLContent:     &html,
				MarkdownContent: p.Markdown,
				LastScrappedAt:  scrapedAt,
			}
			if err := repo.Upsert(gctx, row); err != nil {
				return fmt.Errorf("upsert %s: %w", p.URL, err)
			}
			s.archive(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error(ctx, "persist scraped pages failed", "seed", seed.String(), "error", err)
		return nil, fmt.Errorf("%w: could not store scraped content", common.ErrorInternal)
	}

	s.log.Info(ctx, "scrape finished", "seed", seed.String(), "pages", len(pages))
	return &models.ScrapeResult{SourceURL: seed.String(), Content: pages, ScrapedAt: scrapedAt}, nil
}

func (s *ScrapeService) archive(ctx context.Context, p models.PageContent) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Put(ctx, archive.SnapshotKey(p.URL), p.HTML); err != nil {
		s.log.Warn(ctx, "snapshot upload failed", "url", p.URL, "error", err)
	}
}

func (s *ScrapeService) crawlError(ctx context.Context, seed *url.URL, err error) error {
	switch {
	case errors.Is(err, common.ErrorBadRequest), errors.Is(err, common.ErrorRequestTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: scraping %s timed out", common.ErrorRequestTimeout, seed)
	case errors.Is(err, context.Canceled):
		return err
	}
	s.log.Error(ctx, "crawl failed", "seed", seed.String(), "error", err)
	return fmt.Errorf("%w: crawl failed", common.ErrorInternal)
}

// ListContent returns one page of stored content, newest scrape first.
func (s *ScrapeService) ListContent(ctx context.Context, f ListFilter) (*models.ContentPage, error) {
	ct, ok := models.ParseContentType(f.ContentType)
	if !ok {
		return nil, fmt.Errorf("%w: contentType must be html, markdown or both", common.ErrorBadRequest)
	}

	page := f.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", common.ErrorBadRequest)
	}

	size := f.PageSize
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}

	baseURL := ""
	if f.BaseURL != "" {
		u, err := crawler.NormalizeSeed(f.BaseURL)
		if err != nil {
			return nil, err
		}
		baseURL = u.String()
	}

	rows, total, err := s.repomanager.Scraped(s.db).List(ctx, scraped.ListQuery{
		BaseURL: baseURL,
		Limit:   size,
		Offset:  (page - 1) * size,
	})
	if err != nil {
		s.log.Error(ctx, "list content failed", "error", err)
		return nil, fmt.Errorf("%w: could not list content", common.ErrorInternal)
	}

	for i := range rows {
		rows[i] = rows[i].Project(ct)
	}

	return &models.ContentPage{
		Data: rows,
		Meta: models.PageMeta{
			Total:      total,
			Page:       page,
			PageSize:   size,
			TotalPages: (total + size - 1) / size,
		},
	}, nil
}

// GetContent returns a stored page. An unknown or malformed id is a bad
// request rather than a missing resource.
func (s *ScrapeService) GetContent(ctx context.Context, id, contentType string) (*models.ScrapedContent, error) {
	ct, ok := models.ParseContentType(contentType)
	if !ok {
		return nil, fmt.Errorf("%w: contentType must be html, markdown or both", common.ErrorBadRequest)
	}

	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := row.Project(ct)
	return &out, nil
}

// SnapshotURL returns a short-lived download link for the archived HTML of
// a stored page.
func (s *ScrapeService) SnapshotURL(ctx context.Context, id string) (string, error) {
	if s.snapshots == nil {
		return "", fmt.Errorf("%w: snapshots are disabled", common.ErrorNotFound)
	}

	row, err := s.load(ctx, id)
	if errors.Is(err, common.ErrorBadRequest) {
		return "", fmt.Errorf("%w: content with ID %s not found", common.ErrorNotFound, id)
	}
	if err != nil {
		return "", err
	}

	link, err := s.snapshots.PresignGet(ctx, archive.SnapshotKey(row.ScrappedURL))
	if err != nil {
		s.log.Error(ctx, "presign snapshot failed", "id", id, "error", err)
		return "", fmt.Errorf("%w: could not sign snapshot link", common.ErrorInternal)
	}
	return link, nil
}

func (s *ScrapeService) load(ctx context.Context, id string) (*models.ScrapedContent, error) {
	notFound := fmt.Errorf("%w: Content with ID %s not found", common.ErrorBadRequest, id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound
	}

	row, err := s.repomanager.Scraped(s.db).GetByID(ctx, id)
	switch {
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorBadRequest):
		return nil, notFound
	case err != nil:
		s.log.Error(ctx, "load content failed", "id", id, "error", err)
		return nil, fmt.Errorf("%w: could not load content", common.ErrorInternal)
	}
	return row, nil
}
