// Package crawler walks a site from a seed URL with a headless browser and
// extracts the content of every reachable page on the same host.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/models"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxLinks = 1000
)

type Options struct {
	// Timeout bounds navigation plus extraction of a single page.
	Timeout time.Duration
	// MaxLinks caps the links taken from one page.
	MaxLinks int
	// MaxPages stops the crawl after this many pages; 0 means no limit.
	MaxPages int
	// IncludeExternal records links to other hosts as content entries.
	// They are loaded once and their own links are not followed.
	IncludeExternal bool
}

type Crawler struct {
	browser Browser
	opts    Options
	log     logging.Logger
}

func New(browser Browser, opts Options, log logging.Logger) *Crawler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = DefaultMaxLinks
	}
	return &Crawler{browser: browser, opts: opts, log: log.With("module", "crawler")}
}

type queueItem struct {
	url      *url.URL
	external bool
}

// Crawl visits seed and everything reachable from it on the same host,
// breadth first, each URL at most once.
//
// A failure on the seed aborts the crawl: common.ErrorRequestTimeout when
// it did not load in time, common.ErrorBadRequest otherwise. Failures on
// any other page are logged and that page is skipped.
func (c *Crawler) Crawl(ctx context.Context, seed *url.URL) ([]models.PageContent, error) {
	visited := map[string]bool{visitKey(seed): true}
	queue := []queueItem{{url: seed}}
	pages := make([]models.PageContent, 0, 1)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.opts.MaxPages > 0 && len(pages) >= c.opts.MaxPages {
			c.log.Info(ctx, "page limit reached", "seed", seed.String(), "pages", len(pages))
			break
		}

		item := queue[0]
		queue = queue[1:]
		isSeed := item.url == seed

		ex, err := c.visit(ctx, item.url)
		if err != nil {
			if isSeed {
				return nil, seedError(seed, c.opts.Timeout, err)
			}
			c.log.Warn(ctx, "skipping page", "url", item.url.String(), "error", err)
			continue
		}

		pages = append(pages, models.PageContent{
			URL:         visitKey(item.url),
			IsExternal:  item.external,
			Title:       ex.Title,
			Description: ex.Description,
			Text:        ex.Text,
			HTML:        ex.HTML,
		})

		if item.external {
			continue
		}

		for _, href := range ex.Links {
			next, ok, err := resolveLink(item.url, href)
			if err != nil {
				c.log.Warn(ctx, "cannot resolve link", "page", item.url.String(), "href", href, "error", err)
				continue
			}
			if !ok {
				continue
			}

			key := visitKey(next)
			if visited[key] {
				continue
			}

			switch {
			case sameHost(seed, next):
				visited[key] = true
				queue = append(queue, queueItem{url: next})
			case c.opts.IncludeExternal:
				visited[key] = true
				queue = append(queue, queueItem{url: next, external: true})
			}
		}
	}

	c.log.Debug(ctx, "crawl finished", "seed", seed.String(), "pages", len(pages))
	return pages, nil
}

// visit loads one page in its own tab and closes the tab before returning.
func (c *Crawler) visit(ctx context.Context, u *url.URL) (*Extracted, error) {
	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.log.Warn(ctx, "close page", "url", u.String(), "error", err)
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := page.Navigate(pageCtx, u.String()); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return nil, err
	}

	ex, err := page.Extract(pageCtx, c.opts.MaxLinks)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return nil, fmt.Errorf("extract content: %w", err)
	}
	if len(ex.Links) > c.opts.MaxLinks {
		ex.Links = ex.Links[:c.opts.MaxLinks]
	}
	return ex, nil
}

func seedError(seed *url.URL, timeout time.Duration, err error) error {
	if errors.Is(err, ErrNavigationTimeout) {
		return fmt.Errorf("%w: %s did not load within %s", common.ErrorRequestTimeout, seed, timeout)
	}
	return fmt.Errorf("%w: failed to scrape %s: %v", common.ErrorBadRequest, seed, err)
}
