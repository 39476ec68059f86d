package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/server/archive"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCrawler struct {
	pages []models.PageContent
	err   error
	seed  *url.URL
}

func (f *fakeCrawler) Crawl(ctx context.Context, seed *url.URL) ([]models.PageContent, error) {
	f.seed = seed
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.PageContent, len(f.pages))
	copy(out, f.pages)
	return out, nil
}

// fakeConverter fails on documents containing "broken".
type fakeConverter struct{}

func (fakeConverter) Convert(src string) (string, error) {
	if strings.Contains(src, "broken") {
		return "", errors.New("cannot convert")
	}
	return "md:" + src, nil
}

type fakeSnapshots struct {
	mu      sync.Mutex
	put     map[string]string
	putErr  error
	signErr error
}

func (f *fakeSnapshots) Put(ctx context.Context, key, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.put == nil {
		f.put = map[string]string{}
	}
	f.put[key] = html
	return nil
}

func (f *fakeSnapshots) PresignGet(ctx context.Context, key string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://s3.local/" + key + "?signed", nil
}

func newScrapeService(c *fakeCrawler, snaps SnapshotStore) (*ScrapeService, *fakeScrapedRepo) {
	repo := newFakeScrapedRepo()
	s := NewScrapeService(nil, &fakeRepoManager{s: repo}, c, fakeConverter{}, snaps, testLogger())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, repo
}

func TestScrape_StoresEveryPage(t *testing.T) {
	c := &fakeCrawler{pages: []models.PageContent{
		{URL: "https://example.com/", HTML: "<p>home</p>"},
		{URL: "https://example.com/a", HTML: "<p>broken</p>"},
	}}
	s, repo := newScrapeService(c, nil)

	res, err := s.Scrape(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", c.seed.String())
	assert.Equal(t, "https://example.com", res.SourceURL)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), res.ScrapedAt)
	require.Len(t, res.Content, 2)
	require.NotNil(t, res.Content[0].Markdown)
	assert.Equal(t, "md:<p>home</p>", *res.Content[0].Markdown)
	assert.Nil(t, res.Content[1].Markdown)

	require.Len(t, repo.rows, 2)
	home := repo.rows["https://example.com/"]
	assert.Equal(t, "https://example.com", home.BaseURL)
	assert.Equal(t, "<p>home</p>", *home.HTMLContent)
	assert.Equal(t, res.ScrapedAt, home.LastScrappedAt)
	assert.Nil(t, repo.rows["https://example.com/a"].MarkdownContent)
}

func TestScrape_RescrapeKeepsIdentity(t *testing.T) {
	c := &fakeCrawler{pages: []models.PageContent{{URL: "https://example.com/", HTML: "v1"}}}
	s, repo := newScrapeService(c, nil)
	ctx := context.Background()

	_, err := s.Scrape(ctx, "https://example.com")
	require.NoError(t, err)
	id := repo.rows["https://example.com/"].ID

	c.pages[0].HTML = "v2"
	_, err = s.Scrape(ctx, "https://example.com")
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, id, repo.rows["https://example.com/"].ID)
	assert.Equal(t, "v2", *repo.rows["https://example.com/"].HTMLContent)
}

func TestScrape_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		crawlErr error
		want     error
	}{
		{"bad scheme", "ftp://example.com", nil, common.ErrorBadRequest},
		{"seed unreachable", "example.com", fmt.Errorf("%w: failed", common.ErrorBadRequest), common.ErrorBadRequest},
		{"seed timeout", "example.com", fmt.Errorf("%w: slow", common.ErrorRequestTimeout), common.ErrorRequestTimeout},
		{"request deadline", "example.com", context.DeadlineExceeded, common.ErrorRequestTimeout},
		{"browser crash", "example.com", errors.New("chrome exited"), common.ErrorInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newScrapeService(&fakeCrawler{err: tt.crawlErr}, nil)
			_, err := s.Scrape(context.Background(), tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScrape_PersistFailure(t *testing.T) {
	c := &fakeCrawler{pages: []models.PageContent{{URL: "https://example.com/", HTML: "x"}}}
	s, repo := newScrapeService(c, nil)
	repo.upsertErr = errBoom

	_, err := s.Scrape(context.Background(), "example.com")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestScrape_ArchivesSnapshots(t *testing.T) {
	c := &fakeCrawler{pages: []models.PageContent{{URL: "https://example.com/", HTML: "<p>x</p>"}}}
	snaps := &fakeSnapshots{}
	s, _ := newScrapeService(c, snaps)

	_, err := s.Scrape(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", snaps.put[archive.SnapshotKey("https://example.com/")])

	snaps.putErr = errBoom
	_, err = s.Scrape(context.Background(), "example.com")
	assert.NoError(t, err)
}

func seedRows(t *testing.T, repo *fakeScrapedRepo, base string, n int) {
	t.Helper()
	for i := range n {
		html, md := fmt.Sprintf("<p>%d</p>", i), fmt.Sprintf("%d", i)
		require.NoError(t, repo.Upsert(context.Background(), &models.ScrapedContent{
			BaseURL:         base,
			ScrappedURL:     fmt.Sprintf("%s/p%02d", base, i),
			HTMLContent:     &html,
			MarkdownContent: &md,
		}))
	}
}

func TestListContent(t *testing.T) {
	s, repo := newScrapeService(&fakeCrawler{}, nil)
	seedRows(t, repo, "https://example.com", 25)
	seedRows(t, repo, "https://other.org", 3)
	ctx := context.Background()

	page, err := s.ListContent(ctx, ListFilter{BaseURL: "example.com", Page: 3})
	require.NoError(t, err)
	assert.Equal(t, models.PageMeta{Total: 25, Page: 3, PageSize: 10, TotalPages: 3}, page.Meta)
	require.Len(t, page.Data, 5)
	assert.Equal(t, 20, repo.lastQuery.Offset)
	for _, row := range page.Data {
		assert.Nil(t, row.HTMLContent)
		assert.NotNil(t, row.MarkdownContent)
	}

	page, err = s.ListContent(ctx, ListFilter{PageSize: 500, ContentType: "html"})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Meta.PageSize)
	assert.Equal(t, 28, page.Meta.Total)
	assert.Nil(t, page.Data[0].MarkdownContent)
	assert.NotNil(t, page.Data[0].HTMLContent)

	page, err = s.ListContent(ctx, ListFilter{ContentType: "both", Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)
}

func TestListContent_BadInput(t *testing.T) {
	s, _ := newScrapeService(&fakeCrawler{}, nil)
	ctx := context.Background()

	_, err := s.ListContent(ctx, ListFilter{ContentType: "pdf"})
	assert.ErrorIs(t, err, common.ErrorBadRequest)

	_, err = s.ListContent(ctx, ListFilter{Page: -1})
	assert.ErrorIs(t, err, common.ErrorBadRequest)

	_, err = s.ListContent(ctx, ListFilter{BaseURL: "ftp://example.com"})
	assert.ErrorIs(t, err, common.ErrorBadRequest)
}

func TestGetContent(t *testing.T) {
	s, repo := newScrapeService(&fakeCrawler{}, nil)
	seedRows(t, repo, "https://example.com", 1)
	id := repo.rows["https://example.com/p00"].ID
	ctx := context.Background()

	got, err := s.GetContent(ctx, id, "both")
	require.NoError(t, err)
	assert.NotNil(t, got.HTMLContent)
	assert.NotNil(t, got.MarkdownContent)

	_, err = s.GetContent(ctx, uuid.NewString(), "")
	assert.ErrorIs(t, err, common.ErrorBadRequest)
	assert.Contains(t, err.Error(), "not found")

	_, err = s.GetContent(ctx, "not-a-uuid", "")
	assert.ErrorIs(t, err, common.ErrorBadRequest)
}

func TestSnapshotURL(t *testing.T) {
	snaps := &fakeSnapshots{}
	s, repo := newScrapeService(&fakeCrawler{}, snaps)
	seedRows(t, repo, "https://example.com", 1)
	id := repo.rows["https://example.com/p00"].ID
	ctx := context.Background()

	link, err := s.SnapshotURL(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, link, archive.SnapshotKey("https://example.com/p00"))

	_, err = s.SnapshotURL(ctx, uuid.NewString())
	assert.ErrorIs(t, err, common.ErrorNotFound)

	snaps.signErr = errBoom
	_, err = s.SnapshotURL(ctx, id)
	assert.ErrorIs(t, err, common.ErrorInternal)

	disabled, _ := newScrapeService(&fakeCrawler{}, nil)
	_, err = disabled.SnapshotURL(ctx, id)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
