package models

import "time"

// ScrapedContent is one stored page, unique by ScrappedURL.
type ScrapedContent struct {
	ID              string    `json:"id"`
	BaseURL         string    `json:"baseUrl"`
	ScrappedURL     string    `json:"scrappedUrl"`
	HTMLContent     *string   `json:"htmlContent,omitempty"`
	MarkdownContent *string   `json:"markdownContent,omitempty"`
	LastScrappedAt  time.Time `json:"lastScrappedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PageContent is what the crawler extracts from a single page.
type PageContent struct {
	URL         string  `json:"url"`
	IsExternal  bool    `json:"isExternal"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Text        string  `json:"text"`
	HTML        string  `json:"html"`
	Markdown    *string `json:"markdown,omitempty"`
}

// ScrapeResult is returned by a crawl request.
type ScrapeResult struct {
	SourceURL string        `json:"sourceUrl"`
	Content   []PageContent `json:"content"`
	ScrapedAt time.Time     `json:"scrapedAt"`
}

// ContentType selects which stored renderings a listing returns.
type ContentType string

const (
	ContentHTML     ContentType = "html"
	ContentMarkdown ContentType = "markdown"
	ContentBoth     ContentType = "both"
)

// ParseContentType maps an empty value to markdown and rejects anything
// outside html|markdown|both.
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(s) {
	case "":
		return ContentMarkdown, true
	case ContentHTML, ContentMarkdown, ContentBoth:
		return ContentType(s), true
	default:
		return "", false
	}
}

// Project drops the rendering the caller did not ask for.
func (c ScrapedContent) Project(ct ContentType) ScrapedContent {
	switch ct {
	case ContentHTML:
		c.MarkdownContent = nil
	case ContentMarkdown:
		c.HTMLContent = nil
	}
	return c
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

type ContentPage struct {
	Data []ScrapedContent `json:"data"`
	Meta PageMeta         `json:"meta"`
}
