package crawler

import (
	"context"
	"errors"
)

// ErrNavigationTimeout is returned by Page.Navigate when the page did not
// load within the navigation deadline.
var ErrNavigationTimeout = errors.New("navigation timeout")

// Extracted is what a loaded page yields. Links are raw href values, in
// document order.
type Extracted struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	HTML        string   `json:"html"`
	Links       []string `json:"links"`
}

// Browser hands out pages. Implementations must be safe for concurrent use.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single browser tab. Close must be called on every path.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Extract reads the loaded document, returning at most maxLinks links.
	Extract(ctx context.Context, maxLinks int) (*Extracted, error)
	Close() error
}
