// Package feeds fetches and parses RSS and Atom feeds.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "factlens/1.0 (+https://github.com/NullMeDev/factlens)"
)

// Fetcher retrieves feeds over HTTP.
type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

// NewFetcher creates a fetcher. A nil client gets a default one with
// DefaultTimeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: DefaultUserAgent,
	}
}

// Fetch retrieves and parses the feed at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return f.parser.Parse(resp.Body)
}

// ItemContent returns the richest text an item carries: full content, then
// description, then title.
func ItemContent(item *gofeed.Item) string {
	for _, s := range []string{item.Content, item.Description, item.Title} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ItemSource names the publisher of an item, falling back to the feed title.
func ItemSource(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if src, ok := item.Custom["source"]; ok && src != "" {
		return src
	}
	if feed != nil {
		return feed.Title
	}
	return ""
}

// ItemDate formats the item's publication date, or returns "".
func ItemDate(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Format("2006-01-02")
	}
	return item.Published
}
