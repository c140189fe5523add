package links

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/cache"
	"github.com/NullMeDev/factlens/internal/feeds"
)

// DefaultNewsSearchURL is the Google News RSS search endpoint. %s receives the
// escaped query.
const DefaultNewsSearchURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// NewsSearcher looks up live related coverage for a query.
type NewsSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Link, error)
}

// FeedSearcher searches a news RSS endpoint and caches results per query.
type FeedSearcher struct {
	fetcher   *feeds.Fetcher
	searchURL string
	cache     *cache.Cache[[]Link]
}

// NewFeedSearcher creates a searcher against searchURL, a format string with
// one %s for the query. An empty searchURL uses DefaultNewsSearchURL.
func NewFeedSearcher(fetcher *feeds.Fetcher, searchURL string, ttl time.Duration) *FeedSearcher {
	if searchURL == "" {
		searchURL = DefaultNewsSearchURL
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &FeedSearcher{
		fetcher:   fetcher,
		searchURL: searchURL,
		cache:     cache.New[[]Link](ttl, 200, ttl),
	}
}

// Close stops the result cache.
func (s *FeedSearcher) Close() {
	s.cache.Close()
}

// Search returns up to limit items from the feed for query.
func (s *FeedSearcher) Search(ctx context.Context, query string, limit int) ([]Link, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.NewLinksError(apperror.ErrLinksSearch, "empty search query", nil)
	}

	key := fmt.Sprintf("%d:%s", limit, strings.ToLower(query))
	return s.cache.GetOrSet(key, func() ([]Link, error) {
		feed, err := s.fetcher.Fetch(ctx, fmt.Sprintf(s.searchURL, url.QueryEscape(query)))
		if err != nil {
			return nil, apperror.NewLinksError(apperror.ErrLinksSearch, "news search failed", err)
		}

		var out []Link
		for _, item := range feed.Items {
			if item.Link == "" || item.Title == "" {
				continue
			}
			out = append(out, Link{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: truncate(stripTags(item.Description), 200),
				Source:  feeds.ItemSource(feed, item),
				Date:    feeds.ItemDate(item),
			})
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return out, nil
	})
}

// stripTags reduces an HTML description to its text.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
