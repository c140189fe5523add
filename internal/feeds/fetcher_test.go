package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Daily Wire Service</title>
  <link>https://news.example.com</link>
  <item>
    <title>Council approves budget</title>
    <link>https://news.example.com/budget</link>
    <description>The council approved the annual budget.</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>Title only</title>
    <link>https://news.example.com/title-only</link>
  </item>
</channel>
</rss>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	feed, err := NewFetcher(nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, feed.Items, 2)

	first := feed.Items[0]
	assert.Equal(t, "Council approves budget", first.Title)
	assert.Equal(t, "The council approved the annual budget.", ItemContent(first))
	assert.Equal(t, "2006-01-02", ItemDate(first))
	assert.Equal(t, "Daily Wire Service", ItemSource(feed, first))

	assert.Equal(t, "Title only", ItemContent(feed.Items[1]))
	assert.Equal(t, "", ItemDate(feed.Items[1]))
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL)
	assert.EqualError(t, err, "unexpected status code: 502")
}

func TestItemSourcePrefersAuthor(t *testing.T) {
	item := &gofeed.Item{Author: &gofeed.Person{Name: "Reuters"}}
	assert.Equal(t, "Reuters", ItemSource(&gofeed.Feed{Title: "Aggregator"}, item))
	assert.Equal(t, "", ItemSource(nil, &gofeed.Item{}))
}
