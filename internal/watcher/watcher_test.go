package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/metrics"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/verify"
)

const fastRate = 600000

type stubFetcher struct {
	feeds map[string]*gofeed.Feed
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	feed, ok := f.feeds[url]
	if !ok {
		return nil, errors.New("unexpected status code: 404")
	}
	return feed, nil
}

type stubAnalyzer struct {
	mu       sync.Mutex
	requests []verify.Request
	labels   map[string]predict.Label
	fail     map[string]bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req verify.Request) (*verify.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.fail[req.URL] {
		return nil, apperror.NewExtractError(apperror.ErrExtractStatus, "unexpected status 500", nil)
	}
	label := a.labels[req.URL]
	if label == "" {
		label = predict.LabelReal
	}
	return &verify.Report{URL: req.URL, Title: req.Title, Prediction: predict.Outcome{Label: label}}, nil
}

type stubSeen map[string]bool

func (s stubSeen) Seen(ctx context.Context, url string) (bool, error) {
	return s[url], nil
}

func items(links ...string) []*gofeed.Item {
	out := make([]*gofeed.Item, 0, len(links))
	for _, l := range links {
		out = append(out, &gofeed.Item{Title: "Story " + l, Link: l})
	}
	return out
}

func TestRunAnalyzesNewItems(t *testing.T) {
	fetcher := &stubFetcher{feeds: map[string]*gofeed.Feed{
		"https://news.example/rss": {Title: "News", Items: items(
			"https://news.example/a",
			"https://news.example/b",
			"ftp://news.example/c",
			"",
		)},
		"https://other.example/rss": {Title: "Other", Items: items(
			"https://other.example/x",
			"https://news.example/a",
		)},
	}}
	analyzer := &stubAnalyzer{labels: map[string]predict.Label{"https://news.example/b": predict.LabelFake}}

	var alerts []*verify.Report
	m := metrics.New()
	w := New(fetcher, analyzer, Options{
		URLs:          []string{"https://news.example/rss", "https://other.example/rss", "https://news.example/rss", "file:///etc/passwd"},
		RatePerMinute: fastRate,
	}, WithSeenChecker(stubSeen{"https://other.example/x": true}), WithMetrics(m), WithAlert(func(r *verify.Report) {
		alerts = append(alerts, r)
	}))
	defer w.Close()

	assert.Equal(t, []string{"https://news.example/rss", "https://other.example/rss"}, w.URLs())

	sum, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Feeds: 2, Analyzed: 2, Skipped: 2, Fake: 1}, sum)
	require.Len(t, analyzer.requests, 2)
	assert.Equal(t, verify.OriginFeed, analyzer.requests[0].Origin)
	assert.Equal(t, "Story https://news.example/a", analyzer.requests[0].Title)
	require.Len(t, alerts, 1)
	assert.Equal(t, "https://news.example/b", alerts[0].URL)

	// a second run sees everything as processed
	sum, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Analyzed)
	assert.Equal(t, 4, sum.Skipped)
}

func TestRunRespectsMaxItems(t *testing.T) {
	fetcher := &stubFetcher{feeds: map[string]*gofeed.Feed{
		"https://news.example/rss": {Items: items(
			"https://news.example/1",
			"https://news.example/2",
			"https://news.example/3",
		)},
	}}
	analyzer := &stubAnalyzer{}
	w := New(fetcher, analyzer, Options{URLs: []string{"https://news.example/rss"}, MaxItems: 2, RatePerMinute: fastRate})
	defer w.Close()

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Analyzed)

	sum, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 2, sum.Skipped)
}

func TestRunRecordsFailures(t *testing.T) {
	fetcher := &stubFetcher{feeds: map[string]*gofeed.Feed{
		"https://news.example/rss": {Items: items("https://news.example/broken")},
	}}
	analyzer := &stubAnalyzer{fail: map[string]bool{"https://news.example/broken": true}}
	errs := apperror.NewHandler(10, nil)
	w := New(fetcher, analyzer, Options{
		URLs:          []string{"https://news.example/rss", "https://down.example/rss"},
		RatePerMinute: fastRate,
	}, WithErrorHandler(errs))
	defer w.Close()

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Feeds)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, int64(1), errs.Total())
	assert.Equal(t, "watcher", errs.Recent(1)[0].Component)

	// failed links are not retried on the next run
	sum, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Errors)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	fetcher := &stubFetcher{feeds: map[string]*gofeed.Feed{}}
	w := New(fetcher, &stubAnalyzer{}, Options{URLs: []string{"https://news.example/rss"}})
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
