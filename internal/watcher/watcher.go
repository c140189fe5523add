// Package watcher analyses new items from configured RSS feeds.
package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/cache"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/metrics"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/verify"
)

const (
	DefaultMaxItems      = 10
	DefaultRatePerMinute = 30
	// seenTTL is how long a processed link is remembered in memory, which
	// covers runs without a history store and links whose analysis failed.
	seenTTL      = 24 * time.Hour
	seenCapacity = 10000
)

// FeedFetcher downloads and parses a feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req verify.Request) (*verify.Report, error)
}

// SeenChecker reports whether a link was analysed before.
type SeenChecker interface {
	Seen(ctx context.Context, url string) (bool, error)
}

// Summary counts what one run did.
type Summary struct {
	Feeds    int `json:"feeds"`
	Failed   int `json:"failed_feeds"`
	Analyzed int `json:"analyzed"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Fake     int `json:"fake"`
}

// Options configures a Watcher.
type Options struct {
	URLs          []string
	MaxItems      int
	RatePerMinute int
}

// Option adds optional collaborators.
type Option func(*Watcher)

func WithSeenChecker(s SeenChecker) Option {
	return func(w *Watcher) { w.seen = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

func WithErrorHandler(h *apperror.Handler) Option {
	return func(w *Watcher) { w.errors = h }
}

// WithAlert registers a callback for items predicted Fake.
func WithAlert(fn func(*verify.Report)) Option {
	return func(w *Watcher) { w.alert = fn }
}

// Watcher polls feeds and analyses items it has not seen. Runs never
// overlap; a run started while another is active returns immediately.
type Watcher struct {
	fetcher  FeedFetcher
	analyzer Analyzer
	urls     []string
	maxItems int
	limiter  *rate.Limiter

	seen    SeenChecker
	metrics *metrics.Metrics
	log     *logging.Logger
	errors  *apperror.Handler
	alert   func(*verify.Report)

	processed *cache.Cache[bool]
	running   sync.Mutex
}

// New creates a Watcher.
func New(fetcher FeedFetcher, analyzer Analyzer, opts Options, options ...Option) *Watcher {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = DefaultRatePerMinute
	}

	w := &Watcher{
		fetcher:   fetcher,
		analyzer:  analyzer,
		urls:      validFeedURLs(opts.URLs),
		maxItems:  opts.MaxItems,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1),
		processed: cache.New[bool](seenTTL, seenCapacity, time.Hour),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.log == nil {
		w.log = logging.Nop()
	}
	w.log = w.log.With("component", "watcher")
	return w
}

// Close releases the in-memory seen set.
func (w *Watcher) Close() {
	w.processed.Close()
}

// URLs returns the feeds being watched.
func (w *Watcher) URLs() []string {
	return append([]string(nil), w.urls...)
}

// Run checks every feed once.
func (w *Watcher) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if !w.running.TryLock() {
		w.log.Warning("Feed check already running, skipping")
		return sum, nil
	}
	defer w.running.Unlock()

	for _, url := range w.urls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Feeds++

		feed, err := w.fetcher.Fetch(ctx, url)
		if err != nil {
			sum.Failed++
			w.countRun("error")
			w.fail(apperror.NewSchedulerError(apperror.ErrSchedulerTask, fmt.Sprintf("failed to fetch feed %s", url), err))
			continue
		}
		w.countRun("ok")

		if err := w.processFeed(ctx, feed, &sum); err != nil {
			return sum, err
		}
	}

	w.log.Info("Feed check complete: %d feeds, %d analyzed, %d skipped, %d errors, %d fake",
		sum.Feeds, sum.Analyzed, sum.Skipped, sum.Errors, sum.Fake)
	return sum, nil
}

func (w *Watcher) processFeed(ctx context.Context, feed *gofeed.Feed, sum *Summary) error {
	analyzed := 0
	for _, item := range feed.Items {
		if analyzed >= w.maxItems {
			break
		}
		link := strings.TrimSpace(item.Link)
		if !isHTTP(link) {
			continue
		}
		if w.alreadySeen(ctx, link) {
			sum.Skipped++
			w.countItem("skipped")
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		analyzed++
		w.processed.Set(link, true)

		report, err := w.analyzer.Analyze(ctx, verify.Request{
			URL:    link,
			Title:  strings.TrimSpace(item.Title),
			Origin: verify.OriginFeed,
		})
		if err != nil {
			sum.Errors++
			w.countItem("failed")
			w.log.Warning("Failed to analyze %s: %v", link, err)
			continue
		}

		sum.Analyzed++
		w.countItem("analyzed")
		if report.Prediction.Label == predict.LabelFake {
			sum.Fake++
			if w.alert != nil {
				w.alert(report)
			}
		}
	}
	return nil
}

func (w *Watcher) alreadySeen(ctx context.Context, link string) bool {
	if _, ok := w.processed.Get(link); ok {
		return true
	}
	if w.seen == nil {
		return false
	}
	seen, err := w.seen.Seen(ctx, link)
	if err != nil {
		w.log.Warning("History lookup failed for %s: %v", link, err)
		return false
	}
	if seen {
		w.processed.Set(link, true)
	}
	return seen
}

func (w *Watcher) countRun(status string) {
	if w.metrics != nil {
		w.metrics.FeedRunsTotal.WithLabelValues(status).Inc()
	}
}

func (w *Watcher) countItem(result string) {
	if w.metrics != nil {
		w.metrics.FeedItemsTotal.WithLabelValues(result).Inc()
	}
}

func (w *Watcher) fail(err error) {
	w.log.Error("%v", err)
	if w.errors != nil {
		w.errors.Handle(err, "watcher")
	}
}

func isHTTP(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}

// validFeedURLs keeps http(s) feeds and drops duplicates.
func validFeedURLs(urls []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !isHTTP(u) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
