// Package extract downloads news pages and pulls out the headline and article
// body.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/cache"
	"github.com/NullMeDev/factlens/internal/logging"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) factlens/1.0"
	DefaultMaxBytes  = 5 << 20
	DefaultCacheTTL  = 30 * time.Minute
	DefaultCacheSize = 500
)

// chrome is removed before text is collected.
const chrome = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, figure figcaption"

var urlPattern = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,6}\.?|` +
	`localhost|` +
	`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// ValidateURL reports whether raw is an absolute http(s) URL whose host is a
// domain name, localhost or an IPv4 address.
func ValidateURL(raw string) bool {
	return urlPattern.MatchString(raw)
}

// Article is the extracted content of one page.
type Article struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FullText is the text submitted for prediction: the headline followed by the
// body.
func (a *Article) FullText() string {
	if a.Title == "" {
		return a.Text
	}
	return a.Title + ". " + a.Text
}

// Options configures an Extractor. Zero values fall back to the defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	CacheTTL  time.Duration
	CacheSize int
	Client    *http.Client
}

// Extractor fetches and parses articles, caching results per URL.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	cache     *cache.Cache[*Article]
	log       *logging.Logger
}

// New creates an Extractor.
func New(opts Options, log *logging.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Extractor{
		client:    client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		cache:     cache.New[*Article](opts.CacheTTL, opts.CacheSize, opts.CacheTTL),
		log:       log.With("component", "extract"),
	}
}

// Close stops the cache cleanup goroutine.
func (e *Extractor) Close() {
	e.cache.Close()
}

// Extract downloads rawURL and returns its article. Failures are
// *apperror.Error values with an EXTRACT_* code.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Article, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !ValidateURL(rawURL) {
		return nil, apperror.NewExtractError(apperror.ErrExtractInvalidURL, "invalid URL format", nil)
	}
	if a, ok := e.cache.Get(rawURL); ok {
		e.log.Debug("Cache hit for %s", rawURL)
		copied := *a
		return &copied, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperror.NewExtractError(apperror.ErrExtractInvalidURL, "invalid URL", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperror.NewExtractError(apperror.ErrExtractTimeout, "timed out fetching article", err)
		}
		return nil, apperror.NewExtractError(apperror.ErrExtractFetch, "failed to fetch article", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.NewExtractError(apperror.ErrExtractStatus,
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, req.URL.Host), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperror.NewExtractError(apperror.ErrExtractTimeout, "timed out reading article", err)
		}
		return nil, apperror.NewExtractError(apperror.ErrExtractFetch, "failed to read article", err)
	}
	if int64(len(body)) > e.maxBytes {
		return nil, apperror.NewExtractError(apperror.ErrExtractTooLarge,
			fmt.Sprintf("page exceeds %d bytes", e.maxBytes), nil)
	}

	article, err := Parse(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	article.URL = rawURL
	article.FetchedAt = time.Now()

	e.cache.Set(rawURL, article)
	e.log.Info("Extracted %d characters from %s", len(article.Text), rawURL)

	copied := *article
	return &copied, nil
}

// Parse extracts the article from an HTML document. contentType is the
// response Content-Type and is used to pick the character set.
func Parse(r io.Reader, contentType string) (*Article, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, apperror.NewExtractError(apperror.ErrExtractFetch, "unsupported character set", err)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, apperror.NewExtractError(apperror.ErrExtractFetch, "failed to parse HTML", err)
	}
	doc.Find(chrome).Remove()

	article := &Article{
		Title: findTitle(doc),
		Text:  findText(doc),
	}
	if article.Text == "" {
		return nil, apperror.NewExtractError(apperror.ErrExtractEmpty, "no article text found", nil)
	}
	return article, nil
}

func findTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := collapse(og); title != "" {
			return title
		}
	}
	return collapse(doc.Find("title").First().Text())
}

func findText(doc *goquery.Document) string {
	for _, selector := range []string{"article p", "main p", "p"} {
		var parts []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := collapse(s.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return collapse(doc.Find("body").Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
