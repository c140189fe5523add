// Package verify runs the full analysis of one article: extraction,
// prediction, link suggestions, history and notifications.
package verify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/extract"
	"github.com/NullMeDev/factlens/internal/history"
	"github.com/NullMeDev/factlens/internal/links"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/metrics"
	"github.com/NullMeDev/factlens/internal/predict"
)

// Origins identify where a request came from.
const (
	OriginAPI     = "api"
	OriginDiscord = "discord"
	OriginFeed    = "feed"
	OriginCLI     = "cli"
)

// Request asks for one analysis. Exactly one of URL and Text is set. Title is
// optional and, for text requests, is used as the search query.
type Request struct {
	URL    string `json:"url,omitempty"`
	Text   string `json:"text,omitempty"`
	Title  string `json:"title,omitempty"`
	Origin string `json:"-"`
}

// Report is the result of an analysis.
type Report struct {
	ID         string          `json:"id,omitempty"`
	Origin     string          `json:"origin"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title,omitempty"`
	Excerpt    string          `json:"excerpt,omitempty"`
	Prediction predict.Outcome `json:"prediction"`
	Links      links.Result    `json:"links"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	DurationMS int64           `json:"duration_ms"`
}

// Extractor fetches articles by URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Article, error)
}

// LinkRouter builds queries and suggests links.
type LinkRouter interface {
	Query(ctx context.Context, title, text string) string
	Route(ctx context.Context, label predict.Label, query string) links.Result
}

// Recorder persists reports.
type Recorder interface {
	Save(ctx context.Context, r *history.Record) error
}

// Listener is told about every finished report. Implementations must not
// block.
type Listener interface {
	OnReport(r *Report)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(r *Report)

func (f ListenerFunc) OnReport(r *Report) { f(r) }

// Option configures a Service.
type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithErrorHandler(h *apperror.Handler) Option {
	return func(s *Service) { s.errors = h }
}

const excerptLength = 280

// Service is safe for concurrent use.
type Service struct {
	predictor predict.Predictor
	extractor Extractor
	router    LinkRouter
	recorder  Recorder
	metrics   *metrics.Metrics
	log       *logging.Logger
	errors    *apperror.Handler
	now       func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// New creates a Service. extractor may be nil, in which case URL requests
// fail.
func New(predictor predict.Predictor, extractor Extractor, router LinkRouter, opts ...Option) *Service {
	s := &Service{
		predictor: predictor,
		extractor: extractor,
		router:    router,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	s.log = s.log.With("component", "verify")
	return s
}

// AddListener registers a listener for finished reports.
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Ready reports whether the model is loaded.
func (s *Service) Ready() bool {
	return s.predictor.Loaded()
}

// Predict scores raw text without extraction, links or history.
func (s *Service) Predict(text, origin string) predict.Outcome {
	out := s.predictor.Predict(text)
	s.observe(out, origin)
	return out
}

// Links suggests links for a verdict and query.
func (s *Service) Links(ctx context.Context, label predict.Label, query string) links.Result {
	return s.router.Route(ctx, label, query)
}

// Analyze runs the whole pipeline. A failed prediction is reported inside
// the Report; the returned error is reserved for bad requests and failed
// extraction.
func (s *Service) Analyze(ctx context.Context, req Request) (*Report, error) {
	start := s.now()
	if req.Origin == "" {
		req.Origin = OriginAPI
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Title = strings.TrimSpace(req.Title)

	switch {
	case req.URL == "" && strings.TrimSpace(req.Text) == "":
		return nil, apperror.NewAPIError(apperror.ErrAPIBadRequest, "either url or text is required", nil)
	case req.URL != "" && req.Text != "":
		return nil, apperror.NewAPIError(apperror.ErrAPIBadRequest, "provide either url or text, not both", nil)
	}

	title, text := req.Title, req.Text
	if req.URL != "" {
		article, err := s.extract(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		if title == "" {
			title = article.Title
		}
		text = article.FullText()
	}

	out := s.predictor.Predict(text)
	report := &Report{
		Origin:     req.Origin,
		URL:        req.URL,
		Title:      title,
		Excerpt:    excerpt(text),
		Prediction: out,
		AnalyzedAt: start,
	}

	if !out.IsError() {
		query := s.router.Query(ctx, title, text)
		report.Links = s.router.Route(ctx, out.Label, query)
	}

	s.record(ctx, report)
	s.observe(out, req.Origin)

	elapsed := s.now().Sub(start)
	report.DurationMS = elapsed.Milliseconds()
	if s.metrics != nil {
		s.metrics.AnalyzeDuration.WithLabelValues(req.Origin).Observe(elapsed.Seconds())
	}

	s.log.Info("Analyzed %s: %s (%.2f%%)", describe(report), out.Label, out.Confidence)
	s.broadcast(report)
	return report, nil
}

func (s *Service) extract(ctx context.Context, rawURL string) (*extract.Article, error) {
	if s.extractor == nil {
		return nil, apperror.NewAPIError(apperror.ErrAPIBadRequest, "url analysis is not available", nil)
	}

	start := s.now()
	article, err := s.extractor.Extract(ctx, rawURL)
	if s.metrics != nil {
		s.metrics.ExtractDuration.Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		s.fail(err, "extract")
		return nil, err
	}
	return article, nil
}

// record stores the report. History failures are logged, never returned.
func (s *Service) record(ctx context.Context, report *Report) {
	if s.recorder == nil {
		return
	}
	rec := history.NewRecord(report.Origin, report.URL, report.Title, report.Links.Query, report.Prediction)
	rec.CreatedAt = report.AnalyzedAt
	if err := s.recorder.Save(ctx, rec); err != nil {
		s.log.Warning("Failed to save prediction history: %v", err)
		s.fail(err, "history")
		return
	}
	report.ID = rec.ID
}

func (s *Service) observe(out predict.Outcome, origin string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservePrediction(string(out.Label), origin, out.Confidence, out.Uncertain)
	s.metrics.SetModelLoaded(s.predictor.Loaded())
}

func (s *Service) fail(err error, component string) {
	if s.metrics != nil {
		code := apperror.CodeOf(err)
		if code == "" {
			code = "unknown"
		}
		s.metrics.ErrorsTotal.WithLabelValues(component, code).Inc()
	}
	if s.errors != nil {
		s.errors.Handle(err, component)
	}
}

func (s *Service) broadcast(report *Report) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer apperror.RecoverFromPanic(s.errors, "verify")
			l.OnReport(report)
		}()
	}
}

func describe(r *Report) string {
	switch {
	case r.URL != "":
		return r.URL
	case r.Title != "":
		return "\"" + r.Title + "\""
	default:
		return "text input"
	}
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}
