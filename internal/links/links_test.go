package links

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/feeds"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/predict"
)

func TestTemplateRender(t *testing.T) {
	tpl := Template{Title: "Snopes", URL: "https://www.snopes.com/?s={query}", Source: "Snopes"}
	l := tpl.Render("  Magic crystals cure ")

	assert.Equal(t, "https://www.snopes.com/?s=Magic+crystals+cure", l.URL)
	assert.Equal(t, "Snopes", l.Title)

	static := Template{Title: "Reuters", URL: "https://www.reuters.com/fact-check"}
	assert.Equal(t, "https://www.reuters.com/fact-check", static.Render("anything").URL)
}

func TestDefaultTemplates(t *testing.T) {
	d := DefaultTemplates()
	require.NoError(t, d.Validate())

	fc := d.FactCheckLinks("moon landing")
	require.Len(t, fc, 5)
	assert.Equal(t, "https://www.factcheck.org/?s=moon+landing", fc[1].URL)
	assert.Equal(t, "https://www.politifact.com/search/?q=moon+landing", fc[2].URL)

	rel := d.RelatedLinks("moon landing")
	require.Len(t, rel, 2)
	assert.Equal(t, "https://www.cnn.com/search?q=moon+landing", rel[1].URL)
}

func writeTemplates(t *testing.T, path, body string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

const customTemplates = `
related:
  - title: Local Paper
    url: https://paper.example/search?q={query}
    snippet: Local coverage
    source: Paper
max_related: 1
`

func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	writeTemplates(t, path, customTemplates, time.Now())

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)

	assert.Len(t, tpl.FactCheck, 5, "fact-check section keeps defaults")
	require.Len(t, tpl.Related, 1)
	assert.Equal(t, "https://paper.example/search?q=vaccine+study", tpl.RelatedLinks("vaccine study")[0].URL)
	assert.Equal(t, 1, tpl.MaxRelated)
}

func TestLoadTemplatesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTemplates(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeTemplates(t, bad, "related: [unterminated", time.Now())
	_, err = LoadTemplates(bad)
	assert.ErrorContains(t, err, "failed to parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	writeTemplates(t, invalid, "fact_check:\n  - title: ''\n    url: ftp://x\n", time.Now())
	_, err = LoadTemplates(invalid)
	assert.ErrorContains(t, err, "fact_check[0]: missing title")
	assert.ErrorContains(t, err, "url must start with")
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{
			name:  "headline",
			text:  "BREAKING: Scientists discover cure for all diseases using magic crystals!",
			limit: 5,
			want:  "scientists discover cure diseases using",
		},
		{
			name:  "dedupe keeps first occurrence",
			text:  "Election election ELECTION results announced",
			limit: 5,
			want:  "election results announced",
		},
		{
			name:  "stop words and short words dropped",
			text:  "this that with from have been were they what",
			limit: 5,
			want:  "",
		},
		{
			name:  "punctuation and digits excluded",
			text:  "covid-19 vaccines, approved today 2024",
			limit: 5,
			want:  "approved today",
		},
		{
			name:  "limit respected",
			text:  "alpha bravo charlie delta",
			limit: 2,
			want:  "alpha bravo",
		},
		{
			name:  "zero limit uses default",
			text:  "one1 alpha bravo charlie delta echos foxtrot",
			limit: 0,
			want:  "alpha bravo charlie delta echos",
		},
		{name: "empty", text: "", limit: 5, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.text, tt.limit))
		})
	}
}

func TestStoreDefaults(t *testing.T) {
	s, err := NewStore("", logging.Nop())
	require.NoError(t, err)
	assert.Len(t, s.Templates().FactCheck, 5)

	changed, err := s.Reload()
	assert.NoError(t, err)
	assert.False(t, changed)

	s, err = NewStore(filepath.Join(t.TempDir(), "not-yet.yaml"), logging.Nop())
	require.NoError(t, err)
	assert.Len(t, s.Templates().Related, 2)
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	past := time.Now().Add(-time.Hour)
	writeTemplates(t, path, "max_related: 1\n", past)

	s, err := NewStore(path, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Templates().MaxRelated)

	var reloaded atomic.Int32
	s.SetReloadHandler(func(Templates) { reloaded.Add(1) })

	changed, err := s.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "unchanged file is not reloaded")

	writeTemplates(t, path, customTemplates, past.Add(time.Minute))
	changed, err = s.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Local Paper", s.Templates().Related[0].Title)
	assert.Equal(t, int32(1), reloaded.Load())

	writeTemplates(t, path, "fact_check:\n  - title: x\n    url: nope\n", past.Add(2*time.Minute))
	_, err = s.Reload()
	assert.Error(t, err)
	assert.Equal(t, "Local Paper", s.Templates().Related[0].Title, "previous templates kept")
}

func TestStoreRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	writeTemplates(t, path, "related: [", time.Now())

	_, err := NewStore(path, logging.Nop())
	require.Error(t, err)
	assert.Equal(t, apperror.ErrLinksTemplates, apperror.CodeOf(err))
}

func TestStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	start := time.Now().Add(-time.Hour)
	writeTemplates(t, path, "max_related: 1\n", start)

	s, err := NewStore(path, logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	bump := 0
	require.Eventually(t, func() bool {
		bump++
		mtime := time.Now().Add(time.Duration(bump) * time.Hour)
		_ = os.WriteFile(path, []byte(customTemplates), 0o644)
		_ = os.Chtimes(path, mtime, mtime)
		return s.Templates().Related[0].Title == "Local Paper"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

type stubNews struct {
	links []Link
	err   error
	calls int
}

func (s *stubNews) Search(_ context.Context, _ string, limit int) ([]Link, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.links) > limit {
		return s.links[:limit], nil
	}
	return s.links, nil
}

type stubCondenser struct {
	query string
	err   error
}

func (s stubCondenser) Condense(context.Context, string) (string, error) {
	return s.query, s.err
}

func newRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	s, err := NewStore("", logging.Nop())
	require.NoError(t, err)
	return NewRouter(s, logging.Nop(), opts...)
}

func TestRouteByLabel(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	fake := r.Route(ctx, predict.LabelFake, "magic crystals")
	assert.Len(t, fake.FactCheck, 5)
	assert.Len(t, fake.Related, 2)
	assert.False(t, fake.Live)
	assert.Equal(t, "magic crystals", fake.Query)

	genuine := r.Route(ctx, predict.LabelReal, "stock markets")
	assert.Empty(t, genuine.FactCheck)
	assert.Len(t, genuine.Related, 2)

	failed := r.Route(ctx, predict.LabelError, "anything")
	assert.Empty(t, failed.FactCheck)
	assert.Empty(t, failed.Related)

	blank := r.Route(ctx, predict.LabelFake, "  ")
	assert.Empty(t, blank.FactCheck)
}

func TestRouteLiveNews(t *testing.T) {
	ctx := context.Background()
	live := []Link{{Title: "A", URL: "https://a"}, {Title: "B", URL: "https://b"}, {Title: "C", URL: "https://c"}}

	news := &stubNews{links: live}
	res := newRouter(t, WithNewsSearcher(news)).Route(ctx, predict.LabelReal, "query")
	assert.True(t, res.Live)
	assert.Equal(t, live[:2], res.Related)

	failing := &stubNews{err: errors.New("offline")}
	res = newRouter(t, WithNewsSearcher(failing)).Route(ctx, predict.LabelReal, "query")
	assert.False(t, res.Live)
	assert.Equal(t, "Search on Online Khabar", res.Related[0].Title)
	assert.Equal(t, 1, failing.calls)

	empty := &stubNews{}
	res = newRouter(t, WithNewsSearcher(empty)).Route(ctx, predict.LabelReal, "query")
	assert.False(t, res.Live)
	assert.Len(t, res.Related, 2)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	text := "Scientists discover miracle cure for every disease"

	assert.Equal(t, "Given Title", newRouter(t).Query(ctx, "  Given Title ", text))
	assert.Equal(t, "scientists discover miracle cure every", newRouter(t).Query(ctx, "", text))

	condensed := newRouter(t, WithCondenser(stubCondenser{query: "miracle cure claim"}))
	assert.Equal(t, "miracle cure claim", condensed.Query(ctx, "", text))
	assert.Equal(t, "Title Wins", condensed.Query(ctx, "Title Wins", text))

	broken := newRouter(t, WithCondenser(stubCondenser{err: errors.New("quota")}))
	assert.Equal(t, "scientists discover miracle cure every", broken.Query(ctx, "", text))
}

const newsRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Search results</title>
<item>
  <title>Crystals do not cure disease, doctors say</title>
  <link>https://news.example.com/crystals</link>
  <description>&lt;a href="https://news.example.com/crystals"&gt;Crystals do not cure disease&lt;/a&gt; &lt;font&gt;Health Desk&lt;/font&gt;</description>
  <pubDate>Tue, 05 Mar 2024 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Second story</title>
  <link>https://news.example.com/second</link>
</item>
<item>
  <title></title>
  <link>https://news.example.com/untitled</link>
</item>
</channel></rss>`

func TestFeedSearcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "magic cure", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(newsRSS))
	}))
	defer srv.Close()

	s := NewFeedSearcher(feeds.NewFetcher(srv.Client()), srv.URL+"/rss?q=%s", time.Minute)
	defer s.Close()

	found, err := s.Search(context.Background(), "magic cure", 5)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "https://news.example.com/crystals", found[0].URL)
	assert.Equal(t, "Crystals do not cure disease Health Desk", found[0].Snippet)
	assert.Equal(t, "2024-03-05", found[0].Date)
	assert.Equal(t, "Search results", found[0].Source)

	_, err = s.Search(context.Background(), "Magic Cure", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second search served from cache")

	one, err := s.Search(context.Background(), "magic cure", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestFeedSearcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewFeedSearcher(feeds.NewFetcher(srv.Client()), srv.URL+"/?q=%s", time.Minute)
	defer s.Close()

	_, err := s.Search(context.Background(), "query", 2)
	require.Error(t, err)
	assert.Equal(t, apperror.ErrLinksSearch, apperror.CodeOf(err))
	assert.True(t, apperror.IsTransient(err))

	_, err = s.Search(context.Background(), "   ", 2)
	assert.Error(t, err)
}

func TestOpenAICondenser(t *testing.T) {
	assert.Nil(t, NewOpenAICondenser(OpenAIOptions{}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
			"choices":[{"index":0,"message":{"role":"assistant","content":" \"Magic crystals cure all diseases.\" "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}`)
	}))
	defer srv.Close()

	c := NewOpenAICondenser(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NotNil(t, c)

	q, err := c.Condense(context.Background(), "Long article text about crystals.")
	require.NoError(t, err)
	assert.Equal(t, "Magic crystals cure all diseases", q)

	_, err = c.Condense(context.Background(), "   ")
	assert.Error(t, err)
}
