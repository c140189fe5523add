package links

import (
	"context"
	"strings"

	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/predict"
)

// Result is the set of links suggested for one verdict.
type Result struct {
	Query     string `json:"query"`
	FactCheck []Link `json:"fact_check"`
	Related   []Link `json:"related"`
	// Live is true when Related came from a live news search.
	Live bool `json:"live"`
}

// Router chooses links by verdict: fake articles get fact-check and related
// links, real ones related links only, errors nothing.
type Router struct {
	store     *Store
	news      NewsSearcher
	condenser Condenser
	log       *logging.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithNewsSearcher enables live related-news lookups.
func WithNewsSearcher(s NewsSearcher) Option {
	return func(r *Router) { r.news = s }
}

// WithCondenser enables model-generated queries when no title is known.
func WithCondenser(c Condenser) Option {
	return func(r *Router) { r.condenser = c }
}

// NewRouter creates a router over a template store.
func NewRouter(store *Store, log *logging.Logger, opts ...Option) *Router {
	if log == nil {
		log = logging.Nop()
	}
	r := &Router{store: store, log: log.With("component", "links")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query builds the search query for an article: the title when known, else a
// condensed query, else keywords from the text.
func (r *Router) Query(ctx context.Context, title, text string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	if r.condenser != nil {
		q, err := r.condenser.Condense(ctx, text)
		if err == nil {
			return q
		}
		r.log.Warning("Query condensation failed, using keywords: %v", err)
	}
	return Keywords(text, DefaultKeywords)
}

// Route returns the links for a verdict and query.
func (r *Router) Route(ctx context.Context, label predict.Label, query string) Result {
	res := Result{Query: query}
	if label == predict.LabelError || strings.TrimSpace(query) == "" {
		return res
	}

	t := r.store.Templates()
	if label == predict.LabelFake {
		res.FactCheck = t.FactCheckLinks(query)
	}
	res.Related, res.Live = r.related(ctx, t, query)
	return res
}

func (r *Router) related(ctx context.Context, t Templates, query string) ([]Link, bool) {
	if r.news != nil {
		found, err := r.news.Search(ctx, query, t.MaxRelated)
		switch {
		case err != nil:
			r.log.Warning("Live news search failed, using templates: %v", err)
		case len(found) > 0:
			return found, true
		}
	}
	return t.RelatedLinks(query), false
}
