package predict

import "sync"

// Lazy defers loading the artifacts until the first prediction. The load runs
// exactly once; a failed load is remembered and never retried.
type Lazy struct {
	once   sync.Once
	load   func() (*Engine, error)
	engine *Engine
	err    error
}

// NewLazy returns a Lazy that loads the artifacts at the given paths.
func NewLazy(vectorizerPath, classifierPath string, opts ...Option) *Lazy {
	return NewLazyFunc(func() (*Engine, error) {
		return Load(vectorizerPath, classifierPath, opts...)
	})
}

// NewLazyFunc returns a Lazy backed by an arbitrary loader.
func NewLazyFunc(load func() (*Engine, error)) *Lazy {
	return &Lazy{load: load}
}

// Engine loads on first call and returns the memoized engine and load error.
func (l *Lazy) Engine() (*Engine, error) {
	l.once.Do(func() {
		l.engine, l.err = l.load()
		if l.engine == nil {
			l.engine = New(nil, nil)
		}
	})
	return l.engine, l.err
}

// Predict loads if needed, then delegates to the engine.
func (l *Lazy) Predict(text string) Outcome {
	e, _ := l.Engine()
	return e.Predict(text)
}

// Loaded loads if needed and reports the engine state.
func (l *Lazy) Loaded() bool {
	e, _ := l.Engine()
	return e.Loaded()
}
