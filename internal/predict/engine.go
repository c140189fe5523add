// Package predict implements the fake-news prediction engine: normalize,
// vectorize, classify, then apply the length-dependent threshold policy.
package predict

import (
	"errors"
	"fmt"
	"math"

	"github.com/NullMeDev/factlens/internal/model"
	"github.com/NullMeDev/factlens/internal/textnorm"
)

// Label is the user-facing verdict.
type Label string

const (
	LabelFake  Label = "Fake"
	LabelReal  Label = "Real"
	LabelError Label = "Error"
)

var (
	// ErrModelNotLoaded is reported by an engine whose artifacts failed to load.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrEmptyInput is reported when nothing is left of the text after cleaning.
	ErrEmptyInput = errors.New("text is empty after cleaning")
)

// LoadError describes a failure to read the model artifacts.
type LoadError struct {
	VectorizerPath string
	ClassifierPath string
	Err            error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model artifacts: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one prediction. Probabilities and confidence are
// percentages rounded to two decimals. When Label is LabelError only Error is
// meaningful.
type Outcome struct {
	Label           Label   `json:"label"`
	Confidence      float64 `json:"confidence"`
	FakeProbability float64 `json:"fake_probability"`
	RealProbability float64 `json:"real_probability"`
	WordCount       int     `json:"word_count"`
	Threshold       float64 `json:"threshold"`
	Uncertain       bool    `json:"uncertain"`
	Error           string  `json:"error,omitempty"`
}

// IsError reports whether the outcome carries an error instead of a label.
func (o Outcome) IsError() bool {
	return o.Label == LabelError
}

// Err returns the outcome's error, matching ErrEmptyInput and
// ErrModelNotLoaded where applicable.
func (o Outcome) Err() error {
	if !o.IsError() {
		return nil
	}
	switch o.Error {
	case ErrEmptyInput.Error():
		return ErrEmptyInput
	case ErrModelNotLoaded.Error():
		return ErrModelNotLoaded
	default:
		return errors.New(o.Error)
	}
}

func errorOutcome(msg string) Outcome {
	return Outcome{Label: LabelError, Error: msg}
}

// Predictor is anything that can score text.
type Predictor interface {
	Predict(text string) Outcome
	Loaded() bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the default threshold policy.
func WithPolicy(p ThresholdPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// Engine owns a vectorizer/classifier pair. It is never mutated after
// construction and may be shared between goroutines.
type Engine struct {
	vectorizer model.Vectorizer
	classifier model.Classifier
	policy     ThresholdPolicy
	loadErr    error
}

// New builds a loaded engine. A nil vectorizer or classifier yields an
// unloaded engine.
func New(vectorizer model.Vectorizer, classifier model.Classifier, opts ...Option) *Engine {
	e := &Engine{
		vectorizer: vectorizer,
		classifier: classifier,
		policy:     DefaultPolicy(),
	}
	if vectorizer == nil || classifier == nil {
		e.vectorizer, e.classifier = nil, nil
		e.loadErr = ErrModelNotLoaded
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads the artifacts at the given paths. On failure it returns an
// unloaded engine together with a *LoadError; the engine still answers every
// Predict call, with a "model not loaded" outcome.
func Load(vectorizerPath, classifierPath string, opts ...Option) (*Engine, error) {
	artifact, err := model.LoadArtifact(vectorizerPath, classifierPath)
	if err != nil {
		loadErr := &LoadError{VectorizerPath: vectorizerPath, ClassifierPath: classifierPath, Err: err}
		e := New(nil, nil, opts...)
		e.loadErr = loadErr
		return e, loadErr
	}
	return New(artifact.Vectorizer, artifact.Classifier, opts...), nil
}

// Loaded reports whether the engine can make predictions.
func (e *Engine) Loaded() bool {
	return e.vectorizer != nil && e.classifier != nil
}

// LoadErr returns why the engine is unloaded, or nil.
func (e *Engine) LoadErr() error {
	return e.loadErr
}

// Dim returns the feature dimension of the loaded vectorizer, or 0.
func (e *Engine) Dim() int {
	if !e.Loaded() {
		return 0
	}
	return e.vectorizer.Dim()
}

// Policy returns the active threshold policy.
func (e *Engine) Policy() ThresholdPolicy {
	return e.policy
}

// Predict scores text. It always returns an Outcome and never panics.
func (e *Engine) Predict(text string) (out Outcome) {
	if !e.Loaded() {
		return errorOutcome(ErrModelNotLoaded.Error())
	}

	cleaned := textnorm.Normalize(text)
	if cleaned == "" {
		return errorOutcome(ErrEmptyInput.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			out = errorOutcome(fmt.Sprintf("prediction failed: %v", r))
		}
	}()

	vec := e.vectorizer.Transform(cleaned)
	pFake, pReal, err := e.classifier.PredictProba(vec)
	if err != nil {
		return errorOutcome(err.Error())
	}
	if invalidProbability(pFake) || invalidProbability(pReal) || math.Abs(pFake+pReal-1) > 1e-6 {
		return errorOutcome(fmt.Sprintf("classifier returned invalid probabilities (%v, %v)", pFake, pReal))
	}

	words := textnorm.WordCount(cleaned)
	d := e.policy.Decide(pFake, pReal, words)

	return Outcome{
		Label:           d.Label,
		Confidence:      percent(d.Confidence),
		FakeProbability: percent(pFake),
		RealProbability: percent(pReal),
		WordCount:       words,
		Threshold:       d.Threshold,
		Uncertain:       d.Uncertain,
	}
}

func invalidProbability(p float64) bool {
	return math.IsNaN(p) || p < 0 || p > 1
}

// percent converts a probability to a percentage rounded to two decimals.
func percent(p float64) float64 {
	return math.Round(p*10000) / 100
}
