package predict

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/model"
)

const (
	testVectorizer = "testdata/vectorizer.json"
	testClassifier = "testdata/classifier.json"
)

// stubVectorizer maps every text to the same one-dimensional vector.
type stubVectorizer struct{}

func (stubVectorizer) Transform(string) model.FeatureVector { return model.NewFeatureVector(1) }
func (stubVectorizer) Dim() int                            { return 1 }

// stubClassifier returns a fixed probability pair.
type stubClassifier struct {
	pFake float64
	err   error
	panic bool
}

func (s stubClassifier) PredictProba(model.FeatureVector) (float64, float64, error) {
	if s.panic {
		panic("corrupted weights")
	}
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.pFake, 1 - s.pFake, nil
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func loadTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Load(testVectorizer, testClassifier)
	require.NoError(t, err)
	require.True(t, e.Loaded())
	return e
}

func TestPredictEndToEnd(t *testing.T) {
	e := loadTestEngine(t)

	tests := []struct {
		name string
		text string
		want Label
	}{
		{
			name: "sensational claim",
			text: "BREAKING: Scientists discover cure for all diseases using magic crystals!",
			want: LabelFake,
		},
		{
			name: "market report",
			text: "Stock markets showed mixed results today as investors weighed economic data",
			want: LabelReal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Predict(tt.text)
			require.False(t, out.IsError(), out.Error)
			assert.Equal(t, tt.want, out.Label)
			assert.False(t, out.Uncertain)
			assert.Equal(t, 0.85, out.Threshold)
			assert.Greater(t, out.Confidence, 85.0)
			assert.InDelta(t, 100.0, out.FakeProbability+out.RealProbability, 0.011)
		})
	}
}

func TestPredictEmptyAfterCleaning(t *testing.T) {
	e := loadTestEngine(t)

	for _, text := range []string{"", "   123 https://x.com ", "\n\t", "www.example.com 42"} {
		out := e.Predict(text)
		assert.Equal(t, LabelError, out.Label, "input %q", text)
		assert.Equal(t, "text is empty after cleaning", out.Error)
		assert.ErrorIs(t, out.Err(), ErrEmptyInput)
	}
}

func TestPredictUnknownWordsStillScores(t *testing.T) {
	e := loadTestEngine(t)

	// nothing in the vocabulary: all-zero vector, intercept only, p = 0.5
	out := e.Predict("the quick brown fox jumps over the lazy dog")
	require.False(t, out.IsError())
	assert.Equal(t, LabelReal, out.Label)
	assert.True(t, out.Uncertain)
	assert.Equal(t, 51.0, out.Confidence)
	assert.Equal(t, 50.0, out.FakeProbability)
	assert.Equal(t, 50.0, out.RealProbability)
}

func TestPredictProbabilitiesSumToOne(t *testing.T) {
	e := loadTestEngine(t)

	texts := []string{
		"shocking magic cure",
		"officials released economic data",
		"breaking stock markets crash as investors discover magic crystals",
		strings.Repeat("economic results shocking ", 60),
	}
	for _, text := range texts {
		out := e.Predict(text)
		require.False(t, out.IsError())
		assert.InDelta(t, 100.0, out.FakeProbability+out.RealProbability, 0.011, text)
		assert.GreaterOrEqual(t, out.Confidence, 0.0)
		assert.LessOrEqual(t, out.Confidence, 100.0)
	}
}

func TestThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name          string
		pFake         float64
		words         int
		wantLabel     Label
		wantThreshold float64
		wantConf      float64
		wantUncertain bool
	}{
		{"29 words uses 0.85", 0.80, 29, LabelReal, 0.85, 51.0, true},
		{"30 words uses 0.75", 0.80, 30, LabelFake, 0.75, 80.0, false},
		{"149 words uses 0.75", 0.70, 149, LabelReal, 0.75, 51.0, true},
		{"150 words uses 0.65", 0.70, 150, LabelFake, 0.65, 70.0, false},
		{"confident real short", 0.10, 5, LabelReal, 0.85, 90.0, false},
		{"confident fake short", 0.90, 5, LabelFake, 0.85, 90.0, false},
		{"exactly at threshold is not enough", 0.85, 10, LabelReal, 0.85, 51.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(stubVectorizer{}, stubClassifier{pFake: tt.pFake})
			out := e.Predict(words(tt.words))

			require.False(t, out.IsError(), out.Error)
			assert.Equal(t, tt.words, out.WordCount)
			assert.Equal(t, tt.wantThreshold, out.Threshold)
			assert.Equal(t, tt.wantLabel, out.Label)
			assert.Equal(t, tt.wantConf, out.Confidence)
			assert.Equal(t, tt.wantUncertain, out.Uncertain)
		})
	}
}

func TestUncertainZoneDefaultsToReal(t *testing.T) {
	for _, pFake := range []float64{0.5, 0.6, 0.3, 0.49} {
		e := New(stubVectorizer{}, stubClassifier{pFake: pFake})
		out := e.Predict(words(10))

		assert.Equal(t, LabelReal, out.Label)
		assert.True(t, out.Uncertain)
		assert.GreaterOrEqual(t, out.Confidence, 51.0)
	}

	// pReal above the floor is reported as-is
	e := New(stubVectorizer{}, stubClassifier{pFake: 0.3})
	assert.Equal(t, 70.0, e.Predict(words(10)).Confidence)
}

func TestPredictRounding(t *testing.T) {
	e := New(stubVectorizer{}, stubClassifier{pFake: 0.123456})
	out := e.Predict(words(40))

	assert.Equal(t, 12.35, out.FakeProbability)
	assert.Equal(t, 87.65, out.RealProbability)
	assert.Equal(t, 87.65, out.Confidence)
}

func TestPredictFailuresBecomeOutcomes(t *testing.T) {
	t.Run("classifier error", func(t *testing.T) {
		e := New(stubVectorizer{}, stubClassifier{err: errors.New("dimension mismatch")})
		out := e.Predict("some text")
		assert.Equal(t, LabelError, out.Label)
		assert.Equal(t, "dimension mismatch", out.Error)
	})

	t.Run("classifier panic", func(t *testing.T) {
		e := New(stubVectorizer{}, stubClassifier{panic: true})
		var out Outcome
		assert.NotPanics(t, func() { out = e.Predict("some text") })
		assert.Equal(t, LabelError, out.Label)
		assert.Contains(t, out.Error, "corrupted weights")
	})

	t.Run("invalid probabilities", func(t *testing.T) {
		e := New(stubVectorizer{}, stubClassifier{pFake: 1.5})
		out := e.Predict("some text")
		assert.Equal(t, LabelError, out.Label)
		assert.Contains(t, out.Error, "invalid probabilities")
	})
}

func TestLoadMissingArtifact(t *testing.T) {
	e, err := Load("testdata/does-not-exist.json", testClassifier)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "testdata/does-not-exist.json", loadErr.VectorizerPath)

	require.NotNil(t, e)
	assert.False(t, e.Loaded())
	assert.Equal(t, 0, e.Dim())
	assert.Equal(t, err, e.LoadErr())

	for _, text := range []string{"", "Stock markets rose", "BREAKING magic"} {
		var out Outcome
		assert.NotPanics(t, func() { out = e.Predict(text) })
		assert.Equal(t, LabelError, out.Label)
		assert.Equal(t, "model not loaded", out.Error)
		assert.ErrorIs(t, out.Err(), ErrModelNotLoaded)
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	e, err := Load("testdata/corrupt.json", testClassifier)
	require.Error(t, err)
	assert.False(t, e.Loaded())
	assert.Equal(t, LabelError, e.Predict("anything").Label)
}

func TestEnginesAreIndependent(t *testing.T) {
	loaded := loadTestEngine(t)
	unloaded, _ := Load("testdata/missing.json", "testdata/missing.json")
	stubbed := New(stubVectorizer{}, stubClassifier{pFake: 0.95})

	assert.Equal(t, LabelFake, loaded.Predict("shocking magic crystals cure").Label)
	assert.Equal(t, LabelError, unloaded.Predict("shocking magic crystals cure").Label)
	assert.Equal(t, LabelFake, stubbed.Predict("stock markets").Label)
	assert.Equal(t, 14, loaded.Dim())
}

func TestWithPolicy(t *testing.T) {
	strict := ThresholdPolicy{Buckets: []Bucket{{MinWords: 0, Threshold: 0.99}}, UncertainFloor: 0.6}
	e := New(stubVectorizer{}, stubClassifier{pFake: 0.95}, WithPolicy(strict))

	out := e.Predict(words(200))
	assert.Equal(t, LabelReal, out.Label)
	assert.Equal(t, 60.0, out.Confidence)
	assert.Equal(t, 0.99, out.Threshold)
}

func TestConcurrentPredict(t *testing.T) {
	e := loadTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := e.Predict("Stock markets showed mixed results today as investors weighed economic data")
			assert.Equal(t, LabelReal, out.Label)
		}()
	}
	wg.Wait()
}

func TestLazyLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	lazy := NewLazyFunc(func() (*Engine, error) {
		calls.Add(1)
		return Load(testVectorizer, testClassifier)
	})
	assert.Equal(t, int32(0), calls.Load())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, LabelFake, lazy.Predict("magic crystals cure diseases").Label)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, lazy.Loaded())
}

func TestLazyMemoizesFailure(t *testing.T) {
	var calls atomic.Int32
	lazy := NewLazyFunc(func() (*Engine, error) {
		calls.Add(1)
		return nil, errors.New("disk unavailable")
	})

	assert.Equal(t, "model not loaded", lazy.Predict("text").Error)
	assert.Equal(t, "model not loaded", lazy.Predict("text").Error)
	_, err := lazy.Engine()
	assert.EqualError(t, err, "disk unavailable")
	assert.False(t, lazy.Loaded())
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewLazyFromPaths(t *testing.T) {
	lazy := NewLazy(testVectorizer, testClassifier)
	assert.True(t, lazy.Loaded())

	var _ Predictor = lazy
	var _ Predictor = &Engine{}
}
