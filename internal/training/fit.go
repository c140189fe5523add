package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/NullMeDev/factlens/internal/model"
)

// VectorizerParams controls vocabulary selection.
type VectorizerParams struct {
	// MaxFeatures keeps only the most frequent terms; 0 keeps all.
	MaxFeatures int `yaml:"max_features"`
	// MinDF drops terms found in fewer documents than this.
	MinDF int `yaml:"min_df"`
	// MaxDF drops terms found in more than this fraction of documents.
	MaxDF       float64 `yaml:"max_df"`
	NgramMin    int     `yaml:"ngram_min"`
	NgramMax    int     `yaml:"ngram_max"`
	SublinearTF bool    `yaml:"sublinear_tf"`
}

// FitVectorizer learns a vocabulary and smoothed IDF weights from cleaned
// documents. Vocabulary indices follow the alphabetical order of the terms.
func FitVectorizer(docs []string, p VectorizerParams) (*model.TFIDFVectorizer, error) {
	if len(docs) == 0 {
		return nil, errors.New("no documents to fit")
	}
	if p.NgramMin < 1 {
		p.NgramMin = 1
	}
	if p.NgramMax < p.NgramMin {
		p.NgramMax = p.NgramMin
	}
	if p.MaxDF <= 0 || p.MaxDF > 1 {
		p.MaxDF = 1
	}
	if p.MinDF < 1 {
		p.MinDF = 1
	}

	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range model.NGrams(model.Tokenize(doc), p.NgramMin, p.NgramMax) {
			tf[term]++
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	n := len(docs)
	maxCount := p.MaxDF * float64(n)
	if maxCount < float64(p.MinDF) {
		return nil, fmt.Errorf("max_df %.2f of %d documents is below min_df %d", p.MaxDF, n, p.MinDF)
	}

	var terms []string
	for term, count := range df {
		if count >= p.MinDF && float64(count) <= maxCount {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil, errors.New("no terms remain after document-frequency pruning; lower min_df or raise max_df")
	}

	if p.MaxFeatures > 0 && len(terms) > p.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:p.MaxFeatures]
	}
	sort.Strings(terms)

	v := &model.TFIDFVectorizer{
		Vocabulary:  make(map[string]int, len(terms)),
		IDF:         make([]float64, len(terms)),
		NgramMin:    p.NgramMin,
		NgramMax:    p.NgramMax,
		SublinearTF: p.SublinearTF,
		Norm:        model.NormL2,
	}
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	return v, nil
}

// LogisticParams controls the classifier fit.
type LogisticParams struct {
	// C is the inverse regularization strength.
	C       float64 `yaml:"c"`
	MaxIter int     `yaml:"max_iter"`
	// Tol stops early once the gradient norm falls below it.
	Tol float64 `yaml:"tol"`
}

// FitLogistic minimizes ½‖w‖² + C·Σ logloss with full-batch gradient descent.
// The step size is the inverse of the loss's Lipschitz bound, so the
// objective never increases and the result is deterministic.
func FitLogistic(ctx context.Context, X []model.FeatureVector, y []int, dim int, p LogisticParams) (*model.LogisticClassifier, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("got %d vectors and %d labels", len(X), len(y))
	}
	if p.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", p.C)
	}
	if p.MaxIter <= 0 {
		return nil, fmt.Errorf("max_iter must be positive, got %d", p.MaxIter)
	}

	var hasFake, hasReal bool
	var maxSq float64
	indices := make([][]int, len(X))
	for i, x := range X {
		switch y[i] {
		case model.ClassFake:
			hasFake = true
		case model.ClassReal:
			hasReal = true
		default:
			return nil, fmt.Errorf("sample %d has unknown label %d", i, y[i])
		}
		if x.Dim != dim {
			return nil, fmt.Errorf("sample %d has dimension %d, want %d", i, x.Dim, dim)
		}
		if n := x.Norm(); n*n > maxSq {
			maxSq = n * n
		}
		indices[i] = x.Indices()
	}
	if !hasFake || !hasReal {
		return nil, errors.New("training data must contain both classes")
	}

	// gradient of the logloss is Lipschitz with constant C·n·max‖x‖²/4 (+1 for bias)
	lipschitz := 1 + p.C*float64(len(X))*(maxSq+1)/4
	step := 1 / lipschitz

	w := make([]float64, dim)
	var b float64
	grad := make([]float64, dim)

	for iter := 0; iter < p.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		copy(grad, w)
		var gradB float64
		for i, x := range X {
			z := x.Dot(w) + b
			r := p.C * (model.Sigmoid(z) - float64(y[i]))
			for _, idx := range indices[i] {
				grad[idx] += r * x.Weights[idx]
			}
			gradB += r
		}

		norm := gradB * gradB
		for _, g := range grad {
			norm += g * g
		}
		if math.Sqrt(norm) < p.Tol {
			break
		}

		for j := range w {
			w[j] -= step * grad[j]
		}
		b -= step * gradB
	}

	return &model.LogisticClassifier{
		Classes:   []int{model.ClassFake, model.ClassReal},
		Coef:      w,
		Intercept: b,
	}, nil
}
