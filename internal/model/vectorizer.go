package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Vectorizer maps cleaned text to a feature vector.
type Vectorizer interface {
	Transform(cleaned string) FeatureVector
	Dim() int
}

// Norm names the row normalization applied after weighting.
const (
	NormL2   = "l2"
	NormL1   = "l1"
	NormNone = ""
)

// tokenPattern keeps runs of two or more letters, digits or underscores,
// the same tokens scikit-learn's default token_pattern produces.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize splits cleaned text into vectorizer tokens.
func Tokenize(cleaned string) []string {
	return tokenPattern.FindAllString(cleaned, -1)
}

// NGrams expands tokens into space-joined n-grams for n in [minN, maxN].
func NGrams(tokens []string, minN, maxN int) []string {
	if minN == 1 && maxN == 1 {
		return tokens
	}
	var out []string
	for n := minN; n <= maxN; n++ {
		if n == 1 {
			out = append(out, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// TFIDFVectorizer is a fitted term-frequency / inverse-document-frequency
// vectorizer. It is immutable once loaded.
type TFIDFVectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	NgramMin    int            `json:"ngram_min"`
	NgramMax    int            `json:"ngram_max"`
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm"`
}

// Dim returns the vocabulary size.
func (v *TFIDFVectorizer) Dim() int {
	return len(v.IDF)
}

// Validate checks that the fitted state is internally consistent.
func (v *TFIDFVectorizer) Validate() error {
	if len(v.Vocabulary) == 0 {
		return errors.New("vectorizer vocabulary is empty")
	}
	if len(v.IDF) != len(v.Vocabulary) {
		return fmt.Errorf("vectorizer has %d idf weights for %d terms", len(v.IDF), len(v.Vocabulary))
	}
	if v.NgramMin < 1 || v.NgramMax < v.NgramMin {
		return fmt.Errorf("invalid ngram range (%d, %d)", v.NgramMin, v.NgramMax)
	}
	switch v.Norm {
	case NormL2, NormL1, NormNone:
	default:
		return fmt.Errorf("unknown norm %q", v.Norm)
	}

	seen := make([]bool, len(v.IDF))
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return fmt.Errorf("term %q has out of range index %d", term, idx)
		}
		if seen[idx] {
			return fmt.Errorf("index %d assigned to more than one term", idx)
		}
		seen[idx] = true
	}
	for i, w := range v.IDF {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("idf weight %d is not finite", i)
		}
	}
	return nil
}

// Transform vectorizes cleaned text. Terms outside the fitted vocabulary are
// ignored, so text made only of unknown words yields an all-zero vector.
func (v *TFIDFVectorizer) Transform(cleaned string) FeatureVector {
	vec := NewFeatureVector(v.Dim())

	for _, term := range NGrams(Tokenize(cleaned), v.NgramMin, v.NgramMax) {
		if idx, ok := v.Vocabulary[term]; ok {
			vec.Weights[idx]++
		}
	}

	for idx, tf := range vec.Weights {
		if v.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		vec.Weights[idx] = tf * v.IDF[idx]
	}

	normalize(vec, v.Norm)
	return vec
}

func normalize(vec FeatureVector, norm string) {
	var total float64
	switch norm {
	case NormL2:
		total = vec.Norm()
	case NormL1:
		for _, w := range vec.Weights {
			total += math.Abs(w)
		}
	default:
		return
	}
	if total == 0 {
		return
	}
	for idx, w := range vec.Weights {
		vec.Weights[idx] = w / total
	}
}
