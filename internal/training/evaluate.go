package training

import (
	"fmt"
	"strings"

	"github.com/NullMeDev/factlens/internal/model"
)

// ClassMetrics are the per-class scores of a classification report.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes held-out performance. Confusion is indexed [true][predicted].
type Report struct {
	Samples   int             `json:"samples"`
	Accuracy  float64         `json:"accuracy"`
	Classes   [2]ClassMetrics `json:"classes"`
	Confusion [2][2]int       `json:"confusion"`
}

// Evaluate scores a classifier on labelled vectors. A sample is predicted
// Real when pReal exceeds one half.
func Evaluate(clf model.Classifier, X []model.FeatureVector, y []int) (Report, error) {
	var r Report
	if len(X) != len(y) {
		return r, fmt.Errorf("got %d vectors and %d labels", len(X), len(y))
	}

	for i, x := range X {
		_, pReal, err := clf.PredictProba(x)
		if err != nil {
			return r, fmt.Errorf("sample %d: %w", i, err)
		}
		pred := model.ClassFake
		if pReal > 0.5 {
			pred = model.ClassReal
		}
		r.Confusion[y[i]][pred]++
	}

	r.Samples = len(X)
	if r.Samples > 0 {
		r.Accuracy = float64(r.Confusion[0][0]+r.Confusion[1][1]) / float64(r.Samples)
	}

	for c, label := range []string{"Fake", "Real"} {
		tp := r.Confusion[c][c]
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		actual := r.Confusion[c][0] + r.Confusion[c][1]

		m := ClassMetrics{Label: label, Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
	}
	return r, nil
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %.2f%%\n\n", r.Accuracy*100)
	fmt.Fprintf(&b, "%-8s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%-8s %10.2f %10.2f %10.2f %10d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\nConfusion matrix (rows true, columns predicted):\n")
	fmt.Fprintf(&b, "[[%d %d]\n [%d %d]]\n", r.Confusion[0][0], r.Confusion[0][1], r.Confusion[1][0], r.Confusion[1][1])
	return b.String()
}
