package model

import (
	"errors"
	"fmt"
	"math"
)

// Class labels as encoded by the training job.
const (
	ClassFake = 0
	ClassReal = 1
)

// Classifier turns a feature vector into class probabilities.
type Classifier interface {
	PredictProba(v FeatureVector) (pFake, pReal float64, err error)
}

// LogisticClassifier is a binary logistic regression. Classes lists the label
// of the negative and positive class, in that order.
type LogisticClassifier struct {
	Classes   []int     `json:"classes"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Dim returns the number of weights.
func (c *LogisticClassifier) Dim() int {
	return len(c.Coef)
}

// Validate checks the learned parameters.
func (c *LogisticClassifier) Validate() error {
	if len(c.Classes) != 2 {
		return fmt.Errorf("classifier must have exactly 2 classes, got %d", len(c.Classes))
	}
	if !((c.Classes[0] == ClassFake && c.Classes[1] == ClassReal) ||
		(c.Classes[0] == ClassReal && c.Classes[1] == ClassFake)) {
		return fmt.Errorf("classifier classes %v are not {fake, real}", c.Classes)
	}
	if len(c.Coef) == 0 {
		return errors.New("classifier has no weights")
	}
	for i, w := range c.Coef {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is not finite", i)
		}
	}
	if math.IsNaN(c.Intercept) || math.IsInf(c.Intercept, 0) {
		return errors.New("intercept is not finite")
	}
	return nil
}

// DecisionFunction returns w·x + b.
func (c *LogisticClassifier) DecisionFunction(v FeatureVector) (float64, error) {
	if v.Dim != len(c.Coef) {
		return 0, fmt.Errorf("feature vector has dimension %d, classifier expects %d", v.Dim, len(c.Coef))
	}
	for i := range v.Weights {
		if i < 0 || i >= len(c.Coef) {
			return 0, fmt.Errorf("feature index %d out of range", i)
		}
	}
	return v.Dot(c.Coef) + c.Intercept, nil
}

// PredictProba returns the fake and real probabilities; they sum to 1.
func (c *LogisticClassifier) PredictProba(v FeatureVector) (float64, float64, error) {
	z, err := c.DecisionFunction(v)
	if err != nil {
		return 0, 0, err
	}
	pPositive := Sigmoid(z)
	if c.Classes[1] == ClassReal {
		return 1 - pPositive, pPositive, nil
	}
	return pPositive, 1 - pPositive, nil
}

// Sigmoid is the logistic function, evaluated without overflow for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
