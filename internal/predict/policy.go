package predict

import "sort"

// Bucket applies Threshold to texts with at least MinWords cleaned words.
type Bucket struct {
	MinWords  int     `yaml:"min_words" json:"min_words"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// ThresholdPolicy turns class probabilities into a label. Short texts carry
// little bag-of-words evidence, so they need a higher probability before a
// label is considered confident.
type ThresholdPolicy struct {
	Buckets []Bucket
	// UncertainFloor is the confidence reported when neither class clears the
	// threshold and the result falls back to Real.
	UncertainFloor float64
}

// DefaultPolicy is the policy the shipped model was tuned for.
func DefaultPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		Buckets: []Bucket{
			{MinWords: 0, Threshold: 0.85},
			{MinWords: 30, Threshold: 0.75},
			{MinWords: 150, Threshold: 0.65},
		},
		UncertainFloor: 0.51,
	}
}

// Threshold returns the threshold for a text of the given word count.
func (p ThresholdPolicy) Threshold(words int) float64 {
	buckets := append([]Bucket(nil), p.Buckets...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MinWords < buckets[j].MinWords })

	threshold := 0.5
	for _, b := range buckets {
		if words >= b.MinWords {
			threshold = b.Threshold
		}
	}
	return threshold
}

// Decision is the outcome of applying the policy to one probability pair.
type Decision struct {
	Label      Label
	Confidence float64
	Threshold  float64
	Uncertain  bool
}

// Decide labels a probability pair. When neither side clears the threshold
// the result is Real with at least UncertainFloor confidence, which keeps
// ambiguous text from being flagged as fake.
func (p ThresholdPolicy) Decide(pFake, pReal float64, words int) Decision {
	t := p.Threshold(words)

	switch {
	case pReal > t:
		return Decision{Label: LabelReal, Confidence: pReal, Threshold: t}
	case pFake > t:
		return Decision{Label: LabelFake, Confidence: pFake, Threshold: t}
	default:
		conf := pReal
		if conf < p.UncertainFloor {
			conf = p.UncertainFloor
		}
		return Decision{Label: LabelReal, Confidence: conf, Threshold: t, Uncertain: true}
	}
}
