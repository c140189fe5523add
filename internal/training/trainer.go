package training

import (
	"context"
	"fmt"
	"time"

	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/model"
)

// Config describes one training run.
type Config struct {
	FakePath string `yaml:"fake_path"`
	RealPath string `yaml:"real_path"`

	VectorizerOut string `yaml:"vectorizer_out"`
	ClassifierOut string `yaml:"classifier_out"`

	TestSize float64 `yaml:"test_size"`
	Seed     int64   `yaml:"seed"`

	Vectorizer VectorizerParams `yaml:"vectorizer"`
	Logistic   LogisticParams   `yaml:"logistic"`
}

// DefaultConfig returns the settings the shipped model was trained with: a
// deliberately small unigram vocabulary and heavy regularization.
func DefaultConfig() Config {
	return Config{
		FakePath:      "data/raw/Fake.csv",
		RealPath:      "data/raw/True.csv",
		VectorizerOut: "model/vectorizer.json",
		ClassifierOut: "model/classifier.json",
		TestSize:      0.2,
		Seed:          42,
		Vectorizer: VectorizerParams{
			MaxFeatures: 20,
			MinDF:       30,
			MaxDF:       0.3,
			NgramMin:    1,
			NgramMax:    1,
		},
		Logistic: LogisticParams{
			C:       0.0005,
			MaxIter: 100,
			Tol:     1e-4,
		},
	}
}

// Result is a fitted artifact plus its held-out evaluation.
type Result struct {
	Artifact     *model.Artifact
	Report       Report
	TrainSamples int
	TestSamples  int
	Features     int
	Elapsed      time.Duration
}

// Train fits on samples that are already cleaned and labelled.
func Train(ctx context.Context, samples []Sample, cfg Config, log *logging.Logger) (*Result, error) {
	start := time.Now()

	ordered := append([]Sample(nil), samples...)
	Shuffle(ordered, cfg.Seed)
	train, test, err := StratifiedSplit(ordered, cfg.TestSize)
	if err != nil {
		return nil, err
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("split produced %d training and %d test samples", len(train), len(test))
	}
	log.Info("Split %d samples into %d train / %d test", len(ordered), len(train), len(test))

	docs := make([]string, len(train))
	for i, s := range train {
		docs[i] = s.Text
	}
	vec, err := FitVectorizer(docs, cfg.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to fit vectorizer: %w", err)
	}
	log.Info("Fitted vectorizer with %d features", vec.Dim())

	Xtrain, ytrain := vectorize(vec, train)
	clf, err := FitLogistic(ctx, Xtrain, ytrain, vec.Dim(), cfg.Logistic)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}

	Xtest, ytest := vectorize(vec, test)
	report, err := Evaluate(clf, Xtest, ytest)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate classifier: %w", err)
	}
	log.Info("Held-out accuracy %.2f%%", report.Accuracy*100)

	return &Result{
		Artifact:     &model.Artifact{Vectorizer: vec, Classifier: clf},
		Report:       report,
		TrainSamples: len(train),
		TestSamples:  len(test),
		Features:     vec.Dim(),
		Elapsed:      time.Since(start),
	}, nil
}

// Run loads the CSV files named in cfg, trains, and writes both artifacts.
func Run(ctx context.Context, cfg Config, log *logging.Logger) (*Result, error) {
	samples, err := LoadDataset(cfg.FakePath, cfg.RealPath)
	if err != nil {
		return nil, err
	}
	fakes, reals := Counts(samples)
	log.Info("Loaded %d articles (%d fake, %d real)", len(samples), fakes, reals)

	result, err := Train(ctx, samples, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := result.Artifact.Save(cfg.VectorizerOut, cfg.ClassifierOut); err != nil {
		return nil, fmt.Errorf("failed to save artifacts: %w", err)
	}
	log.Info("Saved vectorizer to %s and classifier to %s", cfg.VectorizerOut, cfg.ClassifierOut)
	return result, nil
}

func vectorize(v model.Vectorizer, samples []Sample) ([]model.FeatureVector, []int) {
	X := make([]model.FeatureVector, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		X[i] = v.Transform(s.Text)
		y[i] = s.Label
	}
	return X, y
}
