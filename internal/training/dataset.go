// Package training fits the vectorizer and classifier artifacts from a
// labelled news corpus.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/NullMeDev/factlens/internal/model"
	"github.com/NullMeDev/factlens/internal/textnorm"
)

// Sample is one labelled, already-cleaned document.
type Sample struct {
	Text  string
	Label int
}

// ReadCSV reads a news CSV with a header row. When both title and text
// columns exist they are joined with a space; otherwise the text column alone
// is used. Every row gets the given label.
func ReadCSV(r io.Reader, label int) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	titleCol, textCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "title":
			titleCol = i
		case "text":
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, errors.New("csv has no text column")
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(samples)+2, err)
		}

		text := field(record, textCol)
		if titleCol >= 0 {
			text = field(record, titleCol) + " " + text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		samples = append(samples, Sample{Text: text, Label: label})
	}
	return samples, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

// LoadDataset reads the fake and real CSV files, cleans every document and
// drops the ones left empty by cleaning.
func LoadDataset(fakePath, realPath string) ([]Sample, error) {
	var all []Sample
	for _, src := range []struct {
		path  string
		label int
	}{
		{fakePath, model.ClassFake},
		{realPath, model.ClassReal},
	} {
		f, err := os.Open(src.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset: %w", err)
		}
		samples, err := ReadCSV(f, src.label)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.path, err)
		}
		all = append(all, samples...)
	}

	cleaned := all[:0]
	for _, s := range all {
		s.Text = textnorm.Normalize(s.Text)
		if s.Text != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned, nil
}

// Shuffle permutes samples in place, deterministically for a given seed.
func Shuffle(samples []Sample, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
}

// StratifiedSplit holds out testFraction of every class for evaluation.
// Relative order within each side follows the input order.
func StratifiedSplit(samples []Sample, testFraction float64) (train, test []Sample, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v must be between 0 and 1", testFraction)
	}

	perClass := map[int]int{}
	for _, s := range samples {
		perClass[s.Label]++
	}
	quota := map[int]int{}
	for label, n := range perClass {
		quota[label] = int(math.Round(float64(n) * testFraction))
	}

	for _, s := range samples {
		if quota[s.Label] > 0 {
			quota[s.Label]--
			test = append(test, s)
			continue
		}
		train = append(train, s)
	}
	return train, test, nil
}

// Counts returns the number of fake and real samples.
func Counts(samples []Sample) (fakes, reals int) {
	for _, s := range samples {
		if s.Label == model.ClassReal {
			reals++
		} else {
			fakes++
		}
	}
	return fakes, reals
}
