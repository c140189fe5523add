package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact kinds written into the file header.
const (
	KindVectorizer = "tfidf_vectorizer"
	KindClassifier = "logistic_classifier"

	FormatVersion = 1
)

type vectorizerFile struct {
	Kind       string           `json:"kind"`
	Version    int              `json:"version"`
	Vectorizer *TFIDFVectorizer `json:"vectorizer"`
}

type classifierFile struct {
	Kind       string              `json:"kind"`
	Version    int                 `json:"version"`
	Classifier *LogisticClassifier `json:"classifier"`
}

// Artifact is the immutable vectorizer/classifier pair produced by training.
type Artifact struct {
	Vectorizer *TFIDFVectorizer
	Classifier *LogisticClassifier
}

// LoadArtifact reads both files and checks that their dimensions agree.
func LoadArtifact(vectorizerPath, classifierPath string) (*Artifact, error) {
	vec, err := LoadVectorizer(vectorizerPath)
	if err != nil {
		return nil, err
	}
	clf, err := LoadClassifier(classifierPath)
	if err != nil {
		return nil, err
	}
	if vec.Dim() != clf.Dim() {
		return nil, fmt.Errorf("vectorizer has %d features but classifier has %d weights", vec.Dim(), clf.Dim())
	}
	return &Artifact{Vectorizer: vec, Classifier: clf}, nil
}

// Save writes both artifacts.
func (a *Artifact) Save(vectorizerPath, classifierPath string) error {
	if err := SaveVectorizer(vectorizerPath, a.Vectorizer); err != nil {
		return err
	}
	return SaveClassifier(classifierPath, a.Classifier)
}

// LoadVectorizer reads a vectorizer artifact.
func LoadVectorizer(path string) (*TFIDFVectorizer, error) {
	var f vectorizerFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	if err := checkHeader(path, f.Kind, KindVectorizer, f.Version); err != nil {
		return nil, err
	}
	if f.Vectorizer == nil {
		return nil, fmt.Errorf("%s: missing vectorizer body", path)
	}
	if err := f.Vectorizer.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Vectorizer, nil
}

// LoadClassifier reads a classifier artifact.
func LoadClassifier(path string) (*LogisticClassifier, error) {
	var f classifierFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	if err := checkHeader(path, f.Kind, KindClassifier, f.Version); err != nil {
		return nil, err
	}
	if f.Classifier == nil {
		return nil, fmt.Errorf("%s: missing classifier body", path)
	}
	if err := f.Classifier.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Classifier, nil
}

// SaveVectorizer writes a vectorizer artifact.
func SaveVectorizer(path string, v *TFIDFVectorizer) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid vectorizer: %w", err)
	}
	return writeJSON(path, vectorizerFile{Kind: KindVectorizer, Version: FormatVersion, Vectorizer: v})
}

// SaveClassifier writes a classifier artifact.
func SaveClassifier(path string, c *LogisticClassifier) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid classifier: %w", err)
	}
	return writeJSON(path, classifierFile{Kind: KindClassifier, Version: FormatVersion, Classifier: c})
}

func checkHeader(path, kind, wantKind string, version int) error {
	if kind != wantKind {
		return fmt.Errorf("%s: artifact kind is %q, want %q", path, kind, wantKind)
	}
	if version != FormatVersion {
		return fmt.Errorf("%s: unsupported artifact version %d", path, version)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return nil
}

// writeJSON writes through a temp file so a reader never sees a partial artifact.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
