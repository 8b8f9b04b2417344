// Package model persists a trained classifier together with its label map and
// loads them back as a recognition session.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/google/uuid"

	"github.com/amirhossein5/facecheck/internal/lbph"
)

const (
	ClassifierFile = "recognizer.yml"
	LabelMapFile   = "label_map.json"

	currentLink = "current"
)

var ErrModelUnavailable = errors.New("trained model unavailable")

// Session is a loaded, immutable classifier and the label map it was trained
// with.
type Session struct {
	Classifier *lbph.Model
	Labels     *LabelMap
	Version    string
}

// Predict classifies img and maps the winning label to a subject identifier.
// ok is false when the label is not in the map.
func (s *Session) Predict(img *image.Gray) (subject string, distance float64, ok bool, err error) {
	label, distance, err := s.Classifier.Predict(img)
	if err != nil {
		return "", 0, false, err
	}
	subject, ok = s.Labels.Subject(label)
	return subject, distance, ok, nil
}

// Save writes the classifier and label map into a new version directory and
// then repoints the current link at it in one rename, so readers always see a
// matching pair. Older versions are removed afterwards.
func Save(dir string, classifier *lbph.Model, labels *LabelMap, logger *slog.Logger) (string, error) {
	version := uuid.NewString()
	vdir := filepath.Join(dir, version)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return "", fmt.Errorf("create model version dir: %w", err)
	}

	var model bytes.Buffer
	if err := classifier.Save(&model); err != nil {
		return "", err
	}
	if err := renameio.WriteFile(filepath.Join(vdir, ClassifierFile), model.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write classifier: %w", err)
	}

	mapping, err := json.MarshalIndent(labels, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode label map: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(vdir, LabelMapFile), mapping, 0o644); err != nil {
		return "", fmt.Errorf("write label map: %w", err)
	}

	if err := renameio.Symlink(version, filepath.Join(dir, currentLink)); err != nil {
		return "", fmt.Errorf("activate model version: %w", err)
	}

	prune(dir, version, logger)
	return version, nil
}

// Load opens the active model version.
func Load(dir string) (*Session, error) {
	target, err := os.Readlink(filepath.Join(dir, currentLink))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	vdir := filepath.Join(dir, target)

	f, err := os.Open(filepath.Join(vdir, ClassifierFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer f.Close()

	classifier, err := lbph.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	buf, err := os.ReadFile(filepath.Join(vdir, LabelMapFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	labels := NewLabelMap()
	if err := json.Unmarshal(buf, labels); err != nil {
		return nil, fmt.Errorf("%w: label map: %v", ErrModelUnavailable, err)
	}

	return &Session{Classifier: classifier, Labels: labels, Version: target}, nil
}

func prune(dir, keep string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("list model versions", "dir", dir, "err", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			logger.Warn("remove old model version", "version", e.Name(), "err", err)
		}
	}
}
