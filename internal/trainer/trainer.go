// Package trainer builds the classifier from every stored face sample.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/amirhossein5/facecheck/internal/dataset"
	"github.com/amirhossein5/facecheck/internal/imaging"
	"github.com/amirhossein5/facecheck/internal/lbph"
	"github.com/amirhossein5/facecheck/internal/model"
)

var ErrNoTrainingData = errors.New("no training data found")

type Trainer struct {
	samples  *dataset.Dataset
	modelDir string
	logger   *slog.Logger

	// OnProgress, when set, is called after every sample file is processed.
	OnProgress func(done, total int)
}

func New(samples *dataset.Dataset, modelDir string, logger *slog.Logger) *Trainer {
	return &Trainer{samples: samples, modelDir: modelDir, logger: logger}
}

// TrainAndSave trains over all samples, replaces the persisted model and
// label map, and returns the number of distinct subjects trained.
func (t *Trainer) TrainAndSave(ctx context.Context) (int, error) {
	list, err := t.samples.List()
	if err != nil {
		return 0, err
	}

	labels := model.NewLabelMap()
	var (
		images []*image.Gray
		ids    []int
	)
	for i, s := range list {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		img, err := decode(s.Path)
		if err != nil {
			t.logger.Warn("skipping unreadable sample", "path", s.Path, "err", err)
		} else {
			images = append(images, img)
			ids = append(ids, labels.Assign(s.Subject))
		}

		if t.OnProgress != nil {
			t.OnProgress(i+1, len(list))
		}
	}

	if len(images) == 0 {
		return 0, ErrNoTrainingData
	}

	classifier, err := lbph.Train(images, ids)
	if err != nil {
		return 0, fmt.Errorf("train classifier: %w", err)
	}

	version, err := model.Save(t.modelDir, classifier, labels, t.logger)
	if err != nil {
		return 0, err
	}

	t.logger.Info("model trained",
		"subjects", labels.Len(),
		"samples", len(images),
		"version", version,
	)
	return labels.Len(), nil
}

func decode(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imaging.DecodeGray(f)
}
