// Package collector captures face samples for one subject from a camera.
package collector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/dataset"
	"github.com/amirhossein5/facecheck/internal/imaging"
	"github.com/amirhossein5/facecheck/internal/locator"
)

var ErrInvalidSampleCount = errors.New("sample count must be positive")

type Registry interface {
	Upsert(identifier, displayName string) error
}

type SampleStore interface {
	Save(subject string, seq int, img *image.Gray) (string, error)
	Remove(subject string) (int, error)
}

// Opener acquires the camera for one capture run.
type Opener func() (camera.Source, error)

type Collector struct {
	registry Registry
	samples  SampleStore
	locator  locator.Locator
	open     Opener
	logger   *slog.Logger

	// OnSample is called with the running count after each saved sample.
	OnSample func(n int)
	// OnFrame receives every frame with the regions found in it.
	OnFrame func(frame image.Image, regions []image.Rectangle)
}

func New(registry Registry, samples SampleStore, loc locator.Locator, open Opener, logger *slog.Logger) *Collector {
	return &Collector{
		registry: registry,
		samples:  samples,
		locator:  loc,
		open:     open,
		logger:   logger,
	}
}

// Collect replaces the stored samples of subjectID with up to sampleCount new
// ones and returns how many were saved. Camera problems end the capture early
// without an error; the caller decides whether a partial enrollment is enough.
func (c *Collector) Collect(ctx context.Context, subjectID, displayName string, sampleCount int) (int, error) {
	if sampleCount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSampleCount, sampleCount)
	}
	if err := dataset.ValidateIdentifier(subjectID); err != nil {
		return 0, err
	}

	if err := c.registry.Upsert(subjectID, displayName); err != nil {
		return 0, fmt.Errorf("save subject details: %w", err)
	}

	removed, err := c.samples.Remove(subjectID)
	if err != nil {
		return 0, fmt.Errorf("remove previous samples: %w", err)
	}
	if removed > 0 {
		c.logger.Info("removed previous samples", "subject", subjectID, "count", removed)
	}

	src, err := c.open()
	if err != nil {
		c.logger.Warn("camera unavailable", "subject", subjectID, "err", err)
		return 0, nil
	}
	defer src.Close()

	saved := 0
	for saved < sampleCount {
		frame, err := src.Read(ctx)
		if err != nil {
			if !camera.IsFatal(err) {
				c.logger.Debug("skipping frame", "err", err)
				continue
			}
			if !errors.Is(err, camera.ErrStreamEnded) {
				c.logger.Warn("capture stopped", "subject", subjectID, "err", err)
			}
			break
		}

		regions, err := c.locator.Locate(frame)
		if err != nil {
			c.logger.Warn("face locator failed", "err", err)
			continue
		}
		if c.OnFrame != nil {
			c.OnFrame(frame, regions)
		}

		for _, r := range regions {
			if saved >= sampleCount {
				break
			}
			sample, err := imaging.Normalize(frame, imaging.ExpandRect(r, frame.Bounds(), imaging.FaceMargin))
			if err != nil {
				continue
			}
			if _, err := c.samples.Save(subjectID, saved+1, sample); err != nil {
				return saved, fmt.Errorf("save sample %d: %w", saved+1, err)
			}
			saved++
			if c.OnSample != nil {
				c.OnSample(saved)
			}
		}
	}

	c.logger.Info("dataset collected",
		"subject", subjectID,
		"name", displayName,
		"samples", saved,
	)
	return saved, nil
}
