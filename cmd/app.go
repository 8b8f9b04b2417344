package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/amirhossein5/facecheck/internal/attendance"
	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/collector"
	"github.com/amirhossein5/facecheck/internal/config"
	"github.com/amirhossein5/facecheck/internal/dataset"
	"github.com/amirhossein5/facecheck/internal/dbconnection"
	"github.com/amirhossein5/facecheck/internal/locator"
	"github.com/amirhossein5/facecheck/internal/locator/cascade"
	"github.com/amirhossein5/facecheck/internal/notify"
	"github.com/amirhossein5/facecheck/internal/recognizer"
	"github.com/amirhossein5/facecheck/internal/registry"
	"github.com/amirhossein5/facecheck/internal/stream"
	"github.com/amirhossein5/facecheck/internal/trainer"
)

// app holds what every command needs; collaborators are opened on demand so
// that e.g. `records` never touches the camera.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	preview *stream.Preview
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  config.NewLogger(cfg.Environment),
		preview: stream.NewPreview(cfg.PreviewFile),
	}, nil
}

func (a *app) registry() *registry.Registry {
	return registry.New(a.cfg.NamesFile, a.logger)
}

func (a *app) openCamera() (camera.Source, error) {
	cam, err := camera.Open(a.cfg.CameraDevice, a.cfg.CameraWidth, a.cfg.CameraHeight)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func (a *app) openStore() (*attendance.Store, func(), error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	db, err := dbconnection.Open(a.cfg.DatabasePath, a.logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := dbconnection.Close(db); err != nil {
			a.logger.Warn("failed to close database", "err", err)
		}
	}
	return attendance.New(db, loc), closeDB, nil
}

func (a *app) cascade() (*cascade.Locator, error) {
	return cascade.Load(a.cfg.CascadeFile, cascade.DefaultParams())
}

// enrollLocator returns the locator used while collecting samples and a func
// releasing it.
func (a *app) enrollLocator() (locator.Locator, func(), error) {
	switch a.cfg.EnrollLocator {
	case "dlib":
		return newDlibLocator(a.cfg.DlibModelsDir)
	case "cascade":
		l, err := a.cascade()
		if err != nil {
			return nil, nil, err
		}
		return l, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ENROLL_LOCATOR: %s", a.cfg.EnrollLocator)
	}
}

func (a *app) notifier() (notify.Notifier, func(), error) {
	n, err := notify.New(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if c, ok := n.(io.Closer); ok {
		release = func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("failed to close notifier", "err", err)
			}
		}
	}
	return n, release, nil
}

func (a *app) recognizerOptions() (recognizer.Options, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return recognizer.Options{}, err
	}
	return recognizer.Options{
		Threshold:      a.cfg.ConfidenceThreshold,
		DebounceFrames: a.cfg.DebounceFrames,
		Location:       a.cfg.AttendanceLocation,
		Loc:            loc,
		Now:            time.Now,
	}, nil
}

func (a *app) updatePreview(frame image.Image, regions []image.Rectangle) {
	if err := a.preview.Update(frame, regions); err != nil {
		a.logger.Debug("preview not updated", "err", err)
	}
}

// enroll captures samples for one subject. samples <= 0 means SAMPLE_COUNT.
func (a *app) enroll(ctx context.Context, id, name string, samples int) (int, error) {
	if samples <= 0 {
		samples = a.cfg.SampleCount
	}
	ds, err := dataset.New(a.cfg.DatasetDir)
	if err != nil {
		return 0, err
	}
	loc, release, err := a.enrollLocator()
	if err != nil {
		return 0, err
	}
	defer release()

	bar := progressbar.NewOptions(samples,
		progressbar.OptionSetDescription(fmt.Sprintf("Capturing %s", name)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	c := collector.New(a.registry(), ds, loc, a.openCamera, a.logger)
	c.OnFrame = a.updatePreview
	c.OnSample = func(int) { _ = bar.Add(1) }

	n, err := c.Collect(ctx, id, name, samples)
	if n == samples {
		_ = bar.Finish()
	} else {
		_ = bar.Clear()
	}
	fmt.Println()
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, fmt.Errorf("no face samples captured for %s", id)
	}
	fmt.Printf("Captured %d/%d samples for %s (%s)\n", n, samples, name, id)
	return n, nil
}

func (a *app) train(ctx context.Context) (int, error) {
	ds, err := dataset.New(a.cfg.DatasetDir)
	if err != nil {
		return 0, err
	}

	var bar *progressbar.ProgressBar
	t := trainer.New(ds, a.cfg.ModelDir, a.logger)
	t.OnProgress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Training"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("samples"),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	subjects, err := t.TrainAndSave(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return 0, err
	}
	fmt.Printf("Model trained for %d subjects\n", subjects)
	return subjects, nil
}
