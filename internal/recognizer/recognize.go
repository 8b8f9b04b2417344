// Package recognizer runs the live loop that turns camera frames into at most
// one attendance record per subject per day.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/amirhossein5/facecheck/internal/attendance"
	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/imaging"
	"github.com/amirhossein5/facecheck/internal/locator"
	"github.com/amirhossein5/facecheck/internal/model"
	"github.com/amirhossein5/facecheck/internal/models"
	"github.com/amirhossein5/facecheck/internal/notify"
)

const (
	DefaultThreshold      = 55
	DefaultDebounceFrames = 10
)

type Registry interface {
	Lookup(identifier string) (string, error)
}

type Store interface {
	HasRecordOn(ctx context.Context, subject string, day time.Time) (bool, error)
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	All(ctx context.Context) ([]models.AttendanceRecord, error)
}

type classifier interface {
	Predict(img *image.Gray) (subject string, distance float64, ok bool, err error)
}

type Options struct {
	// Threshold is the exclusive upper bound on an accepted distance.
	Threshold float64
	// DebounceFrames is how many frames the last accepted subject is ignored for.
	DebounceFrames int
	// Location is stored on every committed record.
	Location string
	// Loc is the zone calendar days are computed in.
	Loc *time.Location
	Now func() time.Time
	// OnFrame, if set, receives every processed frame.
	OnFrame func(FrameSummary)
}

func DefaultOptions() Options {
	return Options{
		Threshold:      DefaultThreshold,
		DebounceFrames: DefaultDebounceFrames,
		Loc:            time.Local,
		Now:            time.Now,
	}
}

type Recognizer struct {
	classifier classifier
	registry   Registry
	store      Store
	notifier   notify.Notifier
	locator    locator.Locator
	opts       Options
	logger     *slog.Logger
}

// New binds a loaded model session to its collaborators. A nil session means
// no model has been trained yet.
func New(session *model.Session, registry Registry, store Store, notifier notify.Notifier, loc locator.Locator, opts Options, logger *slog.Logger) (*Recognizer, error) {
	if session == nil {
		return nil, model.ErrModelUnavailable
	}
	if opts.Loc == nil {
		opts.Loc = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recognizer{
		classifier: session,
		registry:   registry,
		store:      store,
		notifier:   notifier,
		locator:    loc,
		opts:       opts,
		logger:     logger.With("model", session.Version),
	}, nil
}

// runState is the debounce and dedup state of one Run.
type runState struct {
	runID             string
	last              string
	framesSinceChange int
	recognized        map[string]bool
	alreadyMarked     map[string]bool
}

// Run reads src until ctx is done or the stream ends, then sends the full
// record set to the notifier once. src is closed before Run returns. An error
// is returned only when the camera failed before a single frame was read.
func (r *Recognizer) Run(ctx context.Context, src camera.Source) (*Report, error) {
	defer src.Close()

	report := &Report{RunID: uuid.NewString()}
	state := &runState{
		runID:         report.RunID,
		recognized:    make(map[string]bool),
		alreadyMarked: make(map[string]bool),
	}
	logger := r.logger.With("run", report.RunID)
	logger.Info("recognition started")

	var stopErr error
	for ctx.Err() == nil {
		frame, err := src.Read(ctx)
		if err != nil {
			if !camera.IsFatal(err) {
				logger.Debug("skipping frame", "err", err)
				continue
			}
			if ctx.Err() == nil && !errors.Is(err, camera.ErrStreamEnded) {
				logger.Warn("capture stopped", "err", err)
				if report.Frames == 0 {
					stopErr = err
				}
			}
			break
		}

		summary := r.processFrame(ctx, logger, frame, state, report)
		summary.Index = report.Frames
		report.Frames++
		report.Regions += len(summary.Results)
		state.framesSinceChange++

		if r.opts.OnFrame != nil {
			r.opts.OnFrame(summary)
		}
	}

	for name := range state.alreadyMarked {
		report.AlreadyMarked = append(report.AlreadyMarked, name)
	}
	slices.Sort(report.AlreadyMarked)

	r.notify(context.WithoutCancel(ctx), logger)

	logger.Info("recognition stopped",
		"frames", report.Frames,
		"committed", len(report.Committed),
		"already_marked", len(report.AlreadyMarked),
	)
	if stopErr != nil {
		return report, fmt.Errorf("recognition: %w", stopErr)
	}
	return report, nil
}

func (r *Recognizer) processFrame(ctx context.Context, logger *slog.Logger, frame image.Image, state *runState, report *Report) FrameSummary {
	summary := FrameSummary{Frame: frame}

	regions, err := r.locator.Locate(frame)
	if err != nil {
		logger.Warn("face locator failed", "err", err)
		summary.Err = err
		return summary
	}

	for _, region := range regions {
		res := r.processRegion(ctx, frame, region, state)
		switch res.Outcome {
		case OutcomeCommitted:
			report.Committed = append(report.Committed, *res.record)
			logger.Info("attendance marked",
				"subject", res.Subject,
				"name", res.DisplayName,
				"distance", res.Distance,
			)
		case OutcomeAlreadyMarked:
			state.alreadyMarked[res.DisplayName] = true
			logger.Info("attendance already marked today",
				"subject", res.Subject,
				"name", res.DisplayName,
			)
		case OutcomeError:
			logger.Warn("region failed", "subject", res.Subject, "err", res.Err)
		}
		summary.Results = append(summary.Results, res.RegionResult)
	}
	return summary
}

type regionResult struct {
	RegionResult
	record *models.AttendanceRecord
}

func (r *Recognizer) processRegion(ctx context.Context, frame image.Image, region image.Rectangle, state *runState) regionResult {
	res := regionResult{RegionResult: RegionResult{Region: region}}
	fail := func(err error) regionResult {
		res.Outcome = OutcomeError
		res.Err = err
		return res
	}

	sample, err := imaging.Normalize(frame, imaging.ExpandRect(region, frame.Bounds(), imaging.FaceMargin))
	if err != nil {
		return fail(err)
	}

	subject, distance, ok, err := r.classifier.Predict(sample)
	if err != nil {
		return fail(fmt.Errorf("predict: %w", err))
	}
	res.Distance = distance
	if !ok {
		res.Outcome = OutcomeUnknown
		return res
	}
	name, err := r.registry.Lookup(subject)
	if err != nil {
		res.Outcome = OutcomeUnknown
		return res
	}
	res.Subject = subject
	res.DisplayName = name

	if distance >= r.opts.Threshold {
		res.Outcome = OutcomeRejected
		return res
	}
	if subject == state.last && state.framesSinceChange < r.opts.DebounceFrames {
		res.Outcome = OutcomeDebounced
		return res
	}
	if state.recognized[subject] {
		res.Outcome = OutcomeSeen
		return res
	}

	now := r.opts.Now().In(r.opts.Loc)
	marked, err := r.store.HasRecordOn(ctx, subject, now)
	if err != nil {
		return fail(err)
	}
	if marked {
		res.Outcome = OutcomeAlreadyMarked
	} else {
		record := &models.AttendanceRecord{
			SubjectIdentifier: subject,
			DisplayName:       name,
			Status:            models.ATTENDANCE_STATUS_PRESENT,
			Location:          r.opts.Location,
			Timestamp:         now,
			RunID:             state.runID,
		}
		err := r.store.Insert(ctx, record)
		switch {
		case errors.Is(err, attendance.ErrDuplicateAttendance):
			res.Outcome = OutcomeAlreadyMarked
		case err != nil:
			return fail(err)
		default:
			res.Outcome = OutcomeCommitted
			res.record = record
		}
	}

	state.recognized[subject] = true
	state.last = subject
	state.framesSinceChange = 0
	return res
}

func (r *Recognizer) notify(ctx context.Context, logger *slog.Logger) {
	records, err := r.store.All(ctx)
	if err != nil {
		logger.Error("failed to load attendance for notification", "err", err)
		return
	}
	if err := r.notifier.Notify(ctx, records); err != nil {
		logger.Error("failed to send attendance notification", "err", err)
	}
}
