package recognizer

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein5/facecheck/internal/attendance"
	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/dbconnection"
	"github.com/amirhossein5/facecheck/internal/imaging"
	"github.com/amirhossein5/facecheck/internal/lbph"
	"github.com/amirhossein5/facecheck/internal/locator"
	"github.com/amirhossein5/facecheck/internal/model"
	"github.com/amirhossein5/facecheck/internal/models"
	"github.com/amirhossein5/facecheck/internal/registry"
)

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	kolkata = time.FixedZone("IST", 5*3600+1800)
	today   = time.Date(2026, 10, 14, 9, 0, 0, 0, kolkata)
)

type prediction struct {
	subject  string
	distance float64
	ok       bool
	err      error
}

// scripted returns one prediction per Predict call, in order.
type scripted struct {
	predictions []prediction
	calls       int
}

func (s *scripted) Predict(img *image.Gray) (string, float64, bool, error) {
	p := s.predictions[s.calls%len(s.predictions)]
	s.calls++
	return p.subject, p.distance, p.ok, p.err
}

func match(subject string, distance float64) prediction {
	return prediction{subject: subject, distance: distance, ok: true}
}

type names map[string]string

func (n names) Lookup(id string) (string, error) {
	name, ok := n[id]
	if !ok {
		return "", registry.ErrNotFound
	}
	return name, nil
}

type fakeStore struct {
	records   []models.AttendanceRecord
	hasCalls  int
	hasErr    error
	insertErr []error
}

func (s *fakeStore) HasRecordOn(ctx context.Context, subject string, day time.Time) (bool, error) {
	s.hasCalls++
	if s.hasErr != nil {
		return false, s.hasErr
	}
	key := day.In(kolkata).Format(models.DayLayout)
	for _, r := range s.records {
		if r.SubjectIdentifier == subject && r.Timestamp.In(kolkata).Format(models.DayLayout) == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if len(s.insertErr) > 0 {
		err := s.insertErr[0]
		s.insertErr = s.insertErr[1:]
		if err != nil {
			return err
		}
	}
	s.records = append(s.records, *record)
	return nil
}

func (s *fakeStore) All(ctx context.Context) ([]models.AttendanceRecord, error) {
	return append([]models.AttendanceRecord(nil), s.records...), nil
}

type fakeNotifier struct {
	calls   int
	records []models.AttendanceRecord
	err     error
}

func (n *fakeNotifier) Notify(ctx context.Context, records []models.AttendanceRecord) error {
	n.calls++
	n.records = records
	return n.err
}

func blank() image.Image {
	return image.NewGray(image.Rect(0, 0, 64, 64))
}

func frames(n int) *camera.Frames {
	imgs := make([]image.Image, n)
	for i := range imgs {
		imgs[i] = blank()
	}
	return camera.NewFrames(imgs...)
}

type harness struct {
	store    *fakeStore
	notifier *fakeNotifier
	registry names
	opts     Options
	outcomes [][]Outcome
}

func newHarness() *harness {
	h := &harness{
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		registry: names{"S001": "Asha", "S002": "Ravi"},
		opts: Options{
			Threshold:      55,
			DebounceFrames: 10,
			Location:       "Main Entrance",
			Loc:            kolkata,
			Now:            func() time.Time { return today },
		},
	}
	h.opts.OnFrame = func(s FrameSummary) {
		var out []Outcome
		for _, r := range s.Results {
			out = append(out, r.Outcome)
		}
		h.outcomes = append(h.outcomes, out)
	}
	return h
}

func (h *harness) recognizer(t *testing.T, c classifier, loc locator.Locator) *Recognizer {
	r, err := New(&model.Session{Version: "test"}, h.registry, h.store, h.notifier, loc, h.opts, discard)
	require.NoError(t, err)
	r.classifier = c
	return r
}

func (h *harness) run(t *testing.T, c classifier, src camera.Source) *Report {
	h.outcomes = nil
	report, err := h.recognizer(t, c, locator.Whole).Run(context.Background(), src)
	require.NoError(t, err)
	return report
}

func single(o Outcome) []Outcome { return []Outcome{o} }

func TestNew_ModelUnavailable(t *testing.T) {
	_, err := New(nil, names{}, &fakeStore{}, &fakeNotifier{}, locator.Whole, DefaultOptions(), discard)
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestRun_CommitsThenAlreadyMarkedOnSecondRun(t *testing.T) {
	h := newHarness()
	classify := &scripted{predictions: []prediction{match("S001", 40)}}

	first := h.run(t, classify, frames(2))
	require.Len(t, first.Committed, 1)
	got := first.Committed[0]
	assert.Equal(t, "S001", got.SubjectIdentifier)
	assert.Equal(t, "Asha", got.DisplayName)
	assert.Equal(t, models.ATTENDANCE_STATUS_PRESENT, got.Status)
	assert.Equal(t, "Main Entrance", got.Location)
	assert.True(t, got.Timestamp.Equal(today))
	assert.Equal(t, first.RunID, got.RunID)
	assert.Equal(t, first.RunID, h.store.records[0].RunID)
	assert.Empty(t, first.AlreadyMarked)
	assert.Equal(t, [][]Outcome{single(OutcomeCommitted), single(OutcomeDebounced)}, h.outcomes)

	second := h.run(t, classify, frames(1))
	assert.Empty(t, second.Committed)
	assert.Equal(t, []string{"Asha"}, second.AlreadyMarked)
	assert.Len(t, h.store.records, 1)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_NextDayCommitsAgain(t *testing.T) {
	h := newHarness()
	classify := &scripted{predictions: []prediction{match("S001", 10)}}
	h.run(t, classify, frames(1))

	h.opts.Now = func() time.Time { return today.Add(24 * time.Hour) }
	report := h.run(t, classify, frames(1))
	assert.Len(t, report.Committed, 1)
	assert.Len(t, h.store.records, 2)
}

func TestRun_Debounce(t *testing.T) {
	h := newHarness()
	report := h.run(t, &scripted{predictions: []prediction{match("S001", 20)}}, frames(12))

	want := [][]Outcome{single(OutcomeCommitted)}
	for i := 0; i < 9; i++ {
		want = append(want, single(OutcomeDebounced))
	}
	want = append(want, single(OutcomeSeen), single(OutcomeSeen))
	assert.Equal(t, want, h.outcomes)
	assert.Equal(t, 1, h.store.hasCalls, "one commit attempt inside a continuous presence")
	assert.Len(t, report.Committed, 1)
	assert.Equal(t, 12, report.Frames)
}

func TestRun_DebounceResetsOnOtherSubject(t *testing.T) {
	h := newHarness()
	classify := &scripted{predictions: []prediction{
		match("S001", 20),
		match("S002", 20),
		match("S001", 20),
	}}
	report := h.run(t, classify, frames(3))

	assert.Equal(t, [][]Outcome{
		single(OutcomeCommitted),
		single(OutcomeCommitted),
		single(OutcomeSeen),
	}, h.outcomes)
	assert.Len(t, report.Committed, 2)
}

func TestRun_ConfidenceGate(t *testing.T) {
	for _, distance := range []float64{55, 55.01, 120} {
		h := newHarness()
		report := h.run(t, &scripted{predictions: []prediction{match("S001", distance)}}, frames(15))

		assert.Empty(t, report.Committed, "distance %v", distance)
		assert.Zero(t, h.store.hasCalls, "distance %v", distance)
		for _, o := range h.outcomes {
			assert.Equal(t, single(OutcomeRejected), o)
		}
	}
}

func TestRun_RejectionLeavesStateAlone(t *testing.T) {
	h := newHarness()
	classify := &scripted{predictions: []prediction{
		match("S002", 90),
		match("S001", 30),
	}}
	h.run(t, classify, frames(2))

	assert.Equal(t, [][]Outcome{single(OutcomeRejected), single(OutcomeCommitted)}, h.outcomes)
}

func TestRun_UnknownNeverCommits(t *testing.T) {
	h := newHarness()
	classify := &scripted{predictions: []prediction{
		{subject: "", distance: 0, ok: false},
		match("S404", 0),
	}}
	report := h.run(t, classify, frames(20))

	assert.Empty(t, report.Committed)
	assert.Zero(t, h.store.hasCalls)
	for _, o := range h.outcomes {
		assert.Equal(t, single(OutcomeUnknown), o)
	}
}

func TestRun_DuplicateInsertIsAlreadyMarked(t *testing.T) {
	h := newHarness()
	h.store.insertErr = []error{attendance.ErrDuplicateAttendance}

	report := h.run(t, &scripted{predictions: []prediction{match("S001", 10)}}, frames(1))
	assert.Empty(t, report.Committed)
	assert.Equal(t, []string{"Asha"}, report.AlreadyMarked)
}

func TestRun_ErrorsNeverStopTheLoop(t *testing.T) {
	h := newHarness()
	h.store.insertErr = []error{errors.New("database is locked")}

	calls := 0
	flaky := locator.Func(func(img image.Image) ([]image.Rectangle, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("detector crashed")
		}
		return []image.Rectangle{img.Bounds()}, nil
	})
	classify := &scripted{predictions: []prediction{
		{err: errors.New("histogram size mismatch")},
		match("S001", 10),
		match("S001", 10),
	}}

	h.outcomes = nil
	report, err := h.recognizer(t, classify, flaky).Run(context.Background(), frames(4))
	require.NoError(t, err)

	assert.Equal(t, [][]Outcome{
		nil,
		single(OutcomeError),
		single(OutcomeError),
		single(OutcomeCommitted),
	}, h.outcomes)
	assert.Len(t, report.Committed, 1)
	assert.Equal(t, 4, report.Frames)
}

type decodeOnce struct {
	*camera.Frames
	failed bool
}

func (d *decodeOnce) Read(ctx context.Context) (image.Image, error) {
	if !d.failed {
		d.failed = true
		return nil, camera.ErrDecode
	}
	return d.Frames.Read(ctx)
}

func TestRun_SkipsUndecodableFrames(t *testing.T) {
	h := newHarness()
	report := h.run(t, &scripted{predictions: []prediction{match("S001", 10)}}, &decodeOnce{Frames: frames(1)})
	assert.Equal(t, 1, report.Frames)
	assert.Len(t, report.Committed, 1)
}

func TestRun_NotifiesOnceWithAllRecords(t *testing.T) {
	h := newHarness()
	h.store.records = []models.AttendanceRecord{{SubjectIdentifier: "S009", Timestamp: today.Add(-48 * time.Hour)}}
	h.notifier.err = errors.New("smtp down")

	src := frames(3)
	report := h.run(t, &scripted{predictions: []prediction{match("S001", 10)}}, src)

	assert.Equal(t, 1, h.notifier.calls)
	assert.Len(t, h.notifier.records, 2)
	assert.Len(t, report.Committed, 1, "notification failure keeps committed records")
	assert.True(t, src.Closed())
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.opts.OnFrame = func(FrameSummary) { cancel() }

	src := frames(50)
	r := h.recognizer(t, &scripted{predictions: []prediction{match("S001", 10)}}, locator.Whole)
	report, err := r.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Frames)
	assert.Equal(t, 1, h.notifier.calls)
	assert.True(t, src.Closed())
}

type brokenCamera struct{ closed bool }

func (b *brokenCamera) Read(context.Context) (image.Image, error) {
	return nil, camera.ErrCaptureUnavailable
}

func (b *brokenCamera) Close() error {
	b.closed = true
	return nil
}

func TestRun_CaptureUnavailable(t *testing.T) {
	h := newHarness()
	src := &brokenCamera{}
	r := h.recognizer(t, &scripted{predictions: []prediction{match("S001", 10)}}, locator.Whole)

	report, err := r.Run(context.Background(), src)
	assert.ErrorIs(t, err, camera.ErrCaptureUnavailable)
	assert.Zero(t, report.Frames)
	assert.True(t, src.closed)
	assert.Equal(t, 1, h.notifier.calls)
}

func noise(seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 240, 240))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// trainedSession trains a real classifier on the normalized form of each
// frame, one subject per frame.
func trainedSession(t *testing.T, subjects []string, faces []image.Image) *model.Session {
	labels := model.NewLabelMap()
	var samples []*image.Gray
	var ids []int
	for i, f := range faces {
		sample, err := imaging.Normalize(f, f.Bounds())
		require.NoError(t, err)
		samples = append(samples, sample)
		ids = append(ids, labels.Assign(subjects[i]))
	}
	classifier, err := lbph.Train(samples, ids)
	require.NoError(t, err)
	return &model.Session{Classifier: classifier, Labels: labels, Version: "v1"}
}

func TestRun_TrainedSessionAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	db, err := dbconnection.Open(filepath.Join(dir, "attendance.db"), discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbconnection.Close(db) })
	store := attendance.New(db, kolkata)

	reg := registry.New(filepath.Join(dir, "names.json"), discard)
	require.NoError(t, reg.Upsert("S001", "Asha"))
	require.NoError(t, reg.Upsert("S002", "Ravi"))

	asha, ravi := noise(1), noise(2)
	session := trainedSession(t, []string{"S001", "S002"}, []image.Image{asha, ravi})

	notifier := &fakeNotifier{}
	opts := Options{
		Threshold:      DefaultThreshold,
		DebounceFrames: DefaultDebounceFrames,
		Location:       "Main Entrance",
		Loc:            kolkata,
		Now:            func() time.Time { return today },
	}
	r, err := New(session, reg, store, notifier, locator.Whole, opts, discard)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), camera.NewFrames(asha, asha, ravi))
	require.NoError(t, err)
	require.Len(t, report.Committed, 2)
	assert.Equal(t, "S001", report.Committed[0].SubjectIdentifier)
	assert.Equal(t, "S002", report.Committed[1].SubjectIdentifier)

	report, err = r.Run(context.Background(), camera.NewFrames(ravi))
	require.NoError(t, err)
	assert.Empty(t, report.Committed)
	assert.Equal(t, []string{"Ravi"}, report.AlreadyMarked)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, notifier.records, 2)
}
