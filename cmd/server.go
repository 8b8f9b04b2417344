package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirhossein5/facecheck/internal/attendance"
	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/locator"
	"github.com/amirhossein5/facecheck/internal/model"
	"github.com/amirhossein5/facecheck/internal/models"
	"github.com/amirhossein5/facecheck/internal/notify"
	"github.com/amirhossein5/facecheck/internal/recognizer"
)

//go:embed index.html
var indexHTML []byte

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Recognize faces pushed by a browser camera",
	Long: `Serves a page that streams the browser's camera over a websocket. Every
connection runs one recognition loop; the browser is told to play a sound
when attendance is marked or was already marked today.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type server struct {
	app      *app
	store    *attendance.Store
	notifier notify.Notifier
	locator  locator.Locator
	ingress  *camera.Ingress
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()
	notifier, release, err := a.notifier()
	if err != nil {
		return err
	}
	defer release()
	loc, err := a.cascade()
	if err != nil {
		return err
	}

	s := &server{
		app:      a,
		store:    store,
		notifier: notifier,
		locator:  loc,
		ingress:  camera.NewIngress(a.logger),
	}

	ctx := cmd.Context()
	httpServer := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.recognitionLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	a.logger.Info("starting webserver", "addr", a.cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", indexPage)
	mux.Handle("/stream", s.app.preview)
	mux.Handle("/camera-websocket", s.ingress.Handler())
	mux.HandleFunc("/records", s.recordsHandler)
	return mux
}

// recognitionLoop serves connected cameras one at a time. The model is loaded
// per connection so a retrain is picked up by the next one.
func (s *server) recognitionLoop(ctx context.Context) {
	for {
		src, err := s.ingress.Accept(ctx)
		if err != nil {
			return
		}
		s.recognize(ctx, src)
	}
}

func (s *server) recognize(ctx context.Context, src *camera.WebsocketSource) {
	logger := s.app.logger

	session, err := model.Load(s.app.cfg.ModelDir)
	if err != nil {
		logger.Error("cannot start recognition", "err", err)
		_ = src.Send("model-unavailable")
		_ = src.Close()
		return
	}

	opts, err := s.app.recognizerOptions()
	if err != nil {
		logger.Error("cannot start recognition", "err", err)
		_ = src.Close()
		return
	}
	opts.OnFrame = func(summary recognizer.FrameSummary) {
		s.app.updatePreview(summary.Frame, summary.Regions())
		switch {
		case summary.Committed():
			sendSound(src, "success", logger)
		case summary.AlreadyMarked():
			sendSound(src, "warning", logger)
		}
	}

	r, err := recognizer.New(session, s.app.registry(), s.store, s.notifier, s.locator, opts, logger)
	if err != nil {
		logger.Error("cannot start recognition", "err", err)
		_ = src.Close()
		return
	}

	report, err := r.Run(ctx, src)
	if err != nil {
		logger.Warn("recognition ended early", "err", err)
		return
	}
	logger.Info("camera session finished",
		"run", report.RunID,
		"committed", len(report.Committed),
		"already_marked", report.AlreadyMarked,
	)
}

func sendSound(src *camera.WebsocketSource, sound string, logger *slog.Logger) {
	if err := src.Send("play-sound:" + sound); err != nil {
		logger.Debug("failed to notify browser", "err", err)
	}
}

func indexPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

type recordsResponse struct {
	Records []recordJSON              `json:"records"`
	Counts  []attendance.SubjectCount `json:"counts"`
}

type recordJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	Location   string    `json:"location"`
	Engagement string    `json:"engagement"`
}

// recordsHandler lists attendance, newest first, with per-person counts.
// ?day=YYYY-MM-DD restricts the list to one day.
func (s *server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		resp    recordsResponse
		records []models.AttendanceRecord
		err     error
	)
	if day := r.URL.Query().Get("day"); day != "" {
		loc, lerr := s.app.cfg.Location()
		if lerr != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		t, perr := time.ParseInLocation(models.DayLayout, day, loc)
		if perr != nil {
			http.Error(w, "invalid day", http.StatusBadRequest)
			return
		}
		records, err = s.store.ForDay(ctx, t)
	} else {
		records, err = s.store.All(ctx)
	}
	if err != nil {
		s.app.logger.Error("failed to list attendance", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, recordJSON{
			ID:         rec.SubjectIdentifier,
			Name:       rec.DisplayName,
			Time:       rec.Timestamp,
			Location:   rec.Location,
			Engagement: rec.Status,
		})
	}
	if resp.Counts, err = s.store.CountBySubject(ctx); err != nil {
		s.app.logger.Error("failed to count attendance", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
