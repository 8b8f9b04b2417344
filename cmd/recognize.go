package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amirhossein5/facecheck/internal/camera"
	"github.com/amirhossein5/facecheck/internal/model"
	"github.com/amirhossein5/facecheck/internal/recognizer"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Mark attendance for recognized faces until interrupted",
	Long: `Runs the recognition loop against the camera (or a directory of frames
with --replay) until Ctrl-C or the end of the stream, then sends the
attendance report.`,
	Args: cobra.NoArgs,
	RunE: runRecognize,
}

func init() {
	recognizeCmd.Flags().String("replay", "", "Read frames from this directory instead of the camera")
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	session, err := model.Load(a.cfg.ModelDir)
	if err != nil {
		return fmt.Errorf("%w (run `facecheck train` first)", err)
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

	opts, err := a.recognizerOptions()
	if err != nil {
		return err
	}
	opts.OnFrame = func(s recognizer.FrameSummary) {
		a.updatePreview(s.Frame, s.Regions())
	}

	r, err := recognizer.New(session, a.registry(), store, notifier, loc, opts, a.logger)
	if err != nil {
		return err
	}

	var src camera.Source
	if dir := mustGetString(cmd, "replay"); dir != "" {
		src, err = camera.OpenDir(dir)
	} else {
		src, err = a.openCamera()
	}
	if err != nil {
		return err
	}

	report, err := r.Run(cmd.Context(), src)
	if err != nil {
		return err
	}

	for _, rec := range report.Committed {
		fmt.Printf("Marked: %s (%s)\n", rec.DisplayName, rec.SubjectIdentifier)
	}
	if len(report.AlreadyMarked) > 0 {
		fmt.Printf("Already marked today: %s\n", strings.Join(report.AlreadyMarked, ", "))
	}
	fmt.Printf("Processed %d frames, %d faces\n", report.Frames, report.Regions)
	return nil
}
