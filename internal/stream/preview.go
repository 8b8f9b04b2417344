// Package stream keeps the latest camera frame on disk and serves it as an
// MJPEG stream.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/renameio"
	"golang.org/x/image/draw"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

const (
	DefaultInterval = 500 * time.Millisecond

	boundary = "\r\n--frame\r\nContent-Type: image/jpeg\r\n\r\n"
)

var boxColor = color.RGBA{G: 255, A: 255}

// Preview is the latest frame a capture loop saw, with its face regions boxed.
// The file is replaced atomically so readers never see a partial JPEG.
type Preview struct {
	path     string
	Interval time.Duration
}

func NewPreview(path string) *Preview {
	return &Preview{path: path, Interval: DefaultInterval}
}

func (p *Preview) Path() string { return p.path }

// Update draws regions onto a copy of frame and stores it.
func (p *Preview) Update(frame image.Image, regions []image.Rectangle) error {
	canvas := image.NewRGBA(frame.Bounds())
	draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Src)
	for _, r := range regions {
		outline(canvas, r, 2)
	}

	var buf bytes.Buffer
	if err := imaging.EncodeJPEG(&buf, canvas); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return p.UpdateJPEG(buf.Bytes())
}

// UpdateJPEG stores an already encoded frame as is.
func (p *Preview) UpdateJPEG(buf []byte) error {
	if err := renameio.WriteFile(p.path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}

func outline(img *image.RGBA, r image.Rectangle, width int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// ServeHTTP streams the preview file as multipart/x-mixed-replace until the
// client goes away.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if err := p.writeFrame(w); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Preview) writeFrame(w io.Writer) error {
	f, err := os.Open(p.path)
	if err != nil {
		// nothing captured yet
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	if _, err := io.WriteString(w, boundary); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}
