// Package camera provides blocking frame sources for the capture loops.
package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrStreamEnded is returned by Read when the source has no more frames.
	ErrStreamEnded = errors.New("camera stream ended")
	// ErrCaptureUnavailable wraps failures to open or read the capture device.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrDecode marks a single frame that could not be decoded; the source
	// itself is still usable.
	ErrDecode = errors.New("frame decode failed")
)

// Source is a camera owned exclusively by one capture loop. Read blocks until
// a frame is available, the stream ends or ctx is done.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// IsFatal reports whether err from Read means the loop should stop.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrDecode)
}
