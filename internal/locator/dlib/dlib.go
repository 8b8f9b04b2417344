// Package dlib locates faces with the dlib detector behind go-face.
package dlib

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

type Locator struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the dlib models from modelsDir.
func New(modelsDir string) (*Locator, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognizer: %v", err)
	}
	return &Locator{rec: rec}, nil
}

func (l *Locator) Locate(img image.Image) ([]image.Rectangle, error) {
	var buf bytes.Buffer
	if err := imaging.EncodeJPEG(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	l.mu.Lock()
	faces, err := l.rec.Recognize(buf.Bytes())
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to recognize given buffer: %v", err)
	}

	offset := img.Bounds().Min
	regions := make([]image.Rectangle, 0, len(faces))
	for _, f := range faces {
		regions = append(regions, f.Rectangle.Add(offset))
	}
	return regions, nil
}

func (l *Locator) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec != nil {
		l.rec.Close()
		l.rec = nil
	}
}
