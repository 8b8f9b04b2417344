package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

// DirSource replays the jpg/png files of a directory in name order.
type DirSource struct {
	paths []string
	next  int
}

func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	var paths []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			if !e.IsDir() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(paths)
	return &DirSource{paths: paths}, nil
}

func (d *DirSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.paths) {
		return nil, ErrStreamEnded
	}
	path := d.paths[d.next]
	d.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	img, err := imaging.DecodeFrame(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return img, nil
}

func (d *DirSource) Close() error { return nil }

// Frames is an in-memory source, handy for tests and replays.
type Frames struct {
	images []image.Image
	next   int
	closed bool
}

func NewFrames(images ...image.Image) *Frames {
	return &Frames{images: images}
}

func (f *Frames) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closed || f.next >= len(f.images) {
		return nil, ErrStreamEnded
	}
	img := f.images[f.next]
	f.next++
	return img, nil
}

func (f *Frames) Close() error {
	f.closed = true
	return nil
}

func (f *Frames) Closed() bool { return f.closed }
