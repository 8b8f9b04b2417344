// Package cascade locates faces with the pigo pixel intensity comparison
// cascade.
package cascade

import (
	"errors"
	"fmt"
	"image"
	"os"
	"slices"

	pigo "github.com/esimov/pigo/core"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

type Params struct {
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	IoU         float64
	MinScore    float32
}

func DefaultParams() Params {
	return Params{
		MinSize:     60,
		MaxSize:     1000,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinScore:    5.0,
	}
}

type Locator struct {
	classifier *pigo.Pigo
	params     Params
}

// Load unpacks the cascade file at path (pigo's "facefinder").
func Load(path string, params Params) (*Locator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cascade file: %w", err)
	}
	return New(data, params)
}

func New(cascade []byte, params Params) (*Locator, error) {
	if len(cascade) == 0 {
		return nil, errors.New("empty cascade")
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &Locator{classifier: classifier, params: params}, nil
}

func (l *Locator) Locate(img image.Image) ([]image.Rectangle, error) {
	gray := imaging.Grayscale(img)
	cols, rows := gray.Rect.Dx(), gray.Rect.Dy()

	cp := pigo.CascadeParams{
		MinSize:     l.params.MinSize,
		MaxSize:     min(l.params.MaxSize, cols, rows),
		ShiftFactor: l.params.ShiftFactor,
		ScaleFactor: l.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := l.classifier.RunCascade(cp, 0.0)
	dets = l.classifier.ClusterDetections(dets, l.params.IoU)
	dets = slices.DeleteFunc(dets, func(d pigo.Detection) bool {
		return d.Q < l.params.MinScore
	})

	bounds := gray.Bounds()
	regions := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		half := d.Scale / 2
		r := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).Intersect(bounds)
		if !r.Empty() {
			regions = append(regions, r.Add(img.Bounds().Min))
		}
	}
	return regions, nil
}
