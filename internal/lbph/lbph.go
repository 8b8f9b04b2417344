// Package lbph implements a local binary pattern histogram face classifier.
//
// Every training image is reduced to a spatial histogram of circular local
// binary patterns. Prediction returns the label of the nearest training
// histogram together with its chi-square distance; a lower distance is a
// better match.
package lbph

import (
	"errors"
	"fmt"
	"image"
	"math"
)

const (
	DefaultRadius    = 1
	DefaultNeighbors = 8
	DefaultGrid      = 8
)

var (
	ErrNoSamples    = errors.New("lbph: no training samples")
	ErrSizeMismatch = errors.New("lbph: image size does not match the model")
	ErrNotTrained   = errors.New("lbph: model is not trained")
)

type Model struct {
	Radius     int         `yaml:"radius"`
	Neighbors  int         `yaml:"neighbors"`
	GridX      int         `yaml:"grid_x"`
	GridY      int         `yaml:"grid_y"`
	Width      int         `yaml:"width"`
	Height     int         `yaml:"height"`
	Labels     []int       `yaml:"labels"`
	Histograms []Histogram `yaml:"histograms"`
}

// Train builds a model from equally sized grayscale images; labels[i] is the
// label of images[i].
func Train(images []*image.Gray, labels []int) (*Model, error) {
	if len(images) == 0 {
		return nil, ErrNoSamples
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("lbph: %d images but %d labels", len(images), len(labels))
	}

	m := &Model{
		Radius:    DefaultRadius,
		Neighbors: DefaultNeighbors,
		GridX:     DefaultGrid,
		GridY:     DefaultGrid,
		Width:     images[0].Rect.Dx(),
		Height:    images[0].Rect.Dy(),
	}
	if m.Width <= 2*m.Radius || m.Height <= 2*m.Radius {
		return nil, fmt.Errorf("%w: %dx%d is too small", ErrSizeMismatch, m.Width, m.Height)
	}

	m.Labels = make([]int, 0, len(images))
	m.Histograms = make([]Histogram, 0, len(images))
	for i, img := range images {
		if img.Rect.Dx() != m.Width || img.Rect.Dy() != m.Height {
			return nil, fmt.Errorf("%w: sample %d is %dx%d, want %dx%d",
				ErrSizeMismatch, i, img.Rect.Dx(), img.Rect.Dy(), m.Width, m.Height)
		}
		m.Histograms = append(m.Histograms, m.histogram(img))
		m.Labels = append(m.Labels, labels[i])
	}
	return m, nil
}

// Predict returns the label of the closest training sample and its distance.
func (m *Model) Predict(img *image.Gray) (int, float64, error) {
	if m == nil || len(m.Histograms) == 0 {
		return -1, 0, ErrNotTrained
	}
	if img.Rect.Dx() != m.Width || img.Rect.Dy() != m.Height {
		return -1, 0, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrSizeMismatch, img.Rect.Dx(), img.Rect.Dy(), m.Width, m.Height)
	}

	query := m.histogram(img)
	best, bestDist := -1, math.MaxFloat64
	for i, h := range m.Histograms {
		if d := chiSquare(h, query); d < bestDist {
			best, bestDist = m.Labels[i], d
		}
	}
	return best, bestDist, nil
}

func (m *Model) histogram(img *image.Gray) Histogram {
	codes, w, h := elbp(img, m.Radius, m.Neighbors)
	return spatialHistogram(codes, w, h, 1<<m.Neighbors, m.GridX, m.GridY)
}

// elbp computes the extended (circular) local binary pattern of img. The
// result is (w-2r) x (h-2r), row major.
func elbp(img *image.Gray, radius, neighbors int) ([]int, int, int) {
	if img.Rect.Min != (image.Point{}) {
		img = rebase(img)
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	ow, oh := w-2*radius, h-2*radius
	codes := make([]int, ow*oh)
	at := func(x, y int) float64 { return float64(img.Pix[y*img.Stride+x]) }

	for n := 0; n < neighbors; n++ {
		angle := 2 * math.Pi * float64(n) / float64(neighbors)
		x := float64(radius) * math.Cos(angle)
		y := -float64(radius) * math.Sin(angle)

		fx, fy := int(math.Floor(x)), int(math.Floor(y))
		cx, cy := int(math.Ceil(x)), int(math.Ceil(y))
		tx, ty := x-float64(fx), y-float64(fy)
		w1 := (1 - tx) * (1 - ty)
		w2 := tx * (1 - ty)
		w3 := (1 - tx) * ty
		w4 := tx * ty

		for i := radius; i < h-radius; i++ {
			for j := radius; j < w-radius; j++ {
				t := w1*at(j+fx, i+fy) + w2*at(j+cx, i+fy) + w3*at(j+fx, i+cy) + w4*at(j+cx, i+cy)
				c := at(j, i)
				if t > c || math.Abs(t-c) < epsilon {
					codes[(i-radius)*ow+(j-radius)] += 1 << n
				}
			}
		}
	}
	return codes, ow, oh
}

// epsilon absorbs interpolation error so that equal neighbors set their bit.
const epsilon = 1.1920929e-07

// spatialHistogram splits the code image into a gridX x gridY grid and
// concatenates the per-cell pattern histograms, each normalized by cell area.
func spatialHistogram(codes []int, w, h, bins, gridX, gridY int) Histogram {
	cellW, cellH := w/gridX, h/gridY
	out := make(Histogram, gridX*gridY*bins)
	area := float32(cellW * cellH)
	if area == 0 {
		return out
	}

	for gy := 0; gy < gridY; gy++ {
		for gx := 0; gx < gridX; gx++ {
			cell := out[(gy*gridX+gx)*bins : (gy*gridX+gx+1)*bins]
			for y := gy * cellH; y < (gy+1)*cellH; y++ {
				for x := gx * cellW; x < (gx+1)*cellW; x++ {
					cell[codes[y*w+x]]++
				}
			}
			for i := range cell {
				cell[i] /= area
			}
		}
	}
	return out
}

// chiSquare is the alternative chi-square distance 2 * sum((a-b)^2 / (a+b)).
func chiSquare(a, b Histogram) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s := float64(a[i]) + float64(b[i])
		if s > 0 {
			sum += d * d / s
		}
	}
	return 2 * sum
}

func rebase(img *image.Gray) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w], img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):])
	}
	return out
}
