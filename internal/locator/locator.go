// Package locator defines the face locating capability used by enrollment and
// recognition.
package locator

import "image"

// Locator returns the regions of img that likely contain a face.
type Locator interface {
	Locate(img image.Image) ([]image.Rectangle, error)
}

// Func adapts a plain function to Locator.
type Func func(img image.Image) ([]image.Rectangle, error)

func (f Func) Locate(img image.Image) ([]image.Rectangle, error) { return f(img) }

// Fixed always reports the same regions. Useful when frames are already
// cropped to a face.
func Fixed(regions ...image.Rectangle) Locator {
	return Func(func(image.Image) ([]image.Rectangle, error) {
		return regions, nil
	})
}

// Whole reports the full frame as a single face region.
var Whole Locator = Func(func(img image.Image) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Bounds()}, nil
})
