// Package imaging turns located face regions into the fixed-size, contrast
// normalized grayscale samples the classifier is trained and queried with.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	// SampleSize is the side of every normalized sample, in pixels.
	SampleSize = 200
	// FaceMargin is added around every located face before cropping, both
	// when collecting samples and when recognizing.
	FaceMargin = 30

	ClipLimit = 2.0
	TileGrid  = 8

	jpegQuality = 95
)

var ErrEmptyRegion = errors.New("face region is empty")

// Grayscale copies img into a new *image.Gray whose bounds start at (0,0).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ExpandRect grows r by margin on every side and clamps it to bounds.
func ExpandRect(r, bounds image.Rectangle, margin int) image.Rectangle {
	return image.Rect(r.Min.X-margin, r.Min.Y-margin, r.Max.X+margin, r.Max.Y+margin).Intersect(bounds)
}

// Resize scales src to a size x size square using bilinear interpolation.
func Resize(src *image.Gray, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Normalize crops region out of img and produces a canonical sample:
// grayscale, SampleSize x SampleSize, CLAHE equalized.
func Normalize(img image.Image, region image.Rectangle) (*image.Gray, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, ErrEmptyRegion
	}

	crop := image.NewGray(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(crop, crop.Bounds(), img, region.Min, draw.Src)

	return CLAHE(Resize(crop, SampleSize), ClipLimit, TileGrid), nil
}

func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
}

// DecodeGray decodes any registered image format and returns it as a
// SampleSize square grayscale image.
func DecodeGray(r io.Reader) (*image.Gray, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	gray := Grayscale(img)
	if gray.Rect.Dx() != SampleSize || gray.Rect.Dy() != SampleSize {
		gray = Resize(gray, SampleSize)
	}
	return gray, nil
}

// DecodeFrame decodes a camera frame from its encoded bytes.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
