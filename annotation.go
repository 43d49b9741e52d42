package lsyolo

// Value types shared by the conversion pipeline.

import (
	"math"

	"github.com/pkg/errors"
)

// RawAnnotation is a single rectangle as exported by Label Studio.
//
// X, Y, Width and Height are percentages of the image size, with (X, Y) being the top-left
// corner of the unrotated rectangle. Rotation is in degrees, clockwise, about that corner.
type RawAnnotation struct {
	Label       string
	X           float64 // Percent of ImageWidth.
	Y           float64 // Percent of ImageHeight.
	Width       float64 // Percent of ImageWidth.
	Height      float64 // Percent of ImageHeight.
	Rotation    float64 // Degrees, clockwise.
	ImageWidth  int     // Pixels.
	ImageHeight int     // Pixels.
}

// Validate checks that all percentages are finite and non-negative, the rotation is finite and
// the image has a positive size.
func (a RawAnnotation) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"x", a.X},
		{"y", a.Y},
		{"width", a.Width},
		{"height", a.Height},
	}
	for _, f := range fields {
		if !isFinite(f.value) || f.value < 0 {
			return errors.Wrapf(ErrInvalidGeometry, "%s = %v", f.name, f.value)
		}
	}
	if !isFinite(a.Rotation) {
		return errors.Wrapf(ErrInvalidGeometry, "rotation = %v", a.Rotation)
	}
	if a.ImageWidth <= 0 || a.ImageHeight <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "image size %dx%d", a.ImageWidth, a.ImageHeight)
	}
	return nil
}

// NormalizedBox is an axis-aligned box in YOLO format. All values are fractions of the image
// size.
type NormalizedBox struct {
	ClassCode int
	XCenter   float64
	YCenter   float64
	Width     float64
	Height    float64
}

// IsDegenerate reports whether the box has zero width or height.
func (b NormalizedBox) IsDegenerate() bool {
	return b.Width == 0 || b.Height == 0
}

// Edges returns the normalized left, top, right and bottom edges of the box.
func (b NormalizedBox) Edges() (xmin, ymin, xmax, ymax float64) {
	return b.XCenter - b.Width/2, b.YCenter - b.Height/2,
		b.XCenter + b.Width/2, b.YCenter + b.Height/2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
