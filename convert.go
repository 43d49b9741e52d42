package lsyolo

// Conversion between Label Studio rectangles and YOLO boxes.

import (
	"math"

	"github.com/pkg/errors"
)

// Converter converts single annotations between Label Studio and YOLO formats. It holds no
// mutable state and is safe for concurrent use.
type Converter struct {
	labels *LabelTable
	policy BoundsPolicy
}

// Option configures a Converter.
type Option func(*Converter)

// WithBoundsPolicy sets the policy for corners that fall outside the image. The default is
// ClampCorners.
func WithBoundsPolicy(p BoundsPolicy) Option {
	return func(c *Converter) {
		c.policy = p
	}
}

// NewConverter returns a Converter that encodes class names with labels.
func NewConverter(labels *LabelTable, opts ...Option) *Converter {
	c := &Converter{labels: labels, policy: ClampCorners}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Labels returns the label table of the converter.
func (c *Converter) Labels() *LabelTable {
	return c.labels
}

// FromLSToYOLO converts a possibly rotated Label Studio rectangle to the axis-aligned box
// enclosing it.
//
// On failure the zero box is returned. A box with zero width or height is returned together
// with an error wrapping ErrDegenerateBox; the box itself is valid.
func (c *Converter) FromLSToYOLO(raw RawAnnotation) (NormalizedBox, error) {
	abs, err := ToAbsolute(raw)
	if err != nil {
		return NormalizedBox{}, err
	}

	corners := Corners(abs, raw.Rotation)
	box, err := FromCornersToRelative(corners, raw.ImageWidth, raw.ImageHeight, c.policy)
	if err != nil {
		return NormalizedBox{}, err
	}

	code, err := c.labels.ClassCode(raw.Label)
	if err != nil {
		return NormalizedBox{}, err
	}
	box.ClassCode = code

	if box.IsDegenerate() {
		return box, errors.Wrapf(ErrDegenerateBox, "%q with size %vx%v", raw.Label, box.Width,
			box.Height)
	}
	return box, nil
}

// FromYOLOToLS converts a YOLO box back to an unrotated Label Studio rectangle for an image of
// the given size. Edges outside the image are clipped to it.
func (c *Converter) FromYOLOToLS(box NormalizedBox, imageWidth, imageHeight int) (
	RawAnnotation, error) {

	name, err := c.labels.ClassName(box.ClassCode)
	if err != nil {
		return RawAnnotation{}, err
	}
	if imageWidth <= 0 || imageHeight <= 0 {
		return RawAnnotation{}, errors.Wrapf(ErrInvalidGeometry, "image size %dx%d",
			imageWidth, imageHeight)
	}
	for _, v := range []float64{box.XCenter, box.YCenter, box.Width, box.Height} {
		if !isFinite(v) {
			return RawAnnotation{}, errors.Wrapf(ErrInvalidGeometry, "box value %v", v)
		}
	}
	if box.Width < 0 || box.Height < 0 {
		return RawAnnotation{}, errors.Wrapf(ErrInvalidGeometry, "box size %vx%v", box.Width,
			box.Height)
	}

	xmin, ymin, xmax, ymax := box.Edges()
	xmin, xmax = math.Max(0, xmin), math.Min(1, xmax)
	ymin, ymax = math.Max(0, ymin), math.Min(1, ymax)

	return RawAnnotation{
		Label:       name,
		X:           xmin * 100,
		Y:           ymin * 100,
		Width:       math.Max(0, xmax-xmin) * 100,
		Height:      math.Max(0, ymax-ymin) * 100,
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
	}, nil
}
