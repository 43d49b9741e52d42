package lsyolo

// Rectangle geometry: percent to pixel conversion, rotation about the top-left corner and
// reduction of rotated corners to a normalized axis-aligned box.

import (
	"fmt"
	"math"

	clipper "github.com/ctessum/go.clipper"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// AbsoluteBox is an unrotated box in pixels. (X, Y) is the top-left corner.
type AbsoluteBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Point is a pixel position. Y grows downwards.
type Point struct {
	X float64
	Y float64
}

// CornerSet holds the corners of a rectangle in the order top-left, top-right, bottom-right,
// bottom-left of the unrotated rectangle.
type CornerSet [4]Point

// BoundsPolicy selects how FromCornersToRelative treats corners outside the image.
type BoundsPolicy int

// The supported bounds policies.
const (
	// ClampCorners clamps every corner to the image before the enclosing box is computed.
	ClampCorners BoundsPolicy = iota
	// PassThrough keeps corners as they are. The normalized values may leave [0, 1].
	PassThrough
	// ClipPolygon intersects the rotated rectangle with the image and encloses the
	// intersection. This is the tightest box of the visible part of the object.
	ClipPolygon
)

func (p BoundsPolicy) String() string {
	switch p {
	case ClampCorners:
		return "clamp"
	case PassThrough:
		return "pass"
	case ClipPolygon:
		return "clip"
	}
	return fmt.Sprintf("BoundsPolicy(%d)", int(p))
}

// ParseBoundsPolicy is the inverse of BoundsPolicy.String.
func ParseBoundsPolicy(s string) (BoundsPolicy, error) {
	switch s {
	case "clamp":
		return ClampCorners, nil
	case "pass":
		return PassThrough, nil
	case "clip":
		return ClipPolygon, nil
	}
	return 0, fmt.Errorf("unknown bounds policy %q", s)
}

// ToAbsolute converts the percentage based box of raw to pixels.
func ToAbsolute(raw RawAnnotation) (AbsoluteBox, error) {
	if err := raw.Validate(); err != nil {
		return AbsoluteBox{}, err
	}

	w := float64(raw.ImageWidth)
	h := float64(raw.ImageHeight)
	return AbsoluteBox{
		X:      raw.X / 100 * w,
		Y:      raw.Y / 100 * h,
		Width:  raw.Width / 100 * w,
		Height: raw.Height / 100 * h,
	}, nil
}

// Corners returns the corners of box after rotating it clockwise by rotationDegrees about its
// top-left corner. Zero-area boxes are valid and yield coinciding corners.
func Corners(box AbsoluteBox, rotationDegrees float64) CornerSet {
	// Corner offsets from the pivot, one column per corner.
	offsets := mat.NewDense(2, 4, []float64{
		0, box.Width, box.Width, 0,
		0, 0, box.Height, box.Height,
	})

	sin, cos := sinCosDegrees(rotationDegrees)
	rotation := mat.NewDense(2, 2, []float64{
		cos, -sin,
		sin, cos,
	})

	var rotated mat.Dense
	rotated.Mul(rotation, offsets)

	var corners CornerSet
	for i := range corners {
		corners[i] = Point{
			X: box.X + rotated.At(0, i),
			Y: box.Y + rotated.At(1, i),
		}
	}
	return corners
}

// sinCosDegrees returns sin and cos of the angle, exact for multiples of 90 degrees.
func sinCosDegrees(degrees float64) (sin, cos float64) {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}

	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(d * math.Pi / 180)
}

// FromCornersToRelative computes the smallest axis-aligned box enclosing corners and
// normalizes it to the image size. Corners outside the image are handled according to
// policy. The class code of the result is left at zero.
func FromCornersToRelative(corners CornerSet, imageWidth, imageHeight int,
	policy BoundsPolicy) (NormalizedBox, error) {

	if imageWidth <= 0 || imageHeight <= 0 {
		return NormalizedBox{}, errors.Wrapf(ErrInvalidGeometry, "image size %dx%d",
			imageWidth, imageHeight)
	}
	for _, c := range corners {
		if !isFinite(c.X) || !isFinite(c.Y) {
			return NormalizedBox{}, errors.Wrapf(ErrInvalidGeometry, "corner (%v, %v)", c.X, c.Y)
		}
	}

	w := float64(imageWidth)
	h := float64(imageHeight)

	var minX, minY, maxX, maxY float64
	switch policy {
	case PassThrough:
		minX, minY, maxX, maxY = enclose(corners[:])
	case ClampCorners:
		minX, minY, maxX, maxY = enclose(clampCorners(corners, w, h))
	case ClipPolygon:
		if insideImage(corners, w, h) {
			minX, minY, maxX, maxY = enclose(corners[:])
			break
		}
		if quadArea(corners) == 0 {
			// Nothing to intersect; a line or point is handled like ClampCorners.
			minX, minY, maxX, maxY = enclose(clampCorners(corners, w, h))
			break
		}
		visible := clipToImage(corners, w, h)
		if len(visible) == 0 {
			return NormalizedBox{}, nil
		}
		minX, minY, maxX, maxY = enclose(visible)
	default:
		return NormalizedBox{}, fmt.Errorf("unsupported bounds policy %v", policy)
	}

	return NormalizedBox{
		XCenter: (minX + maxX) / 2 / w,
		YCenter: (minY + maxY) / 2 / h,
		Width:   (maxX - minX) / w,
		Height:  (maxY - minY) / h,
	}, nil
}

// enclose returns the bounds of points, which must not be empty.
func enclose(points []Point) (minX, minY, maxX, maxY float64) {
	minX, minY = points[0].X, points[0].Y
	maxX, maxY = minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

func clampCorners(corners CornerSet, w, h float64) []Point {
	clamped := make([]Point, len(corners))
	for i, c := range corners {
		clamped[i] = Point{
			X: math.Max(0, math.Min(w, c.X)),
			Y: math.Max(0, math.Min(h, c.Y)),
		}
	}
	return clamped
}

func insideImage(corners CornerSet, w, h float64) bool {
	for _, c := range corners {
		if c.X < 0 || c.X > w || c.Y < 0 || c.Y > h {
			return false
		}
	}
	return true
}

// quadArea is the shoelace area of the quadrilateral.
func quadArea(corners CornerSet) float64 {
	var sum float64
	for i, c := range corners {
		n := corners[(i+1)%len(corners)]
		sum += c.X*n.Y - n.X*c.Y
	}
	return math.Abs(sum) / 2
}

// clipScale converts pixel coordinates to the fixed point integers used by the clipper.
const clipScale = 1 << 16

// clipToImage returns the vertices of the intersection of the quadrilateral with the image
// rectangle [0, w] x [0, h]. The result is empty when they do not overlap.
func clipToImage(corners CornerSet, w, h float64) []Point {
	toFixed := func(v float64) clipper.CInt {
		return clipper.CInt(math.Round(v * clipScale))
	}

	subject := make(clipper.Path, 0, len(corners))
	for _, c := range corners {
		subject = append(subject, &clipper.IntPoint{X: toFixed(c.X), Y: toFixed(c.Y)})
	}
	image := clipper.Path{
		&clipper.IntPoint{X: 0, Y: 0},
		&clipper.IntPoint{X: toFixed(w), Y: 0},
		&clipper.IntPoint{X: toFixed(w), Y: toFixed(h)},
		&clipper.IntPoint{X: 0, Y: toFixed(h)},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(subject, clipper.PtSubject, true)
	c.AddPath(image, clipper.PtClip, true)
	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)
	if !ok {
		return nil
	}

	var points []Point
	for _, path := range solution {
		for _, p := range path {
			points = append(points, Point{
				X: float64(p.X) / clipScale,
				Y: float64(p.Y) / clipScale,
			})
		}
	}
	return points
}
