package lsyolo

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestToAbsolute(t *testing.T) {
	raw := RawAnnotation{Label: "cat", X: 10, Y: 20, Width: 30, Height: 40,
		ImageWidth: 200, ImageHeight: 50}

	box, err := ToAbsolute(raw)
	if err != nil {
		t.Fatalf("ToAbsolute: %v", err)
	}

	want := AbsoluteBox{X: 20, Y: 10, Width: 60, Height: 20}
	if !scalar.EqualWithinAbs(box.X, want.X, tolerance) ||
		!scalar.EqualWithinAbs(box.Y, want.Y, tolerance) ||
		!scalar.EqualWithinAbs(box.Width, want.Width, tolerance) ||
		!scalar.EqualWithinAbs(box.Height, want.Height, tolerance) {
		t.Errorf("ToAbsolute = %+v, expected %+v", box, want)
	}
}

func TestToAbsoluteInvalid(t *testing.T) {
	valid := RawAnnotation{Label: "cat", X: 10, Y: 20, Width: 30, Height: 40,
		ImageWidth: 100, ImageHeight: 100}

	tests := []struct {
		name   string
		modify func(r *RawAnnotation)
	}{
		{"negative x", func(r *RawAnnotation) { r.X = -1 }},
		{"negative height", func(r *RawAnnotation) { r.Height = -0.5 }},
		{"NaN width", func(r *RawAnnotation) { r.Width = math.NaN() }},
		{"infinite y", func(r *RawAnnotation) { r.Y = math.Inf(1) }},
		{"infinite rotation", func(r *RawAnnotation) { r.Rotation = math.Inf(-1) }},
		{"zero image width", func(r *RawAnnotation) { r.ImageWidth = 0 }},
		{"negative image height", func(r *RawAnnotation) { r.ImageHeight = -10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid
			tt.modify(&raw)
			if _, err := ToAbsolute(raw); !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestCornersWithoutRotation(t *testing.T) {
	boxes := []AbsoluteBox{
		{X: 10, Y: 20, Width: 30, Height: 40},
		{X: 0.1, Y: 0.7, Width: 123.456, Height: 0.3},
		{X: 1e-7, Y: 640, Width: 1919.9999, Height: 1e-3},
		{X: 5, Y: 5, Width: 0, Height: 0},
	}

	for _, box := range boxes {
		want := CornerSet{
			{box.X, box.Y},
			{box.X + box.Width, box.Y},
			{box.X + box.Width, box.Y + box.Height},
			{box.X, box.Y + box.Height},
		}
		for _, rotation := range []float64{0, 360, -360, 720} {
			if got := Corners(box, rotation); got != want {
				t.Errorf("Corners(%+v, %v) = %v, expected exactly %v", box, rotation, got, want)
			}
		}
	}
}

func TestCornersRotation(t *testing.T) {
	box := AbsoluteBox{X: 10, Y: 20, Width: 30, Height: 40}

	for _, degrees := range []float64{15, 45, 90, 120, 180, 200, 270, 333.3, -30} {
		// Clockwise on screen is the standard rotation with the y axis pointing down.
		rad := degrees * math.Pi / 180
		cos, sin := math.Cos(rad), math.Sin(rad)
		rotate := func(dx, dy float64) Point {
			return Point{X: box.X + dx*cos - dy*sin, Y: box.Y + dx*sin + dy*cos}
		}
		want := CornerSet{
			rotate(0, 0),
			rotate(box.Width, 0),
			rotate(box.Width, box.Height),
			rotate(0, box.Height),
		}

		if got := Corners(box, degrees); !cornersEqual(got, want, tolerance) {
			t.Errorf("Corners(%v°) = %v, expected %v", degrees, got, want)
		}
	}
}

func TestCornersRotation90(t *testing.T) {
	got := Corners(AbsoluteBox{X: 10, Y: 20, Width: 30, Height: 40}, 90)
	want := CornerSet{{10, 20}, {10, 50}, {-30, 50}, {-30, 20}}
	if !cornersEqual(got, want, tolerance) {
		t.Errorf("Corners = %v, expected %v", got, want)
	}
}

func TestCornersKeepRectangleShape(t *testing.T) {
	box := AbsoluteBox{X: 50, Y: 60, Width: 30, Height: 12}
	dist := func(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

	for _, degrees := range []float64{7, 37, 101, 250} {
		c := Corners(box, degrees)
		if c[0] != (Point{box.X, box.Y}) {
			t.Errorf("%v°: pivot moved to %v", degrees, c[0])
		}
		sides := []struct{ got, want float64 }{
			{dist(c[0], c[1]), box.Width},
			{dist(c[1], c[2]), box.Height},
			{dist(c[2], c[3]), box.Width},
			{dist(c[3], c[0]), box.Height},
			{dist(c[0], c[2]), dist(c[1], c[3])},
		}
		for i, s := range sides {
			if !scalar.EqualWithinAbs(s.got, s.want, 1e-9) {
				t.Errorf("%v°: side %d has length %v, expected %v", degrees, i, s.got, s.want)
			}
		}
	}
}

func TestCornersDegenerate(t *testing.T) {
	c := Corners(AbsoluteBox{X: 10, Y: 10, Width: 0, Height: 20}, 30)
	if c[0] != c[1] || c[2] != c[3] {
		t.Errorf("zero width box should have coinciding corners, got %v", c)
	}

	c = Corners(AbsoluteBox{X: 10, Y: 10}, 45)
	for i := range c {
		if c[i] != (Point{10, 10}) {
			t.Errorf("zero size box corner %d = %v, expected the pivot", i, c[i])
		}
	}
}

func TestReductionWithoutRotation(t *testing.T) {
	raws := []RawAnnotation{
		{X: 10, Y: 20, Width: 30, Height: 40, ImageWidth: 100, ImageHeight: 100},
		{X: 0, Y: 0, Width: 100, Height: 100, ImageWidth: 640, ImageHeight: 480},
		{X: 33.3, Y: 66.6, Width: 12.5, Height: 0.75, ImageWidth: 1920, ImageHeight: 1080},
		{X: 90, Y: 1, Width: 5, Height: 98, ImageWidth: 7, ImageHeight: 13},
	}

	for _, raw := range raws {
		abs, err := ToAbsolute(raw)
		if err != nil {
			t.Fatalf("ToAbsolute(%+v): %v", raw, err)
		}

		want := NormalizedBox{
			XCenter: raw.X/100 + raw.Width/200,
			YCenter: raw.Y/100 + raw.Height/200,
			Width:   raw.Width / 100,
			Height:  raw.Height / 100,
		}
		for _, policy := range []BoundsPolicy{ClampCorners, PassThrough, ClipPolygon} {
			got, err := FromCornersToRelative(Corners(abs, 0), raw.ImageWidth, raw.ImageHeight, policy)
			if err != nil {
				t.Fatalf("FromCornersToRelative(%v): %v", policy, err)
			}
			if !boxesEqual(got, want, tolerance) {
				t.Errorf("%v: reduced %+v to %+v, expected %+v", policy, raw, got, want)
			}
		}
	}
}

func TestReductionScaleInvariance(t *testing.T) {
	raw := RawAnnotation{X: 40, Y: 10, Width: 50, Height: 30, Rotation: 30,
		ImageWidth: 160, ImageHeight: 90}

	reduce := func(r RawAnnotation, policy BoundsPolicy) NormalizedBox {
		abs, err := ToAbsolute(r)
		if err != nil {
			t.Fatalf("ToAbsolute: %v", err)
		}
		box, err := FromCornersToRelative(Corners(abs, r.Rotation), r.ImageWidth, r.ImageHeight,
			policy)
		if err != nil {
			t.Fatalf("FromCornersToRelative: %v", err)
		}
		return box
	}

	for _, policy := range []BoundsPolicy{ClampCorners, PassThrough, ClipPolygon} {
		base := reduce(raw, policy)
		for _, factor := range []int{2, 3, 12} {
			scaled := raw
			scaled.ImageWidth *= factor
			scaled.ImageHeight *= factor
			// The clipper works on a fixed point grid, hence the looser tolerance.
			if got := reduce(scaled, policy); !boxesEqual(got, base, 1e-6) {
				t.Errorf("%v: scaling by %d changed %+v to %+v", policy, factor, base, got)
			}
		}
	}
}

func TestBoundsPolicies(t *testing.T) {
	sqrt3 := math.Sqrt(3)

	tests := []struct {
		name     string
		box      AbsoluteBox
		rotation float64
		want     map[BoundsPolicy]NormalizedBox
	}{
		{
			// Corners (10,20) (10,50) (-30,50) (-30,20).
			name:     "quarter turn",
			box:      AbsoluteBox{X: 10, Y: 20, Width: 30, Height: 40},
			rotation: 90,
			want: map[BoundsPolicy]NormalizedBox{
				PassThrough:  {XCenter: -0.1, YCenter: 0.35, Width: 0.4, Height: 0.3},
				ClampCorners: {XCenter: 0.05, YCenter: 0.35, Width: 0.1, Height: 0.3},
				ClipPolygon:  {XCenter: 0.05, YCenter: 0.35, Width: 0.1, Height: 0.3},
			},
		},
		{
			// Corners (10,20) (-10,20+20√3) (-10-10√3,10+20√3) (10-10√3,10). Only the
			// triangle (10,20) (0,20+10√3) (0,20-10/√3) is inside the image.
			name:     "third turn",
			box:      AbsoluteBox{X: 10, Y: 20, Width: 40, Height: 20},
			rotation: 120,
			want: map[BoundsPolicy]NormalizedBox{
				PassThrough: {
					XCenter: (10 - 10 - 10*sqrt3) / 2 / 100,
					YCenter: (10 + 10 + 20*sqrt3) / 2 / 100,
					Width:   (20 + 10*sqrt3) / 100,
					Height:  (10 + 20*sqrt3) / 100,
				},
				ClampCorners: {
					XCenter: 0.05,
					YCenter: (10 + 20 + 20*sqrt3) / 2 / 100,
					Width:   0.1,
					Height:  (10 + 20*sqrt3) / 100,
				},
				ClipPolygon: {
					XCenter: 0.05,
					YCenter: (20 - 10/sqrt3 + 20 + 10*sqrt3) / 2 / 100,
					Width:   0.1,
					Height:  (10*sqrt3 + 10/sqrt3) / 100,
				},
			},
		},
	}

	for _, tt := range tests {
		corners := Corners(tt.box, tt.rotation)
		for policy, want := range tt.want {
			got, err := FromCornersToRelative(corners, 100, 100, policy)
			if err != nil {
				t.Fatalf("%s, %v: %v", tt.name, policy, err)
			}
			if !boxesEqual(got, want, 1e-6) {
				t.Errorf("%s, %v: got %+v, expected %+v", tt.name, policy, got, want)
			}
		}
	}
}

func TestClampKeepsBoxInsideImage(t *testing.T) {
	for _, rotation := range []float64{10, 45, 80, 135, 190, 300} {
		corners := Corners(AbsoluteBox{X: 90, Y: 5, Width: 40, Height: 30}, rotation)
		for _, policy := range []BoundsPolicy{ClampCorners, ClipPolygon} {
			box, err := FromCornersToRelative(corners, 100, 100, policy)
			if err != nil {
				t.Fatalf("%v°, %v: %v", rotation, policy, err)
			}
			xmin, ymin, xmax, ymax := box.Edges()
			const eps = 1e-9
			if xmin < -eps || ymin < -eps || xmax > 1+eps || ymax > 1+eps {
				t.Errorf("%v°, %v: box %+v leaves the image", rotation, policy, box)
			}
		}
	}
}

func TestClipOutsideImage(t *testing.T) {
	corners := Corners(AbsoluteBox{X: -50, Y: 10, Width: 20, Height: 20}, 10)

	box, err := FromCornersToRelative(corners, 100, 100, ClipPolygon)
	if err != nil {
		t.Fatalf("FromCornersToRelative: %v", err)
	}
	if box != (NormalizedBox{}) {
		t.Errorf("expected the zero box, got %+v", box)
	}
	if !box.IsDegenerate() {
		t.Error("a box outside the image should be degenerate")
	}
}

func TestFromCornersToRelativeInvalid(t *testing.T) {
	corners := Corners(AbsoluteBox{X: 10, Y: 10, Width: 10, Height: 10}, 0)

	if _, err := FromCornersToRelative(corners, 0, 100, ClampCorners); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("zero width image: expected ErrInvalidGeometry, got %v", err)
	}

	bad := corners
	bad[2].Y = math.NaN()
	if _, err := FromCornersToRelative(bad, 100, 100, PassThrough); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("NaN corner: expected ErrInvalidGeometry, got %v", err)
	}

	if _, err := FromCornersToRelative(corners, 100, 100, BoundsPolicy(42)); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestParseBoundsPolicy(t *testing.T) {
	for _, p := range []BoundsPolicy{ClampCorners, PassThrough, ClipPolygon} {
		got, err := ParseBoundsPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseBoundsPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseBoundsPolicy("crop"); err == nil {
		t.Error("expected an error for an unknown policy name")
	}
}
