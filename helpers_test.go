package lsyolo

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

const tolerance = 1e-9

// boxesEqual compares two boxes, the class codes exactly and the coordinates within tol.
func boxesEqual(a, b NormalizedBox, tol float64) bool {
	return a.ClassCode == b.ClassCode &&
		scalar.EqualWithinAbs(a.XCenter, b.XCenter, tol) &&
		scalar.EqualWithinAbs(a.YCenter, b.YCenter, tol) &&
		scalar.EqualWithinAbs(a.Width, b.Width, tol) &&
		scalar.EqualWithinAbs(a.Height, b.Height, tol)
}

func cornersEqual(a, b CornerSet, tol float64) bool {
	for i := range a {
		if !scalar.EqualWithinAbs(a[i].X, b[i].X, tol) || !scalar.EqualWithinAbs(a[i].Y, b[i].Y, tol) {
			return false
		}
	}
	return true
}

// writePNG creates an empty PNG image of the given size at path.
func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// writeFile writes content to name in dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func mustLabels(t *testing.T, names ...string) *LabelTable {
	t.Helper()

	labels, err := NewLabelTable(names)
	if err != nil {
		t.Fatalf("NewLabelTable(%v): %v", names, err)
	}
	return labels
}
