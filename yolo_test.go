package lsyolo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestFormatYOLOLine(t *testing.T) {
	tests := []struct {
		box  NormalizedBox
		want string
	}{
		{NormalizedBox{ClassCode: 0, XCenter: 0.25, YCenter: 0.4, Width: 0.3, Height: 0.4},
			"0 0.250000 0.400000 0.300000 0.400000"},
		{NormalizedBox{ClassCode: 12, XCenter: 1.0 / 3, YCenter: 0.5, Width: 2.0 / 3, Height: 1},
			"12 0.333333 0.500000 0.666667 1.000000"},
		{NormalizedBox{ClassCode: 1, XCenter: -0.1, YCenter: 0.35, Width: 0.4, Height: 0.3},
			"1 -0.100000 0.350000 0.400000 0.300000"},
	}

	for _, tt := range tests {
		if got := FormatYOLOLine(tt.box); got != tt.want {
			t.Errorf("FormatYOLOLine(%+v) = %q, expected %q", tt.box, got, tt.want)
		}
	}
}

func TestParseYOLOLine(t *testing.T) {
	for _, line := range []string{
		"3 0.5 0.25 0.1 0.2",
		"  3\t0.500000 0.250000 0.100000 0.200000  ",
		"3 0.5 0.25 0.1 0.2 0.87",
	} {
		box, err := ParseYOLOLine(line)
		if err != nil {
			t.Fatalf("ParseYOLOLine(%q): %v", line, err)
		}
		want := NormalizedBox{ClassCode: 3, XCenter: 0.5, YCenter: 0.25, Width: 0.1, Height: 0.2}
		if box != want {
			t.Errorf("ParseYOLOLine(%q) = %+v, expected %+v", line, box, want)
		}
	}

	for _, line := range []string{
		"",
		"3 0.5 0.25 0.1",
		"cat 0.5 0.25 0.1 0.2",
		"3 0.5 x 0.1 0.2",
		"3.5 0.5 0.25 0.1 0.2",
		"3 0.5 0.25 0.1 0.2 0.9 1",
	} {
		if _, err := ParseYOLOLine(line); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("ParseYOLOLine(%q): expected ErrMalformedRecord, got %v", line, err)
		}
	}
}

func TestWriteAndReadYOLO(t *testing.T) {
	imageDir := t.TempDir()
	labelDir := t.TempDir()

	writePNG(t, filepath.Join(imageDir, "a.png"), 64, 32)
	writePNG(t, filepath.Join(imageDir, "b.png"), 10, 20)

	data := []LabelFile{
		{
			FilePath: filepath.Join(imageDir, "a.png"),
			Width:    64,
			Height:   32,
			Boxes: []NormalizedBox{
				{ClassCode: 0, XCenter: 0.25, YCenter: 0.5, Width: 0.5, Height: 0.25},
				{ClassCode: 1, XCenter: 0.75, YCenter: 0.125, Width: 0.125, Height: 0.0625},
			},
		},
		{FilePath: filepath.Join(imageDir, "b.png"), Width: 10, Height: 20},
	}

	if err := WriteYOLO(labelDir, data); err != nil {
		t.Fatalf("WriteYOLO: %v", err)
	}

	enc, err := os.ReadFile(filepath.Join(labelDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want := "0 0.250000 0.500000 0.500000 0.250000\n1 0.750000 0.125000 0.125000 0.062500\n"
	if string(enc) != want {
		t.Errorf("a.txt = %q, expected %q", enc, want)
	}
	if info, err := os.Stat(filepath.Join(labelDir, "b.txt")); err != nil || info.Size() != 0 {
		t.Errorf("expected an empty b.txt: %v", err)
	}

	// A label file without an image is skipped.
	writeFile(t, labelDir, "c.txt", "0 0.5 0.5 0.1 0.1\n")

	read, err := FromYOLO(labelDir, imageDir)
	if err != nil {
		t.Fatalf("FromYOLO: %v", err)
	}
	if len(read) != 2 {
		t.Fatalf("FromYOLO returned %d files, expected 2", len(read))
	}
	for i := range data {
		got, exp := read[i], data[i]
		if got.FilePath != exp.FilePath || got.Width != exp.Width || got.Height != exp.Height {
			t.Errorf("file %d: got %s %dx%d, expected %s %dx%d", i, got.FilePath, got.Width,
				got.Height, exp.FilePath, exp.Width, exp.Height)
		}
		if len(got.Boxes) != len(exp.Boxes) {
			t.Fatalf("file %d: got %d boxes, expected %d", i, len(got.Boxes), len(exp.Boxes))
		}
		for j := range exp.Boxes {
			if !boxesEqual(got.Boxes[j], exp.Boxes[j], 1e-6) {
				t.Errorf("file %d, box %d: got %+v, expected %+v", i, j, got.Boxes[j],
					exp.Boxes[j])
			}
		}
	}
}

func TestWriteYOLOMissingDir(t *testing.T) {
	err := WriteYOLO(filepath.Join(t.TempDir(), "missing"), []LabelFile{{FilePath: "a.png"}})
	if err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestWriteClassNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	if err := WriteClassNames(path, mustLabels(t, "cat", "dog")); err != nil {
		t.Fatalf("WriteClassNames: %v", err)
	}

	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if got := strings.Join(labels.Labels(), ","); got != "cat,dog" {
		t.Errorf("labels = %q", got)
	}
}
