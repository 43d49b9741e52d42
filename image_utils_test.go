package lsyolo

import (
	"image"
	"image/gif"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestDecodeImageConfigFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	dir := t.TempDir()

	tests := []struct {
		name   string
		format string
		encode func(w io.Writer, m image.Image) error
	}{
		{"a.bmp", "bmp", bmp.Encode},
		{"a.tiff", "tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }},
		{"a.jpg", "jpeg", func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, nil) }},
		{"a.gif", "gif", func(w io.Writer, m image.Image) error { return gif.Encode(w, m, nil) }},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		err = tt.encode(f, img)
		f.Close()
		if err != nil {
			t.Fatalf("encode %s: %v", tt.name, err)
		}

		config, format, err := decodeImageConfig(path)
		if err != nil {
			t.Errorf("decodeImageConfig(%s): %v", tt.name, err)
			continue
		}
		if format != tt.format || config.Width != 64 || config.Height != 48 {
			t.Errorf("%s: got %s %dx%d", tt.name, format, config.Width, config.Height)
		}
	}

	if _, _, err := decodeImageConfig(writeFile(t, dir, "a.txt", "not an image")); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestResizeImage(t *testing.T) {
	portrait := image.NewRGBA(image.Rect(0, 0, 100, 200))

	resized, sx, sy := resizeImage(portrait, 100, 0, imaging.Box, imaging.Linear)
	if b := resized.Bounds(); b.Dx() != 50 || b.Dy() != 100 {
		t.Errorf("resized to %dx%d, expected 50x100", b.Dx(), b.Dy())
	}
	if sx != 0.5 || sy != 0.5 {
		t.Errorf("scale = %v, %v, expected 0.5, 0.5", sx, sy)
	}
}
