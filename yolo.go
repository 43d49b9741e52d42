package lsyolo

// YOLO label file specific functionality.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FormatYOLOLine formats a box as "<class_code> <x_center> <y_center> <width> <height>".
func FormatYOLOLine(b NormalizedBox) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", b.ClassCode, b.XCenter, b.YCenter, b.Width,
		b.Height)
}

// ParseYOLOLine parses a line written by FormatYOLOLine. A sixth value, the confidence that
// YOLO appends to saved predictions, is accepted and ignored.
func ParseYOLOLine(line string) (NormalizedBox, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 5 && len(tokens) != 6 {
		return NormalizedBox{}, errors.Wrapf(ErrMalformedRecord, "expected 5 values in %q", line)
	}

	code, err := strconv.Atoi(tokens[0])
	if err != nil {
		return NormalizedBox{}, errors.Wrapf(ErrMalformedRecord, "class code in %q", line)
	}

	var v [4]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(tokens[i+1], 64); err != nil {
			return NormalizedBox{}, errors.Wrapf(ErrMalformedRecord, "unexpected values in %q", line)
		}
	}

	return NormalizedBox{ClassCode: code, XCenter: v[0], YCenter: v[1], Width: v[2],
		Height: v[3]}, nil
}

// FromYOLO reads the YOLO label files in labelDir and matches them to the images in imageDir,
// whose headers provide the image sizes.
func FromYOLO(labelDir, imageDir string) ([]LabelFile, error) {
	return parseLabelsWithOneToOneImages(labelDir, ".txt", imageDir, parseYOLOFile)
}

// parseYOLOFile parses the label file at labelPath for the image at imagePath.
func parseYOLOFile(labelPath, imagePath string) (LabelFile, error) {
	lines, err := readLines(labelPath)
	if err != nil {
		return LabelFile{}, err
	}

	config, _, err := decodeImageConfig(imagePath)
	if err != nil {
		return LabelFile{}, err
	}

	f := LabelFile{
		Boxes:    make([]NormalizedBox, 0, len(lines)),
		FilePath: imagePath,
		Width:    config.Width,
		Height:   config.Height,
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		box, err := ParseYOLOLine(line)
		if err != nil {
			return LabelFile{}, err
		}
		f.Boxes = append(f.Boxes, box)
	}

	return f, nil
}

// WriteYOLO writes one label file per element of data to dirPath. The file name is the image
// file name with a .txt extension. Images without boxes get an empty file.
func WriteYOLO(dirPath string, data []LabelFile) error {
	dirInfo, err := os.Stat(dirPath)
	if err != nil || !dirInfo.IsDir() {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}

	for _, fileData := range data {
		filePath := filepath.Join(dirPath, nameNoExt(fileData.FilePath)+".txt")
		if err := writeYOLOFile(filePath, fileData.Boxes); err != nil {
			return err
		}
	}

	return nil
}

func writeYOLOFile(path string, boxes []NormalizedBox) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, b := range boxes {
		if _, err := fmt.Fprintln(w, FormatYOLOLine(b)); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteClassNames writes the class names to path, one per line in class code order.
func WriteClassNames(path string, labels *LabelTable) error {
	content := strings.Join(labels.Labels(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}
