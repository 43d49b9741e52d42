package lsyolo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// filesByExtInDir returns all regular files (or symlinks) directly in dirPath whose name ends
// in ext, in lexical order. All files are returned if ext is empty.
func filesByExtInDir(dirPath, ext string) ([]string, error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil || !dirInfo.IsDir() {
		return nil, fmt.Errorf("cannot read directory %q: %v", dirPath, err)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		// ReadDir returns the entries it could read along with the error.
		Logger.Warn("Failed to access some files", zap.String("dir", dirPath), zap.Error(err))
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		mode := e.Type()
		if (!mode.IsRegular() && mode&os.ModeSymlink == 0) || !strings.HasSuffix(name, ext) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}

	return files, nil
}

// GetFiles returns the files in folder with the given extension, which is given without the
// leading dot (e.g. "json").
func GetFiles(folder, extension string) ([]string, error) {
	return filesByExtInDir(folder, "."+strings.TrimPrefix(extension, "."))
}

// ExcludeTrainingImages removes the files whose base name, ignoring the extension, matches
// one of the image names in usedForTraining. Label and image files of the same image share a
// base name, so either kind can be filtered against a list of image names.
func ExcludeTrainingImages(files, usedForTraining []string) []string {
	used := make(map[string]bool, len(usedForTraining))
	for _, name := range usedForTraining {
		used[nameNoExt(name)] = true
	}

	kept := make([]string, 0, len(files))
	for _, f := range files {
		if !used[nameNoExt(f)] {
			kept = append(kept, f)
		}
	}
	return kept
}

// LoadDataFromFiles returns the whitespace-trimmed lines of all files, in order.
func LoadDataFromFiles(paths []string) ([]string, error) {
	var data []string
	for _, path := range paths {
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			data = append(data, strings.TrimSpace(line))
		}
	}
	return data, nil
}

// nameNoExt returns the base name of path without its extension.
func nameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// mapFileNamesToExtensions maps the base names of the given file paths, with the file type
// extensions stripped off, to the file extension (without the dot).
func mapFileNamesToExtensions(filePaths []string) map[string]string {
	mapping := make(map[string]string, len(filePaths))
	for _, path := range filePaths {
		_, baseNoExt, ext, err := splitPath(path)
		if err != nil {
			Logger.Warn("Skipping file", zap.Error(err))
			continue
		}
		mapping[baseNoExt] = ext
	}

	return mapping
}

// labelParserFn parses a label file given the label and image file paths.
type labelParserFn func(labelPath, imagePath string) (LabelFile, error)

// parseLabelsWithOneToOneImages matches label files in labelDir, with file extension labelFileExt
// (e.g. ".txt") by file name to images in imageDir (with an arbitrary file extension). It then
// invokes parse on these path pairs. Files that fail to parse are logged and skipped.
func parseLabelsWithOneToOneImages(labelDir, labelFileExt, imageDir string, parse labelParserFn) (
	[]LabelFile, error) {

	labelFiles, err := filesByExtInDir(labelDir, labelFileExt)
	if err != nil {
		return nil, err
	}
	Logger.Info("Parsing labels", zap.Int("files", len(labelFiles)))

	imageFiles, err := filesByExtInDir(imageDir, "")
	if err != nil {
		return nil, err
	}
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)

	data := make([]LabelFile, 0, len(labelFiles))
	for _, labelPath := range labelFiles {
		_, baseNoExt, _, err := splitPath(labelPath)
		if err != nil {
			Logger.Warn("Error while parsing, skipping", zap.String("path", labelPath), zap.Error(err))
			continue
		}
		imageExt, found := imageNamesToExt[baseNoExt]
		if !found {
			Logger.Warn("No corresponding image file, skipping", zap.String("path", labelPath))
			continue
		}
		imagePath := filepath.Join(imageDir, baseNoExt+"."+imageExt)

		fileData, err := parse(labelPath, imagePath)
		if err != nil {
			Logger.Warn("Error while parsing, skipping", zap.String("path", labelPath), zap.Error(err))
			continue
		}

		data = append(data, fileData)
	}

	sort.Slice(data, func(i, j int) bool { return data[i].FilePath < data[j].FilePath })
	return data, nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read file %q", path)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q as lines", path)
	}

	return lines, nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
