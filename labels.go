package lsyolo

// The label table maps class names to the integer codes used in YOLO label files.

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LabelTable is an ordered set of unique class names. The index of a name is its class code.
//
// A LabelTable is immutable once constructed and may be shared between goroutines.
type LabelTable struct {
	names []string
	codes map[string]int
}

// NewLabelTable creates a table from names, keeping their order. Empty and duplicate names
// are rejected.
func NewLabelTable(names []string) (*LabelTable, error) {
	t := &LabelTable{
		names: make([]string, len(names)),
		codes: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty label name at index %d", i)
		}
		if j, ok := t.codes[name]; ok {
			return nil, fmt.Errorf("duplicate label %q at indices %d and %d", name, j, i)
		}
		t.names[i] = name
		t.codes[name] = i
	}

	return t, nil
}

// Labels returns a copy of the class names in class code order.
func (t *LabelTable) Labels() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

// Len is the number of classes.
func (t *LabelTable) Len() int {
	return len(t.names)
}

// ClassCode returns the class code for name. There is no fallback class: a name missing from
// the table yields ErrUnknownLabel.
func (t *LabelTable) ClassCode(name string) (int, error) {
	code, ok := t.codes[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownLabel, "%q", name)
	}
	return code, nil
}

// ClassName returns the class name for code.
func (t *LabelTable) ClassName(code int) (string, error) {
	if code < 0 || code >= len(t.names) {
		return "", errors.Wrapf(ErrIndexOutOfRange, "code %d, table size %d", code, len(t.names))
	}
	return t.names[code], nil
}

// LoadLabels reads a label table from a text file with one class name per line. Surrounding
// whitespace is trimmed; blank lines and lines starting with '#' are skipped.
func LoadLabels(path string) (*LabelTable, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}

	t, err := NewLabelTable(names)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid label file %q", path)
	}
	Logger.Info("Loaded labels", zap.Int("count", t.Len()), zap.String("path", path))
	return t, nil
}

// LabelsFromDir builds a label table from the names of the sub-directories of dirPath, in
// lexical order. This supports datasets laid out as one directory per class.
func LabelsFromDir(dirPath string) (*LabelTable, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read label directory %q", dirPath)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no label directories in %q", dirPath)
	}

	return NewLabelTable(names)
}
