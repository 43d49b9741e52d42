package lsyolo

// Label Studio specific functionality.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Result types and control names used for rectangles.
const (
	lsRectangleLabels = "rectanglelabels"
	lsFromName        = "label"
	lsToName          = "image"
	lsImageKey        = "image"
)

// LSValue is the geometry and label of a rectangle result. Coordinates are percentages of the
// image size.
type LSValue struct {
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	Width           float64  `json:"width"`
	Height          float64  `json:"height"`
	Rotation        float64  `json:"rotation"`
	RectangleLabels []string `json:"rectanglelabels,omitempty"`
}

// LSResult is a single region of an annotation or prediction.
type LSResult struct {
	ID             string   `json:"id,omitempty"`
	Type           string   `json:"type"`
	FromName       string   `json:"from_name,omitempty"`
	ToName         string   `json:"to_name,omitempty"`
	OriginalWidth  int      `json:"original_width,omitempty"`
	OriginalHeight int      `json:"original_height,omitempty"`
	ImageRotation  float64  `json:"image_rotation"`
	Score          *float64 `json:"score,omitempty"`
	Value          LSValue  `json:"value"`
}

// LSAnnotation is a completed annotation or a model prediction of a task.
type LSAnnotation struct {
	ID           interface{} `json:"id,omitempty"` // Numeric in exports, a file name after ChangeID.
	Result       []LSResult  `json:"result"`
	WasCancelled bool        `json:"was_cancelled,omitempty"`
	ModelVersion string      `json:"model_version,omitempty"`
	Score        *float64    `json:"score,omitempty"`
}

// LSTask is a Label Studio task: one image with its annotations and predictions.
type LSTask struct {
	ID          interface{}            `json:"id,omitempty"`
	Data        map[string]interface{} `json:"data"`
	Annotations []LSAnnotation         `json:"annotations,omitempty"`
	Predictions []LSAnnotation         `json:"predictions,omitempty"`
	FilePath    string                 `json:"-"` // The export file the task was read from.
}

// Image returns the image reference of the task, or "" if there is none.
func (t LSTask) Image() string {
	s, _ := t.Data[lsImageKey].(string)
	return s
}

// Results returns the regions of the latest annotation that was not cancelled. Tasks without
// annotations fall back to their latest prediction.
func (t LSTask) Results() []LSResult {
	for i := len(t.Annotations) - 1; i >= 0; i-- {
		if !t.Annotations[i].WasCancelled {
			return t.Annotations[i].Result
		}
	}
	if n := len(t.Predictions); n > 0 {
		return t.Predictions[n-1].Result
	}
	return nil
}

// RawAnnotations extracts the rectangles of the task. Results of other types are ignored.
// Rectangles that cannot be represented are returned as errors wrapping ErrMalformedRecord.
// The image size is zero when the export does not record it.
func (t LSTask) RawAnnotations() ([]RawAnnotation, []error) {
	results := t.Results()
	raws := make([]RawAnnotation, 0, len(results))
	var errs []error

	for _, r := range results {
		if r.Type != lsRectangleLabels {
			continue
		}
		if n := len(r.Value.RectangleLabels); n != 1 {
			errs = append(errs, errors.Wrapf(ErrMalformedRecord,
				"result %q of task %v has %d labels", r.ID, t.ID, n))
			continue
		}
		if r.ImageRotation != 0 {
			errs = append(errs, errors.Wrapf(ErrMalformedRecord,
				"result %q of task %v is on an image rotated by %v degrees", r.ID, t.ID,
				r.ImageRotation))
			continue
		}

		raws = append(raws, RawAnnotation{
			Label:       r.Value.RectangleLabels[0],
			X:           r.Value.X,
			Y:           r.Value.Y,
			Width:       r.Value.Width,
			Height:      r.Value.Height,
			Rotation:    r.Value.Rotation,
			ImageWidth:  r.OriginalWidth,
			ImageHeight: r.OriginalHeight,
		})
	}

	return raws, errs
}

// FromLabelStudio reads and parses a Label Studio JSON export from the file at path.
//
// Three layouts are accepted: a list of tasks (the project export), a single task, and a single
// annotation with "result" and "task" at the top level (the files written by Label Studio's
// target storages).
func FromLabelStudio(path string) ([]LSTask, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tasks, err := parseLabelStudio(enc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse Label Studio input from %q", path)
	}
	for i := range tasks {
		tasks[i].FilePath = path
	}

	return tasks, nil
}

func parseLabelStudio(enc []byte) ([]LSTask, error) {
	trimmed := bytes.TrimLeft(enc, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.Wrap(ErrMalformedRecord, "empty input")
	}

	switch trimmed[0] {
	case '[':
		var tasks []LSTask
		if err := json.Unmarshal(trimmed, &tasks); err != nil {
			return nil, err
		}
		return tasks, nil

	case '{':
		var obj struct {
			LSTask
			Result       []LSResult `json:"result"`
			Task         *LSTask    `json:"task"`
			WasCancelled bool       `json:"was_cancelled"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		if obj.Result == nil {
			return []LSTask{obj.LSTask}, nil
		}

		// A single annotation. Its id is the annotation id, the task is nested.
		var task LSTask
		if obj.Task != nil {
			task = *obj.Task
		}
		task.Annotations = []LSAnnotation{{
			ID:           obj.ID,
			Result:       obj.Result,
			WasCancelled: obj.WasCancelled,
		}}
		if task.Data == nil {
			task.Data = obj.Data
		}
		return []LSTask{task}, nil
	}

	return nil, errors.Wrapf(ErrMalformedRecord, "unexpected token %q", trimmed[0])
}

// ToLabelStudioTasks converts label files to Label Studio tasks carrying the boxes as
// predictions, for import as pre-annotations. imageRoot is prepended to the image file names
// to form the task's image reference, e.g. "/data/local-files/?d=images".
func ToLabelStudioTasks(data []LabelFile, conv *Converter, imageRoot, modelVersion string) (
	[]LSTask, error) {

	tasks := make([]LSTask, 0, len(data))
	for _, f := range data {
		if f.Width <= 0 || f.Height <= 0 {
			return nil, errors.Wrapf(ErrInvalidGeometry, "unknown size of image %q", f.FilePath)
		}

		results := make([]LSResult, 0, len(f.Boxes))
		for i, box := range f.Boxes {
			raw, err := conv.FromYOLOToLS(box, f.Width, f.Height)
			if err != nil {
				return nil, errors.Wrapf(err, "box %d of %q", i, f.FilePath)
			}
			results = append(results, LSResult{
				ID:             fmt.Sprintf("%s_%d", nameNoExt(f.FilePath), i),
				Type:           lsRectangleLabels,
				FromName:       lsFromName,
				ToName:         lsToName,
				OriginalWidth:  raw.ImageWidth,
				OriginalHeight: raw.ImageHeight,
				Value: LSValue{
					X:               raw.X,
					Y:               raw.Y,
					Width:           raw.Width,
					Height:          raw.Height,
					Rotation:        raw.Rotation,
					RectangleLabels: []string{raw.Label},
				},
			})
		}

		image := filepath.Base(f.FilePath)
		if imageRoot != "" {
			image = strings.TrimSuffix(imageRoot, "/") + "/" + image
		}
		tasks = append(tasks, LSTask{
			Data: map[string]interface{}{lsImageKey: image},
			Predictions: []LSAnnotation{{
				Result:       results,
				ModelVersion: modelVersion,
			}},
		})
	}

	return tasks, nil
}

// WriteLabelStudio writes the tasks to outFile as a JSON list.
func WriteLabelStudio(outFile string, tasks []LSTask) error {
	enc, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", outFile, err)
	}
	return nil
}

// ChangeID sets the top-level "id" of the JSON object in the file at path to the base name of
// the file and rewrites the file. Other fields are preserved.
func ChangeID(path string) error {
	enc, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var data map[string]interface{}
	if err := json.Unmarshal(enc, &data); err != nil {
		return errors.Wrapf(err, "failed to parse %q", path)
	}
	data["id"] = filepath.Base(path)

	enc, err = json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}

	Logger.Info("Modifications done", zap.String("path", path))
	return nil
}

// imageRefName returns the file name of a task image reference such as
// "/data/upload/3/1a2b3c4d-img.jpg" or "/data/local-files/?d=images/img.jpg".
func imageRefName(ref string) string {
	if ref == "" {
		return ""
	}
	if i := strings.Index(ref, "?d="); i >= 0 {
		ref = ref[i+len("?d="):]
	}
	if u, err := url.PathUnescape(ref); err == nil {
		ref = u
	}
	return path.Base(ref)
}

var uploadPrefix = regexp.MustCompile(`^[0-9a-f]{8}-`)

// stripUploadPrefix removes the hash Label Studio prepends to uploaded file names.
func stripUploadPrefix(name string) string {
	return uploadPrefix.ReplaceAllString(name, "")
}
