package lsyolo

// Batch conversion of Label Studio exports into a YOLO dataset.

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LabelFile holds the YOLO boxes of a single image.
type LabelFile struct {
	Boxes    []NormalizedBox
	FilePath string // The image file, or only its name when the image is not available.
	Width    int    // Image width in pixels, zero if unknown.
	Height   int    // Image height in pixels, zero if unknown.
}

// LabelFiles is the label data for a list of images.
type LabelFiles []LabelFile

// ConvertStats counts the outcome of a batch conversion.
type ConvertStats struct {
	Files       int // Export files read.
	FailedFiles int // Export files that could not be read.
	Images      int // Images with a label file.
	Boxes       int // Boxes written.
	Rejected    int // Annotations that failed to convert.
	Degenerate  int // Annotations with zero width or height, kept or not.
	Duplicates  int // Label files dropped because a later task labels the same image.
}

func (s *ConvertStats) add(o ConvertStats) {
	s.Files += o.Files
	s.FailedFiles += o.FailedFiles
	s.Images += o.Images
	s.Boxes += o.Boxes
	s.Rejected += o.Rejected
	s.Degenerate += o.Degenerate
	s.Duplicates += o.Duplicates
}

// ConvertOptions configures ConvertLabelStudio.
type ConvertOptions struct {
	// ImageDir is searched for the images referenced by the tasks. Their headers provide the
	// image size when the export lacks it. May be empty.
	ImageDir string

	// KeepDegenerate keeps boxes with zero width or height instead of dropping them.
	KeepDegenerate bool
}

// ConvertLabelStudio converts the Label Studio export files at paths concurrently.
//
// Annotations that fail to convert are logged and skipped, as are export files that cannot be
// read; neither aborts the batch. The result is sorted by image path.
//
// An image labelled by more than one task, for example by two annotations saved to target
// storage or by both a ground truth and a corrections export, gets a single label file: the one
// from the last export path in lexical order, and within that file the last task. The dropped
// label files are logged and counted in ConvertStats.Duplicates.
func ConvertLabelStudio(paths []string, conv *Converter, opts ConvertOptions) (
	LabelFiles, ConvertStats, error) {

	var total ConvertStats
	if conv == nil {
		return nil, total, errors.New("nil converter")
	}

	var images imageIndex
	if opts.ImageDir != "" {
		var err error
		if images, err = newImageIndex(opts.ImageDir); err != nil {
			return nil, total, err
		}
	}

	numTasks := 2 * runtime.NumCPU()
	if len(paths) < numTasks {
		numTasks = len(paths)
	}
	if numTasks == 0 {
		return LabelFiles{}, total, nil
	}

	type result struct {
		path  string
		files []LabelFile
		stats ConvertStats
		err   error
	}
	// source records where a label file came from, to resolve duplicates independently of the
	// order in which the workers finish.
	type source struct {
		file  LabelFile
		path  string
		index int
	}
	workQueue := make(chan string, 2*numTasks)
	results := make(chan result, 2*numTasks)

	// Convert export files concurrently from a work queue.
	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for path := range workQueue {
				files, stats, err := convertExportFile(path, images, conv, opts.KeepDegenerate)
				results <- result{path, files, stats, err}
			}
		}()
	}

	// Collect the results.
	converted := make([]source, 0, len(paths))
	var wgCollect sync.WaitGroup
	wgCollect.Add(1)
	go func() {
		defer wgCollect.Done()
		for r := range results {
			if r.err != nil {
				Logger.Warn("Error while parsing, skipping file", zap.String("path", r.path),
					zap.Error(r.err))
				total.FailedFiles++
				continue
			}
			for i, f := range r.files {
				converted = append(converted, source{f, r.path, i})
			}
			total.add(r.stats)
		}
	}()

	// Feed the work queue.
	for _, path := range paths {
		workQueue <- path
	}
	close(workQueue)

	wg.Wait()
	close(results)
	wgCollect.Wait()

	sort.Slice(converted, func(i, j int) bool {
		a, b := converted[i], converted[j]
		if a.file.FilePath != b.file.FilePath {
			return a.file.FilePath < b.file.FilePath
		}
		if a.path != b.path {
			return a.path < b.path
		}
		return a.index < b.index
	})

	// Keep the last label file of each image.
	data := make(LabelFiles, 0, len(converted))
	for i, c := range converted {
		if i+1 < len(converted) && converted[i+1].file.FilePath == c.file.FilePath {
			next := converted[i+1]
			Logger.Warn("Dropping duplicate label file", zap.String("image", c.file.FilePath),
				zap.String("path", c.path), zap.String("superseded_by", next.path),
				zap.Int("boxes", len(c.file.Boxes)))
			total.Duplicates++
			total.Images--
			total.Boxes -= len(c.file.Boxes)
			continue
		}
		data = append(data, c.file)
	}

	Logger.Info("Converted Label Studio exports", zap.Int("boxes", total.Boxes),
		zap.Int("images", total.Images), zap.Int("files", total.Files),
		zap.Int("rejected", total.Rejected), zap.Int("degenerate", total.Degenerate),
		zap.Int("duplicates", total.Duplicates))
	return data, total, nil
}

// convertExportFile converts all tasks of a single export file.
func convertExportFile(path string, images imageIndex, conv *Converter, keepDegenerate bool) (
	[]LabelFile, ConvertStats, error) {

	var stats ConvertStats
	tasks, err := FromLabelStudio(path)
	if err != nil {
		return nil, stats, err
	}
	stats.Files = 1

	files := make([]LabelFile, 0, len(tasks))
	for _, task := range tasks {
		// Resolve the image file, falling back to the export name for tasks without an image.
		name := imageRefName(task.Image())
		if name == "" {
			name = filepath.Base(path)
		}
		file := LabelFile{FilePath: name}
		if imagePath, ok := images.lookup(name); ok {
			file.FilePath = imagePath
		}

		raws, errs := task.RawAnnotations()
		for _, err := range errs {
			Logger.Warn("Skipping annotation", zap.String("path", path), zap.Error(err))
			stats.Rejected++
		}

		for _, raw := range raws {
			// Take the image size from the image header if the export lacks it.
			if raw.ImageWidth == 0 || raw.ImageHeight == 0 {
				if err := file.fillImageSize(); err != nil {
					Logger.Warn("Skipping annotation without image size", zap.String("path", path),
						zap.Error(err))
					stats.Rejected++
					continue
				}
				raw.ImageWidth, raw.ImageHeight = file.Width, file.Height
			} else if file.Width == 0 {
				file.Width, file.Height = raw.ImageWidth, raw.ImageHeight
			}

			box, err := conv.FromLSToYOLO(raw)
			if errors.Is(err, ErrDegenerateBox) {
				stats.Degenerate++
				if !keepDegenerate {
					Logger.Info("Dropping degenerate annotation", zap.String("path", path),
						zap.Error(err))
					continue
				}
			} else if err != nil {
				Logger.Warn("Skipping annotation", zap.String("path", path), zap.Error(err))
				stats.Rejected++
				continue
			}

			file.Boxes = append(file.Boxes, box)
		}

		stats.Images++
		stats.Boxes += len(file.Boxes)
		files = append(files, file)
	}

	return files, stats, nil
}

// fillImageSize reads the image size from the image file header if it is not yet known.
func (f *LabelFile) fillImageSize() error {
	if f.Width > 0 && f.Height > 0 {
		return nil
	}
	if !filepath.IsAbs(f.FilePath) && filepath.Dir(f.FilePath) == "." {
		return fmt.Errorf("image %q not found", f.FilePath)
	}

	config, _, err := decodeImageConfig(f.FilePath)
	if err != nil {
		return err
	}
	f.Width, f.Height = config.Width, config.Height
	return nil
}

// imageIndex maps image file names to their paths.
type imageIndex map[string]string

func newImageIndex(dirPath string) (imageIndex, error) {
	files, err := filesByExtInDir(dirPath, "")
	if err != nil {
		return nil, err
	}

	index := make(imageIndex, len(files))
	for _, f := range files {
		index[filepath.Base(f)] = f
	}
	return index, nil
}

// lookup finds the image by name. Label Studio prefixes uploaded files with a short hash,
// so the name is also tried without that prefix.
func (idx imageIndex) lookup(name string) (string, bool) {
	if p, ok := idx[name]; ok {
		return p, true
	}
	if stripped := stripUploadPrefix(name); stripped != name {
		p, ok := idx[stripped]
		return p, ok
	}
	return "", false
}

// Split randomly splits the data into multiple datasets.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned datasets. Its last value must be 100.
func (data LabelFiles) Split(cumulativeSplits []int, seed int64) ([]LabelFiles, error) {
	datasets := make([]LabelFiles, len(cumulativeSplits))

	// Allocate slightly more than the expected size for each dataset.
	var sum int
	for i, s := range cumulativeSplits {
		if s < sum {
			return nil, fmt.Errorf("the split percentages must be cumulative: %v", cumulativeSplits)
		}
		percent := s - sum
		datasets[i] = make(LabelFiles, 0, int(1.05*float64(percent)/100*float64(len(data))))
		sum = s
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	rng := rand.New(rand.NewSource(seed))

outer:
	for _, d := range data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], d)
				continue outer
			}
		}
	}

	return datasets, nil
}

// ImageOptions configures ProcessImages.
type ImageOptions struct {
	LongerSide         int    // Target length of the longer side, zero keeps the aspect ratio.
	ShorterSide        int    // Target length of the shorter side, zero keeps the aspect ratio.
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string // One of nearest, box, linear, gaussian, lanczos.
	Encoding           string // jpg or png; only used when resizing.
	JPEGQuality        int
}

// ProcessImages writes all referenced images to imageOutDir, resized if requested, and updates
// the file paths and sizes. The boxes are normalized and therefore unaffected by resizing.
func (data LabelFiles) ProcessImages(imageOutDir string, opts ImageOptions) error {
	doResize := opts.LongerSide > 0 || opts.ShorterSide > 0
	Logger.Info("Processing images", zap.Int("count", len(data)))

	// Select the resampling algorithms.
	downsample, err := resampleFilter(opts.DownsamplingFilter, imaging.Box)
	if err != nil {
		return err
	}
	upsample, err := resampleFilter(opts.UpsamplingFilter, imaging.Linear)
	if err != nil {
		return err
	}

	// Select the output file extension based on the requested encoding.
	var fileExt string
	switch strings.ToLower(opts.Encoding) {
	case "", "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return fmt.Errorf("unsupported output encoding %q", opts.Encoding)
	}

	// Limit the number of goroutines in flight, as they load potentially large images into
	// memory.
	numTasks := 2 * runtime.NumCPU()
	if len(data) < numTasks {
		numTasks = len(data)
	}
	workQueue := make(chan *LabelFile, 2*numTasks)
	errs := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for d := range workQueue {
				var err error
				if doResize {
					err = resizeLabelledImage(d, imageOutDir, fileExt, opts, downsample, upsample)
				} else {
					err = copyLabelledImage(d, imageOutDir)
				}
				if err != nil {
					select {
					case errs <- errors.Wrapf(err, "image %q", d.FilePath):
					default:
					}
				}
			}
		}()
	}

	// Feed the work queue.
	for i := range data {
		workQueue <- &data[i]
	}
	close(workQueue)
	wg.Wait()

	close(errs)
	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

func resampleFilter(name string, fallback imaging.ResampleFilter) (imaging.ResampleFilter, error) {
	switch name {
	case "":
		return fallback, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

func resizeLabelledImage(d *LabelFile, imageOutDir, fileExt string, opts ImageOptions,
	downsample, upsample imaging.ResampleFilter) error {

	img, err := imaging.Open(d.FilePath)
	if err != nil {
		return err
	}

	// Resize.
	img, _, _ = resizeImage(img, opts.LongerSide, opts.ShorterSide, downsample, upsample)
	outPath := filepath.Join(imageOutDir, nameNoExt(d.FilePath)+fileExt)
	if err := saveImage(outPath, img, opts.JPEGQuality); err != nil {
		return err
	}

	// Point the label file at the resized image.
	b := img.Bounds()
	d.FilePath = outPath
	d.Width, d.Height = b.Dx(), b.Dy()
	return nil
}

func copyLabelledImage(d *LabelFile, imageOutDir string) error {
	outPath := filepath.Join(imageOutDir, filepath.Base(d.FilePath))
	if err := copyFile(outPath, d.FilePath); err != nil {
		return err
	}
	d.FilePath = outPath
	return nil
}
