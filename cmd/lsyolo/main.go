// Converts Label Studio rectangle annotations to YOLO label files and TFRecords, and YOLO
// label files back to Label Studio pre-annotations.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tiamat-vision/lsyolo"
	"go.uber.org/zap"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	envFilePath            string   // The .env file with the project configuration.
	imageDirPath           string   // The input directory with the labeled images.
	imageOutDirPath        string   // The output directory for images after processing.
	labelFileOrDirPath     string   // The input label directory or file, depending on the format.
	labelOutFileOrDirPaths []string // The output label dir or file path(s), depending on the format.
	labelOutSplits         []int    // The cumulative split percentages for the output datasets.
	splitSeed              int64    // The random seed for -split.
	excludeListPath        string   // A file listing images to leave out.
	changeIDs              bool     // Rewrite the ids of the input export files.

	classesFilePath  string // The class list, one name per line.
	classesDirPath   string // A directory with one sub-directory per class.
	labelMapFilePath string // A TFRecord label map to read the classes from, or to write.
	numShardFiles    int    // The number of shard files to create.

	boundsPolicy   lsyolo.BoundsPolicy // The policy for corners outside the image.
	keepDegenerate bool                // Keep boxes with zero width or height.
	imageRoot      string              // The image reference prefix for Label Studio tasks.
	modelVersion   string              // The model version of Label Studio predictions.

	imageOptions lsyolo.ImageOptions // Image resizing options.

	logger *zap.Logger
)

type format int

// The known label formats.
const (
	Unknown     format = iota // If an unknown format is specified.
	LabelStudio               // Label Studio JSON export.
	TFRecord
	YOLO
)

func formatFrom(s string) format {
	switch s {
	case "ls":
		return LabelStudio
	case "tfrecord":
		return TFRecord
	case "yolo":
		return YOLO
	}
	return Unknown
}

func init() {
	logger = zap.Must(zap.NewDevelopment())
	lsyolo.Logger = logger

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  ls input options:\t\t-labels <file|dir> [-images <dir>]")
		_, _ = fmt.Fprintln(os.Stderr, "  ls output options:\t\t-labels-out <file> [-image-root]")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo input options:\t\t-labels <dir> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo output options:\t\t-labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <file>"+
			" -label-map-file <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr, "  classes:\t\t\t-classes <file> | -classes-dir <dir> |"+
			" -label-map-file <file>")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		logger.Error(fmt.Sprint(msg...))
		flag.Usage()
		os.Exit(1)
	}

	// Format arguments.
	from := flag.String("from", "ls", "The source `format` {ls, yolo}")
	to := flag.String("to", "yolo", "The target `format` {ls, yolo, tfrecord}")

	// Path arguments.
	flag.StringVar(&envFilePath, "env", ".env", "The `path` to the .env configuration file")
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory (default IMG_DATASET_FOLDER)")
	flag.StringVar(&imageOutDirPath, "images-out", imageOutDirPath,
		"The `path` to the image output directory; images are copied (or resized) into a"+
			" sub-directory per output dataset")
	flag.StringVar(&labelFileOrDirPath, "labels", labelFileOrDirPath,
		"The `path` to the label input file or directory (default the project's ground truth"+
			" folder)")
	outPaths := flag.String("labels-out", "",
		"The comma-separated paths (`path[,...]`) to the label output directories (yolo) or"+
			" files (ls, tfrecord); must be one path per value in flag -split")
	outSplits := flag.String("split", "100",
		"The comma-separated output split percentages (`percent[,...]`) to divide labels into;"+
			" must add up to 100%")
	flag.Int64Var(&splitSeed, "seed", time.Now().UnixNano(), "The random `seed` for -split")
	flag.StringVar(&excludeListPath, "exclude", excludeListPath,
		"A file listing image names, one per line, whose labels are left out")
	flag.BoolVar(&changeIDs, "change-id", changeIDs,
		"Set the id of every input export file to its file name before converting")

	// Class arguments.
	flag.StringVar(&classesFilePath, "classes", classesFilePath,
		"The class list `path`, one name per line in class code order (default LABELS_FILE)")
	flag.StringVar(&classesDirPath, "classes-dir", classesDirPath,
		"A directory `path` whose sub-directory names are the classes, in lexical order")
	flag.StringVar(&labelMapFilePath, "label-map-file", labelMapFilePath,
		"The TFRecord label map file `path`; read for the classes if no other source is given")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Conversion arguments.
	bounds := flag.String("bounds", lsyolo.ClampCorners.String(),
		"The `policy` for rotated corners outside the image {clamp, pass, clip}")
	flag.BoolVar(&keepDegenerate, "keep-degenerate", keepDegenerate,
		"Keep boxes with zero width or height")
	flag.StringVar(&imageRoot, "image-root", "/data/local-files/?d=images",
		"The `prefix` of image references in Label Studio output tasks")
	flag.StringVar(&modelVersion, "model-version", "yolo",
		"The model `version` recorded with Label Studio predictions")

	// Image processing arguments.
	flag.StringVar(&imageOptions.Encoding, "image-enc", "jpg",
		"The `encoding` for resized output images {jpg, png}")
	flag.IntVar(&imageOptions.LongerSide, "resize-longer", 0,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	flag.IntVar(&imageOptions.ShorterSide, "resize-shorter", 0,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	flag.StringVar(&imageOptions.DownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOptions.UpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageOptions.JPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	flag.Parse()

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	// Validate the conversion direction.
	switch {
	case convertFrom != LabelStudio && convertFrom != YOLO:
		printUsageAndExit("Unsupported input format")
	case convertTo == Unknown:
		printUsageAndExit("Unsupported output format")
	case convertFrom == convertTo:
		printUsageAndExit("The input and output formats must differ")
	}

	var err error
	if boundsPolicy, err = lsyolo.ParseBoundsPolicy(*bounds); err != nil {
		printUsageAndExit(err)
	}

	// Validate output split arguments.
	labelOutFileOrDirPaths = strings.Split(*outPaths, ",")
	splits := strings.Split(*outSplits, ",")
	if *outPaths == "" {
		printUsageAndExit("Missing label output path argument")
	}
	if len(splits) != len(labelOutFileOrDirPaths) {
		printUsageAndExit("The number of output datasets defined by -split and the number of" +
			" paths in -labels-out must match")
	}

	// Parse splits as cumulative int percentages.
	var splitSum int
	for _, v := range splits {
		if i, err := strconv.Atoi(v); err != nil || i < 0 || i > 100 {
			printUsageAndExit("Invalid value in -split: ", v)
		} else {
			splitSum += i
			labelOutSplits = append(labelOutSplits, splitSum)
		}
	}
	if splitSum != 100 {
		printUsageAndExit("The values in -split must add up to 100%")
	}

	if convertTo == TFRecord && labelMapFilePath == "" {
		printUsageAndExit("Missing label map output path argument")
	}
	if imageOptions.JPEGQuality < 1 || imageOptions.JPEGQuality > 100 {
		imageOptions.JPEGQuality = 92
		logger.Warn("Invalid JPEG quality", zap.Int("using", imageOptions.JPEGQuality))
	}
	if (imageOptions.LongerSide > 0 || imageOptions.ShorterSide > 0) && imageOutDirPath == "" {
		printUsageAndExit("Missing image output directory path")
	}
}

func main() {
	defer func() { _ = logger.Sync() }()

	cfg, err := lsyolo.LoadConfig(envFilePath)
	if err != nil {
		logger.Fatal("Failed to load the configuration", zap.Error(err))
	}

	// Fall back to the project layout for paths that were not given.
	if labelFileOrDirPath == "" {
		labelFileOrDirPath = lsyolo.GroundTruthFolderTraining(cfg.ProjectDir)
	}
	if imageDirPath == "" {
		imageDirPath = cfg.ImgDatasetFolder
	}
	if classesFilePath == "" && classesDirPath == "" {
		classesFilePath = cfg.LabelsFile
	}
	checkPaths()

	labels, err := loadLabels()
	if err != nil {
		logger.Fatal("Failed to load the classes", zap.Error(err))
	}
	conv := lsyolo.NewConverter(labels, lsyolo.WithBoundsPolicy(boundsPolicy))

	// Parse input.
	var data lsyolo.LabelFiles
	switch convertFrom {
	case LabelStudio:
		data, err = readLabelStudio(conv)
	case YOLO:
		data, err = lsyolo.FromYOLO(labelFileOrDirPath, imageDirPath)
	default:
		err = fmt.Errorf("unsupported input format")
	}
	if err != nil {
		logger.Fatal("Failed to parse the input", zap.Error(err))
	}

	if excludeListPath != "" {
		data, err = excludeImages(data, excludeListPath)
		if err != nil {
			logger.Fatal("Failed to read the exclusion list", zap.Error(err))
		}
	}

	// Split data into output datasets.
	var datasets []lsyolo.LabelFiles
	if len(labelOutSplits) == 1 {
		datasets = []lsyolo.LabelFiles{data}
	} else if datasets, err = data.Split(labelOutSplits, splitSeed); err != nil {
		logger.Fatal("Failed to split the dataset", zap.Error(err))
	}

	// Write output datasets.
	for i, ds := range datasets {
		outPath := labelOutFileOrDirPaths[i]

		if imageOutDirPath != "" {
			dir := filepath.Join(imageOutDirPath, filepath.Base(outPath))
			if err := os.MkdirAll(dir, 0755); err != nil {
				logger.Fatal("Failed to create the image output directory", zap.Error(err))
			}
			if err := ds.ProcessImages(dir, imageOptions); err != nil {
				logger.Fatal("Image processing failed", zap.Error(err))
			}
		}

		switch convertTo {
		case YOLO:
			if err = os.MkdirAll(outPath, 0755); err == nil {
				err = lsyolo.WriteYOLO(outPath, ds)
			}
		case TFRecord:
			err = lsyolo.WriteTFRecord(outPath, labelMapFilePath, ds, conv.Labels(),
				numShardFiles)
		case LabelStudio:
			var tasks []lsyolo.LSTask
			if tasks, err = lsyolo.ToLabelStudioTasks(ds, conv, imageRoot, modelVersion); err == nil {
				err = lsyolo.WriteLabelStudio(outPath, tasks)
			}
		default:
			err = fmt.Errorf("unsupported output format")
		}
		if err != nil {
			logger.Fatal("Conversion failed", zap.Error(err))
		}

		logger.Info("Successfully wrote labels", zap.Int("files", len(ds)),
			zap.String("path", outPath))
	}

	if convertTo == YOLO {
		classesOut := filepath.Join(filepath.Dir(filepath.Clean(labelOutFileOrDirPaths[0])),
			"classes.txt")
		if err := lsyolo.WriteClassNames(classesOut, conv.Labels()); err != nil {
			logger.Fatal("Failed to write the class names", zap.Error(err))
		}
	}

	logger.Info("Total number of labelled files", zap.Int("count", len(data)))
}

// checkPaths cleans the path arguments and rejects outputs that would overwrite inputs.
func checkPaths() {
	labelFileOrDirPath = filepath.Clean(labelFileOrDirPath)
	for i, v := range labelOutFileOrDirPaths {
		labelOutFileOrDirPaths[i] = filepath.Clean(v)
		if labelFileOrDirPath == labelOutFileOrDirPaths[i] {
			logger.Fatal("The label input and output paths cannot be identical")
		}
	}
	if imageDirPath != "" {
		imageDirPath = filepath.Clean(imageDirPath)
	}
	if imageOutDirPath != "" {
		imageOutDirPath = filepath.Clean(imageOutDirPath)
		if imageDirPath == imageOutDirPath {
			logger.Fatal("The image input and output paths cannot be identical")
		}
	}
}

// loadLabels reads the class list from the first configured source.
func loadLabels() (*lsyolo.LabelTable, error) {
	switch {
	case classesFilePath != "":
		return lsyolo.LoadLabels(classesFilePath)
	case classesDirPath != "":
		return lsyolo.LabelsFromDir(classesDirPath)
	case labelMapFilePath != "" && convertTo != TFRecord:
		return lsyolo.LoadLabelMap(labelMapFilePath)
	}
	return nil, fmt.Errorf("no class list given, set -classes, -classes-dir or LABELS_FILE")
}

// readLabelStudio converts a single export file or all .json files of a directory.
func readLabelStudio(conv *lsyolo.Converter) (lsyolo.LabelFiles, error) {
	paths := []string{labelFileOrDirPath}
	if info, err := os.Stat(labelFileOrDirPath); err != nil {
		return nil, err
	} else if info.IsDir() {
		if paths, err = lsyolo.GetFiles(labelFileOrDirPath, "json"); err != nil {
			return nil, err
		}
	}

	if changeIDs {
		for _, p := range paths {
			if err := lsyolo.ChangeID(p); err != nil {
				return nil, err
			}
		}
	}

	opts := lsyolo.ConvertOptions{KeepDegenerate: keepDegenerate}
	if info, err := os.Stat(imageDirPath); err == nil && info.IsDir() {
		opts.ImageDir = imageDirPath
	} else {
		logger.Warn("Image directory not available, relying on sizes in the export",
			zap.String("dir", imageDirPath))
	}

	data, _, err := lsyolo.ConvertLabelStudio(paths, conv, opts)
	return data, err
}

// excludeImages drops the label files of the images listed in the file at listPath.
func excludeImages(data lsyolo.LabelFiles, listPath string) (lsyolo.LabelFiles, error) {
	used, err := lsyolo.LoadDataFromFiles([]string{listPath})
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(data))
	for i, d := range data {
		paths[i] = d.FilePath
	}
	keep := make(map[string]bool, len(paths))
	for _, p := range lsyolo.ExcludeTrainingImages(paths, used) {
		keep[p] = true
	}

	kept := make(lsyolo.LabelFiles, 0, len(keep))
	for _, d := range data {
		if keep[d.FilePath] {
			kept = append(kept, d)
		}
	}
	logger.Info("Excluded files", zap.Int("excluded", len(data)-len(kept)),
		zap.Int("total", len(data)))
	return kept, nil
}
