package lsyolo

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config is the project configuration, read from the environment and optional .env files.
type Config struct {
	ProjectName      string // PROJECT_NAME, default "project".
	LSPort           int    // LS_PORT, the Label Studio port, default 8080.
	BaseDir          string // BASE_DIR, default the working directory.
	ProjectDir       string // <BaseDir>/<ProjectName>.
	DataDir          string // <BaseDir>/data.
	OutputDir        string // <BaseDir>/output.
	TrainingFolder   string // <DataDir>/<ProjectName>.
	ImgDatasetFolder string // IMG_DATASET_FOLDER, default the annotated images of the project.
	ModelFolder      string // MODEL_FOLDER, default <OutputDir>/runs/train/MODEL_NAME.
	LabelsFile       string // LABELS_FILE, the class list; may be empty.
}

// LoadConfig loads the given .env files (".env" if none are given) into the environment and
// builds the configuration from it. Variables already set in the environment take precedence,
// and missing .env files are not an error.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, errors.Wrapf(err, "cannot load %q", f)
			}
			Logger.Info("No environment file, using defaults", zap.String("path", f))
		}
	}

	c := Config{
		ProjectName: getEnv("PROJECT_NAME", "project"),
		BaseDir:     os.Getenv("BASE_DIR"),
		LabelsFile:  os.Getenv("LABELS_FILE"),
	}

	port, err := strconv.Atoi(getEnv("LS_PORT", "8080"))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid LS_PORT")
	}
	c.LSPort = port

	if c.BaseDir == "" {
		if c.BaseDir, err = os.Getwd(); err != nil {
			return Config{}, err
		}
	}
	if c.BaseDir, err = filepath.Abs(c.BaseDir); err != nil {
		return Config{}, err
	}

	c.ProjectDir = filepath.Join(c.BaseDir, c.ProjectName)
	c.DataDir = filepath.Join(c.BaseDir, "data")
	c.OutputDir = filepath.Join(c.BaseDir, "output")
	c.TrainingFolder = filepath.Join(c.DataDir, c.ProjectName)
	c.ImgDatasetFolder = getEnv("IMG_DATASET_FOLDER", ImgFolderTraining(c.ProjectDir))
	c.ModelFolder = getEnv("MODEL_FOLDER",
		filepath.Join(c.OutputDir, "runs", "train", "MODEL_NAME"))

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
