package lsyolo

// Folder layout of a labelling project:
//
//	<project>/image_inputs/ground_truth_images   annotated images
//	<project>/image_inputs/eval_images           images awaiting inference
//	<project>/annotations/ground_truth           Label Studio exports of the annotations
//	<project>/annotations/prediction_corrections Label Studio exports of corrected predictions

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ImgFolderTraining is the folder of annotated images.
func ImgFolderTraining(projectFolder string) string {
	return filepath.Join(projectFolder, "image_inputs", "ground_truth_images")
}

// ImgFolderInference is the folder of images that have not been annotated.
func ImgFolderInference(projectFolder string) string {
	return filepath.Join(projectFolder, "image_inputs", "eval_images")
}

// GroundTruthFolderTraining is the folder of annotation exports.
func GroundTruthFolderTraining(projectFolder string) string {
	return filepath.Join(projectFolder, "annotations", "ground_truth")
}

// CorrectionsFolderInference is the folder of exports of corrected predictions.
func CorrectionsFolderInference(projectFolder string) string {
	return filepath.Join(projectFolder, "annotations", "prediction_corrections")
}

// ResultsFolder is the folder for the predictions of a model on an image dataset:
// <base>/predict/<dataset>_<model>, where base is two levels above modelFolder and dataset is
// the project name of imgDatasetFolder (two levels above it).
func ResultsFolder(modelFolder, imgDatasetFolder string) (string, error) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(imgDatasetFolder)), "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("image dataset folder %q is not inside a project", imgDatasetFolder)
	}

	modelFolder = filepath.Clean(modelFolder)
	base := filepath.Dir(filepath.Dir(modelFolder))
	name := parts[len(parts)-3] + "_" + filepath.Base(modelFolder)
	return filepath.Join(base, "predict", name), nil
}

// DataFolder is the "data" folder next to the project folder.
func DataFolder(projectFolder string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(projectFolder)), "data")
}
