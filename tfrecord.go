package lsyolo

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"go.uber.org/zap"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts the label data for a single image to the feature map of a
// tensorflow.Example in the layout of the TensorFlow object detection API.
func toTFFeatures(fileData LabelFile, labels *LabelTable) (TFFeatureMap, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	// Read the image data.
	imgData, err := os.ReadFile(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = fileData.FilePath
	f["image/source_id"] = fileData.FilePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per box data.
	numBoxes := len(fileData.Boxes)
	xmins := make([]float32, numBoxes)
	ymins := make([]float32, numBoxes)
	xmaxs := make([]float32, numBoxes)
	ymaxs := make([]float32, numBoxes)
	classes := make([]string, numBoxes)
	classIDs := make([]int64, numBoxes)
	for i, b := range fileData.Boxes {
		xmin, ymin, xmax, ymax := b.Edges()
		xmins[i] = float32(xmin)
		ymins[i] = float32(ymin)
		xmaxs[i] = float32(xmax)
		ymaxs[i] = float32(ymax)

		name, err := labels.ClassName(b.ClassCode)
		if err != nil {
			return nil, err
		}
		classes[i] = name
		classIDs[i] = int64(labelMapID(b.ClassCode))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteCustomTFRecord works like WriteTFRecord, except that it allows for the TFFeatureMap to be
// customised.
//
// Before generating a tensorflow.Example from each LabelFile and writing it to the TFRecord
// file, the source data and the TFFeatureMap with the default conversion are passed to
// customiseFeature, which may modify the feature map as long as all of its values can be
// converted to tensorflow.Feature.
func WriteCustomTFRecord(recordFilePath, labelMapPath string, data []LabelFile,
	labels *LabelTable, numShards int, customiseFeature func(f LabelFile, m TFFeatureMap)) (
	err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		// Convert the file data to an example.
		features, err := toTFFeatures(fileData, labels)
		if err != nil {
			Logger.Warn("Failed to convert", zap.String("path", fileData.FilePath), zap.Error(err))
			continue
		}
		if customiseFeature != nil {
			customiseFeature(fileData, features)
		}
		tfExample := example.New(features)

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", fileData.FilePath, err)
		}
	}

	return SaveLabelMap(labelMapPath, labels)
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the label data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when
// numShards > 1).
//
// The label map of labels is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data []LabelFile, labels *LabelTable,
	numShards int) error {

	return WriteCustomTFRecord(recordFilePath, labelMapPath, data, labels, numShards, nil)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}
