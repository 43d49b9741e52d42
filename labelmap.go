package lsyolo

// TensorFlow object detection label maps (StringIntLabelMap prototxt).

import (
	"fmt"
	"os"
	"sort"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/tiamat-vision/lsyolo/protos"
)

// Label map ids start at 1, id 0 is reserved for the background class.
const labelMapIDOffset = 1

// labelMapID returns the label map id of a class code.
func labelMapID(code int) int32 {
	return int32(code + labelMapIDOffset)
}

// SaveLabelMap writes labels to path as a StringIntLabelMap prototxt. The id of each class is
// its class code plus one.
func SaveLabelMap(path string, labels *LabelTable) (err error) {
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, labels.Len())
	for code, name := range labels.Labels() {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(name),
			Id:   proto.Int32(labelMapID(code)),
		})
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}

	return nil
}

// LoadLabelMap reads a StringIntLabelMap prototxt from path. The ids must be exactly 1..n,
// in any order, so that every class code is id - 1.
//
// If the file does not exist, os.IsNotExist reports true for the returned error.
func LoadLabelMap(path string) (*LabelTable, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, errors.Wrapf(err, "invalid label map %q", path)
	}

	items := siLabelMap.GetItem()
	sort.Slice(items, func(i, j int) bool { return items[i].GetId() < items[j].GetId() })

	names := make([]string, len(items))
	for i, item := range items {
		k, v := item.GetName(), item.GetId()
		if k == "" || v != labelMapID(i) {
			return nil, fmt.Errorf("invalid entry in label map %q: %s: %d", path, k, v)
		}
		names[i] = k
	}

	return NewLabelTable(names)
}
