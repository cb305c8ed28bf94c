package gmm

import (
	"slices"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// LabelMap is a bijection between external class labels and internal indices 0..C-1.
type LabelMap struct {
	toIndex map[int]int
	toLabel []int
}

// NewLabelMap assigns index i to labels[i]. Duplicate labels are rejected.
func NewLabelMap(labels []int) (*LabelMap, error) {
	lm := &LabelMap{
		toIndex: make(map[int]int, len(labels)),
		toLabel: make([]int, len(labels)),
	}
	for i, l := range labels {
		if j, dup := lm.toIndex[l]; dup {
			return nil, xerrors.New(xerrors.KindInvalidArgument, "gmm.NewLabelMap",
				"label %d appears at indices %d and %d", l, j, i)
		}
		lm.toIndex[l] = i
		lm.toLabel[i] = l
	}
	return lm, nil
}

// labelMapFromSamples builds a map over the distinct labels in ascending order.
func labelMapFromSamples(labels []int) *LabelMap {
	distinct := slices.Clone(labels)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	lm, _ := NewLabelMap(distinct)
	return lm
}

// Index returns the class index of label.
func (lm *LabelMap) Index(label int) (int, bool) {
	i, ok := lm.toIndex[label]
	return i, ok
}

// Label returns the external label of class index i.
func (lm *LabelMap) Label(i int) (int, bool) {
	if i < 0 || i >= len(lm.toLabel) {
		return 0, false
	}
	return lm.toLabel[i], true
}

// Len returns the number of classes.
func (lm *LabelMap) Len() int {
	return len(lm.toLabel)
}

// Labels returns the labels in index order.
func (lm *LabelMap) Labels() []int {
	return slices.Clone(lm.toLabel)
}
