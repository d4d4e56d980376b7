package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrUnknownLabel is returned when encoding a label outside the fitted set.
var ErrUnknownLabel = errors.New("dataset: unknown label")

// LabelEncoder maps label strings to dense indices in [0, NumClasses()).
// Classes are kept sorted so the mapping only depends on the set of labels,
// not on row order. When every label is numeric they sort by value,
// otherwise lexically.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitLabelEncoder builds an encoder over the distinct labels.
func FitLabelEncoder(labels []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0)
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sortClasses(classes)
	return newEncoder(classes)
}

// NewLabelEncoder restores an encoder from a saved class table. The table
// must not contain duplicates.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("dataset: duplicate class %q", c)
		}
		seen[c] = struct{}{}
	}
	return newEncoder(append([]string(nil), classes...)), nil
}

func sortClasses(classes []string) {
	values := make(map[string]float64, len(classes))
	for _, c := range classes {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil || math.IsNaN(v) {
			sort.Strings(classes)
			return
		}
		values[c] = v
	}
	sort.Slice(classes, func(i, j int) bool {
		a, b := values[classes[i]], values[classes[j]]
		if a != b {
			return a < b
		}
		return classes[i] < classes[j]
	})
}

func newEncoder(classes []string) *LabelEncoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// NumClasses returns the number of distinct labels.
func (e *LabelEncoder) NumClasses() int { return len(e.classes) }

// Classes returns a copy of the index-to-label table.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Encode returns the index of label.
func (e *LabelEncoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownLabel, label)
	}
	return i, nil
}

// EncodeAll encodes every label.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Decode returns the label for index.
func (e *LabelEncoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(e.classes) {
		return "", fmt.Errorf("dataset: class index %d out of range [0, %d)", index, len(e.classes))
	}
	return e.classes[index], nil
}
