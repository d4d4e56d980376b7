package dataset

import (
	"context"
	"fmt"
	"math/rand"
)

// Dataset pairs feature rows with encoded labels.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

// NewDataset encodes the labels of t with enc.
func NewDataset(t *Table, enc *LabelEncoder) (*Dataset, error) {
	labels, err := enc.EncodeAll(t.Labels)
	if err != nil {
		return nil, err
	}
	return &Dataset{Features: t.Features, Labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Labels) }

// Dim returns the feature dimensionality.
func (d *Dataset) Dim() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// Split partitions [0, n) into disjoint train and validation index sets.
// The training set holds exactly floor(fraction*n) indices.
func Split(n int, fraction float64, rng *rand.Rand) (train, val []int) {
	trainSize := int(fraction * float64(n))
	if trainSize > n {
		trainSize = n
	}
	perm := rng.Perm(n)
	return perm[:trainSize], perm[trainSize:]
}

// Loader yields mini-batches over a subset of a Dataset.
type Loader struct {
	ds        *Dataset
	indices   []int
	batchSize int
	rng       *rand.Rand
}

// NewLoader builds a loader over indices. A non-nil rng reshuffles the
// subset at the start of every pass; nil keeps the given order.
func NewLoader(ds *Dataset, indices []int, batchSize int, rng *rand.Rand) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", batchSize)
	}
	for _, i := range indices {
		if i < 0 || i >= ds.Len() {
			return nil, fmt.Errorf("loader: index %d out of range [0, %d)", i, ds.Len())
		}
	}
	return &Loader{
		ds:        ds,
		indices:   append([]int(nil), indices...),
		batchSize: batchSize,
		rng:       rng,
	}, nil
}

// Len returns the number of samples the loader covers.
func (l *Loader) Len() int { return len(l.indices) }

// Batches returns the number of batches one pass produces.
func (l *Loader) Batches() int {
	return (len(l.indices) + l.batchSize - 1) / l.batchSize
}

// Each runs fn over one pass of batches. The final batch may be short.
func (l *Loader) Each(ctx context.Context, fn func(inputs [][]float64, labels []int) error) error {
	if l.rng != nil {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
	for start := 0; start < len(l.indices); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + l.batchSize
		if end > len(l.indices) {
			end = len(l.indices)
		}
		inputs := make([][]float64, 0, end-start)
		labels := make([]int, 0, end-start)
		for _, idx := range l.indices[start:end] {
			inputs = append(inputs, l.ds.Features[idx])
			labels = append(labels, l.ds.Labels[idx])
		}
		if err := fn(inputs, labels); err != nil {
			return err
		}
	}
	return nil
}
