package coach

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DTW score thresholds: costs at or below GoodCost score 100, at or above
// BadCost score 0.
const (
	GoodCost = 0.15
	BadCost  = 0.45
)

// MinSequenceFrames is the shortest recording worth scoring.
const MinSequenceFrames = 20

// DTWCost aligns a and b with dynamic time warping over Euclidean frame
// distances and returns the path cost divided by len(a)+len(b). An empty
// sequence has infinite cost.
func DTWCost(a, b [][]float64) (float64, error) {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1), nil
	}
	width := len(a[0])
	for _, seq := range [][][]float64{a, b} {
		for i, row := range seq {
			if len(row) != width {
				return 0, fmt.Errorf("coach: frame %d has %d values, want %d", i, len(row), width)
			}
		}
	}

	inf := math.Inf(1)
	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = inf
	}
	prev[0] = 0
	for i := 1; i <= n; i++ {
		cur[0] = inf
		for j := 1; j <= m; j++ {
			cost := floats.Distance(a[i-1], b[j-1], 2)
			cur[j] = cost + math.Min(prev[j], math.Min(cur[j-1], prev[j-1]))
		}
		prev, cur = cur, prev
	}
	return prev[m] / float64(n+m), nil
}

// DTWScore maps a DTW cost onto 0..100, lower cost scoring higher. bad <= 0
// means BadCost.
func DTWScore(cost, good, bad float64) int {
	if bad <= 0 {
		bad = BadCost
	}
	if cost <= good {
		return 100
	}
	if cost >= bad {
		return 0
	}
	return int(math.Round(100 * (1 - (cost-good)/(bad-good))))
}

// Resample linearly interpolates seq onto n evenly spaced frames.
func Resample(seq [][]float64, n int) ([][]float64, error) {
	if len(seq) == 0 {
		return nil, errors.New("coach: cannot resample an empty sequence")
	}
	if n <= 0 {
		return nil, fmt.Errorf("coach: resample length must be > 0 (got %d)", n)
	}
	out := make([][]float64, n)
	if n == 1 {
		out[0] = append([]float64(nil), seq[0]...)
		return out, nil
	}
	last := len(seq) - 1
	for i := range out {
		t := float64(i*last) / float64(n-1)
		i0 := int(math.Floor(t))
		i1 := i0 + 1
		if i1 > last {
			i1 = last
		}
		frac := t - float64(i0)
		row := make([]float64, len(seq[i0]))
		for k, v := range seq[i0] {
			row[k] = v*(1-frac) + seq[i1][k]*frac
		}
		out[i] = row
	}
	return out, nil
}
