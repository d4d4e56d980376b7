package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropy returns the mean softmax cross-entropy of logits against
// labels, its gradient with respect to the logits, and the number of rows
// whose arg-max matches the label.
func CrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense, int, error) {
	n, classes := logits.Dims()
	if n != len(labels) {
		return 0, nil, 0, fmt.Errorf("model: %d logit rows for %d labels", n, len(labels))
	}
	grad := mat.NewDense(n, classes, nil)
	inv := 1 / float64(n)
	total := 0.0
	correct := 0
	for i := 0; i < n; i++ {
		label := labels[i]
		if label < 0 || label >= classes {
			return 0, nil, 0, fmt.Errorf("model: label %d out of range [0, %d)", label, classes)
		}
		row := logits.RawRowView(i)
		if floats.MaxIdx(row) == label {
			correct++
		}
		probs := softmax(row)
		total += -math.Log(math.Max(probs[label], 1e-12))

		probs[label] -= 1
		floats.Scale(inv, probs)
		grad.SetRow(i, probs)
	}
	return total * inv, grad, correct, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	floats.Scale(1/sum, out)
	return out
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(v []float64) int {
	return floats.MaxIdx(v)
}
