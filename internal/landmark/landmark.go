// Package landmark turns raw hand landmarks into classifier features.
package landmark

import (
	"fmt"
	"math"
)

// Hand landmark indices used as the normalisation frame.
const (
	Wrist     = 0
	MiddleMCP = 9
	Count     = 21
)

// Point is one landmark in x, y, z.
type Point [3]float64

// Normalize translates the hand so the wrist sits at the origin and scales
// it by the wrist to middle-finger MCP distance. A zero reference length
// leaves the scale at 1. With mirror set, x is negated so left and right
// hands share one feature space.
func Normalize(lms []Point, mirror bool) ([]Point, error) {
	if len(lms) <= MiddleMCP {
		return nil, fmt.Errorf("landmark: need at least %d points, got %d", MiddleMCP+1, len(lms))
	}
	w0 := lms[Wrist]
	mid := lms[MiddleMCP]
	ref := math.Sqrt(sq(mid[0]-w0[0]) + sq(mid[1]-w0[1]) + sq(mid[2]-w0[2]))
	if ref == 0 {
		ref = 1
	}

	out := make([]Point, len(lms))
	for i, p := range lms {
		out[i] = Point{(p[0] - w0[0]) / ref, (p[1] - w0[1]) / ref, (p[2] - w0[2]) / ref}
		if mirror {
			out[i][0] = -out[i][0]
		}
	}
	return out, nil
}

// Flatten lays points out as x0, y0, z0, x1, ... matching the training table.
func Flatten(lms []Point) []float64 {
	out := make([]float64, 0, 3*len(lms))
	for _, p := range lms {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

// Features normalises a full hand and flattens it. Exactly Count points are
// required.
func Features(lms []Point, mirror bool) ([]float64, error) {
	if len(lms) != Count {
		return nil, fmt.Errorf("landmark: need %d points, got %d", Count, len(lms))
	}
	norm, err := Normalize(lms, mirror)
	if err != nil {
		return nil, err
	}
	return Flatten(norm), nil
}

// ToPixels maps image-normalised landmarks onto a width x height frame. z is
// scaled by the larger side so depth keeps the same units as x and y.
func ToPixels(lms []Point, width, height float64) []Point {
	depth := math.Max(width, height)
	out := make([]Point, len(lms))
	for i, p := range lms {
		out[i] = Point{p[0] * width, p[1] * height, p[2] * depth}
	}
	return out
}

func sq(v float64) float64 { return v * v }
