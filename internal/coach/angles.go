// Package coach scores how closely a hand matches a reference sign.
//
// Static signs are compared joint angle by joint angle; dynamic signs are
// compared as feature sequences with dynamic time warping. A view gate
// rejects frames where the hand is too small or turned away from the
// camera before any scoring happens.
package coach

import (
	"fmt"
	"math"

	"signforge/internal/landmark"
)

// angleEpsilon keeps the cosine finite for zero-length bones.
const angleEpsilon = 1e-8

// Joint names the vertex of a landmark triplet (A, B, C); its angle is
// measured at B between BA and BC.
type Joint struct {
	Name    string
	A, B, C int
}

// Joints lists every joint Angles measures, finger by finger.
var Joints = []Joint{
	{"R_INDEX_MCP", 0, 5, 6},
	{"R_INDEX_PIP", 5, 6, 7},
	{"R_INDEX_DIP", 6, 7, 8},
	{"R_MIDDLE_MCP", 0, 9, 10},
	{"R_MIDDLE_PIP", 9, 10, 11},
	{"R_MIDDLE_DIP", 10, 11, 12},
	{"R_RING_MCP", 0, 13, 14},
	{"R_RING_PIP", 13, 14, 15},
	{"R_RING_DIP", 14, 15, 16},
	{"R_PINKY_MCP", 0, 17, 18},
	{"R_PINKY_PIP", 17, 18, 19},
	{"R_PINKY_DIP", 18, 19, 20},
	{"R_THUMB_MCP", 0, 2, 3},
	{"R_THUMB_IP", 2, 3, 4},
}

// AngleMap holds joint angles in degrees keyed by joint name.
type AngleMap map[string]float64

// Angles measures every joint of a full hand in degrees.
func Angles(lms []landmark.Point) (AngleMap, error) {
	if len(lms) != landmark.Count {
		return nil, fmt.Errorf("coach: need %d landmarks, got %d", landmark.Count, len(lms))
	}
	out := make(AngleMap, len(Joints))
	for _, j := range Joints {
		out[j.Name] = angle(lms[j.A], lms[j.B], lms[j.C])
	}
	return out, nil
}

func angle(a, b, c landmark.Point) float64 {
	ab := [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
	cb := [3]float64{c[0] - b[0], c[1] - b[1], c[2] - b[2]}
	dot := ab[0]*cb[0] + ab[1]*cb[1] + ab[2]*cb[2]
	cos := dot / (norm(ab)*norm(cb) + angleEpsilon)
	cos = math.Min(1, math.Max(-1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// FrameFeatures is the per-frame row recorded for dynamic signs: wrist y,
// then the index and middle MCP angles. lms should already be normalised.
func FrameFeatures(lms []landmark.Point) ([]float64, error) {
	angles, err := Angles(lms)
	if err != nil {
		return nil, err
	}
	return []float64{lms[landmark.Wrist][1], angles["R_INDEX_MCP"], angles["R_MIDDLE_MCP"]}, nil
}
