package coach

import (
	"math"
	"strings"
)

// DefaultTolerance is the angle error, in degrees, at which a joint scores 0.
const DefaultTolerance = 12.0

// DefaultWeights favours the index finger, then the thumb.
var DefaultWeights = map[string]float64{"INDEX": 1.2, "THUMB": 1.0, "OTHERS": 0.8}

// PoseResult is a 0..100 pose score with the 0..1 score of each joint.
type PoseResult struct {
	Score    int                `json:"score"`
	PerJoint map[string]float64 `json:"per_joint"`
}

// PoseScore compares current against every joint of target. A joint scores
// 1 at zero error, falling linearly to 0 at tolerance degrees. Joints are
// weighted by finger group; a group without a weight uses OTHERS, then 1.
// A nil weights map means DefaultWeights; tolerance <= 0 means
// DefaultTolerance. A joint missing from current reads as 0 degrees.
func PoseScore(current, target AngleMap, weights map[string]float64, tolerance float64) PoseResult {
	if weights == nil {
		weights = DefaultWeights
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	res := PoseResult{PerJoint: make(map[string]float64, len(target))}
	var total, acc float64
	for name, want := range target {
		w := groupWeight(weights, jointGroup(name))
		js := math.Max(0, 1-math.Abs(current[name]-want)/tolerance)
		res.PerJoint[name] = js
		total += w
		acc += w * js
	}
	if total != 0 {
		res.Score = int(math.Round(acc / total * 100))
	}
	return res
}

func groupWeight(weights map[string]float64, group string) float64 {
	if w, ok := weights[group]; ok {
		return w
	}
	if w, ok := weights["OTHERS"]; ok {
		return w
	}
	return 1
}

func jointGroup(name string) string {
	for _, g := range []string{"INDEX", "THUMB", "MIDDLE", "RING", "PINKY"} {
		if strings.Contains(name, g) {
			return g
		}
	}
	return "OTHERS"
}
