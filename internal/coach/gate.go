package coach

import (
	"fmt"
	"math"

	"signforge/internal/landmark"
)

// View gate thresholds.
const (
	// MinHandHeight is the smallest hand bounding box, as a fraction of
	// the frame height.
	MinHandHeight = 0.15
	// MinFacing is the smallest |z| of the unit palm normal.
	MinFacing = 0.5
)

// Gate advice strings.
const (
	AdviceShowHand   = "Show your hand to the camera"
	AdviceMoveCloser = "Move closer to the camera"
	AdviceRotatePalm = "Rotate your palm towards the camera"
)

// Gate reports whether a frame is usable and, if not, what to change.
type Gate struct {
	OK     bool   `json:"ok"`
	Advice string `json:"advice,omitempty"`
}

// ViewGate checks pixel-space landmarks from a frame frameHeight pixels
// tall. The hand must span enough of the frame and its palm, the plane
// through the wrist, thumb CMC and pinky MCP, must face the camera.
func ViewGate(px []landmark.Point, frameHeight float64) (Gate, error) {
	if len(px) == 0 {
		return Gate{Advice: AdviceShowHand}, nil
	}
	if len(px) != landmark.Count {
		return Gate{}, fmt.Errorf("coach: need %d landmarks, got %d", landmark.Count, len(px))
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range px {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	if maxY-minY < frameHeight*MinHandHeight {
		return Gate{Advice: AdviceMoveCloser}, nil
	}

	n := palmNormal(px[1], px[17], px[landmark.Wrist])
	if math.Abs(n[2]) < MinFacing {
		return Gate{Advice: AdviceRotatePalm}, nil
	}
	return Gate{OK: true}, nil
}

// palmNormal is the unit normal of the plane through a, b and c. Collinear
// points give a zero vector.
func palmNormal(a, b, c landmark.Point) [3]float64 {
	u := [3]float64{a[0] - c[0], a[1] - c[1], a[2] - c[2]}
	v := [3]float64{b[0] - c[0], b[1] - c[1], b[2] - c[2]}
	n := [3]float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
	l := norm(n)
	if l == 0 {
		l = 1
	}
	return [3]float64{n[0] / l, n[1] / l, n[2] / l}
}
