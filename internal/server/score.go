package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"signforge/internal/coach"
	"signforge/internal/landmark"
)

// ScoreRequest asks how well one hand matches a static target pose. With
// FrameWidth and FrameHeight set, Landmarks are image-normalised and the
// view gate runs on their pixel positions before scoring.
type ScoreRequest struct {
	Landmarks   []landmark.Point   `json:"landmarks"`
	Mirror      bool               `json:"mirror,omitempty"`
	FrameWidth  float64            `json:"frame_width,omitempty"`
	FrameHeight float64            `json:"frame_height,omitempty"`
	Target      coach.AngleMap     `json:"target"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	Tolerance   float64            `json:"tolerance,omitempty"`
}

// ScoreResponse carries the gate verdict and, when it passed, the pose score.
type ScoreResponse struct {
	coach.Gate
	Score    int                `json:"score"`
	PerJoint map[string]float64 `json:"per_joint,omitempty"`
	Angles   coach.AngleMap     `json:"angles,omitempty"`
}

// SequenceRequest scores a recorded dynamic sign against a template. Either
// Frames (full hands, normalised and reduced server side) or Sequence
// (ready feature rows) must be set. Smoothing > 0 applies an EMA with that
// alpha to every feature column before alignment.
type SequenceRequest struct {
	Frames    [][]landmark.Point `json:"frames,omitempty"`
	Sequence  [][]float64        `json:"sequence,omitempty"`
	Template  [][]float64        `json:"template"`
	Mirror    bool               `json:"mirror,omitempty"`
	Smoothing float64            `json:"smoothing,omitempty"`
	BadCost   float64            `json:"bad_cost,omitempty"`
}

// SequenceResponse reports the DTW cost and its 0..100 score.
type SequenceResponse struct {
	Frames int     `json:"frames"`
	Cost   float64 `json:"cost"`
	Score  int     `json:"score"`
}

func registerScoring(r *mux.Router) {
	r.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		var req ScoreRequest
		if !decode(w, r, &req) {
			return
		}
		resp, err := scorePose(req)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		jsonResponse(w, http.StatusOK, resp)
	}).Methods("POST")

	r.HandleFunc("/score/sequence", func(w http.ResponseWriter, r *http.Request) {
		var req SequenceRequest
		if !decode(w, r, &req) {
			return
		}
		resp, err := scoreSequence(req)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		jsonResponse(w, http.StatusOK, resp)
	}).Methods("POST")
}

func scorePose(req ScoreRequest) (ScoreResponse, error) {
	lms := req.Landmarks
	if req.FrameWidth > 0 && req.FrameHeight > 0 {
		lms = landmark.ToPixels(lms, req.FrameWidth, req.FrameHeight)
		gate, err := coach.ViewGate(lms, req.FrameHeight)
		if err != nil {
			return ScoreResponse{}, err
		}
		if !gate.OK {
			return ScoreResponse{Gate: gate}, nil
		}
	} else if len(lms) == 0 {
		return ScoreResponse{Gate: coach.Gate{Advice: coach.AdviceShowHand}}, nil
	}

	norm, err := landmark.Normalize(lms, req.Mirror)
	if err != nil {
		return ScoreResponse{}, err
	}
	angles, err := coach.Angles(norm)
	if err != nil {
		return ScoreResponse{}, err
	}
	res := coach.PoseScore(angles, req.Target, req.Weights, req.Tolerance)
	return ScoreResponse{
		Gate:     coach.Gate{OK: true},
		Score:    res.Score,
		PerJoint: res.PerJoint,
		Angles:   angles,
	}, nil
}

func scoreSequence(req SequenceRequest) (SequenceResponse, error) {
	if len(req.Template) == 0 {
		return SequenceResponse{}, errors.New("template has no frames")
	}
	seq := req.Sequence
	switch {
	case len(req.Frames) > 0 && len(req.Sequence) > 0:
		return SequenceResponse{}, errors.New("send either frames or sequence, not both")
	case len(req.Frames) > 0:
		seq = make([][]float64, 0, len(req.Frames))
		for i, frame := range req.Frames {
			norm, err := landmark.Normalize(frame, req.Mirror)
			if err != nil {
				return SequenceResponse{}, fmt.Errorf("frame %d: %w", i, err)
			}
			row, err := coach.FrameFeatures(norm)
			if err != nil {
				return SequenceResponse{}, fmt.Errorf("frame %d: %w", i, err)
			}
			seq = append(seq, row)
		}
	}
	if len(seq) < coach.MinSequenceFrames {
		return SequenceResponse{}, fmt.Errorf("need at least %d frames, got %d", coach.MinSequenceFrames, len(seq))
	}
	for i, row := range seq {
		if len(row) == 0 || len(row) != len(seq[0]) {
			return SequenceResponse{}, fmt.Errorf("sequence row %d has %d values, want %d", i, len(row), len(seq[0]))
		}
	}
	if req.Smoothing > 0 {
		seq = smoothColumns(seq, req.Smoothing)
	}

	resampled, err := coach.Resample(seq, len(req.Template))
	if err != nil {
		return SequenceResponse{}, err
	}
	cost, err := coach.DTWCost(resampled, req.Template)
	if err != nil {
		return SequenceResponse{}, err
	}
	return SequenceResponse{
		Frames: len(seq),
		Cost:   cost,
		Score:  coach.DTWScore(cost, coach.GoodCost, req.BadCost),
	}, nil
}

// smoothColumns runs an independent EMA down each feature column. Rows must
// share one width.
func smoothColumns(seq [][]float64, alpha float64) [][]float64 {
	width := len(seq[0])
	out := make([][]float64, len(seq))
	for i := range out {
		out[i] = make([]float64, width)
	}
	col := make([]float64, len(seq))
	for k := 0; k < width; k++ {
		for i, row := range seq {
			col[i] = row[k]
		}
		for i, v := range coach.Smooth(col, alpha) {
			out[i][k] = v
		}
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
