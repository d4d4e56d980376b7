package server

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"signforge/internal/checkpoint"
	"signforge/internal/coach"
	"signforge/internal/dataset"
	"signforge/internal/inference"
	"signforge/internal/landmark"
	"signforge/internal/model"
)

func newPredictor(t *testing.T, inputDim int) *inference.Predictor {
	t.Helper()
	enc := dataset.FitLabelEncoder([]string{"A", "B"})
	m, err := model.NewMLP(model.Spec{InputDim: inputDim, HiddenDim: 4, NumClasses: 2}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	p, err := inference.NewPredictor(checkpoint.New("run-x", 3, m, enc, nil))
	require.NoError(t, err)
	return p
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndClasses(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/classes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var classes ClassesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classes))
	assert.Equal(t, "run-x", classes.RunID)
	assert.Equal(t, []string{"A", "B"}, classes.Classes)

	rec = do(t, h, http.MethodPost, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredictFeatures(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	rec := do(t, h, http.MethodPost, "/predict", `{"features":[0.5,-0.5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pred inference.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.Contains(t, []string{"A", "B"}, pred.Label)
	assert.Len(t, pred.Probabilities, 2)
	assert.InDelta(t, pred.Probabilities[pred.Label], pred.Confidence, 1e-12)
}

func TestPredictLandmarks(t *testing.T) {
	h := NewRouter(newPredictor(t, 3*landmark.Count))

	lms := make([]landmark.Point, landmark.Count)
	for i := range lms {
		lms[i] = landmark.Point{float64(i) * 0.01, float64(i) * 0.02, 0}
	}
	body, err := json.Marshal(PredictRequest{Landmarks: lms, Mirror: true})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/predict", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPredictRejectsBadRequests(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	for name, body := range map[string]string{
		"not json":       `{`,
		"empty":          `{}`,
		"wrong width":    `{"features":[1,2,3]}`,
		"both inputs":    `{"features":[1,2],"landmarks":[[0,0,0]]}`,
		"few landmarks":  `{"landmarks":[[0,0,0],[1,1,1]]}`,
		"unknown fields": `{"features":[1,2],"extra":true}`,
	} {
		rec := do(t, h, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), name)
		assert.NotEmpty(t, resp["error"], name)
	}
}

func TestPredictConcurrentRequests(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))
	want := do(t, h, http.MethodPost, "/predict", `{"features":[0.3,0.9]}`).Body.String()

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"features":[0.3,0.9]}`))
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				if rec.Code != http.StatusOK || rec.Body.String() != want {
					return fmt.Errorf("status %d body %s", rec.Code, rec.Body.String())
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// openHand is a flat right hand in image coordinates: fingers straight up
// from the wrist, palm facing the camera.
func openHand() []landmark.Point {
	lms := make([]landmark.Point, landmark.Count)
	lms[landmark.Wrist] = landmark.Point{0.5, 0.9, 0}
	for f, dx := range map[int]float64{1: -0.06, 5: -0.02, 9: 0, 13: 0.02, 17: 0.04} {
		for k := 0; k < 4; k++ {
			step := float64(k + 1)
			lms[f+k] = landmark.Point{0.5 + dx*step, 0.9 - 0.1*step, 0}
		}
	}
	return lms
}

func TestScorePose(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	straight := coach.AngleMap{}
	for _, j := range coach.Joints {
		straight[j.Name] = 180
	}
	body, err := json.Marshal(ScoreRequest{Landmarks: openHand(), Target: straight, FrameWidth: 640, FrameHeight: 480})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/score", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 100, resp.Score)
	assert.Len(t, resp.Angles, len(coach.Joints))

	bent := coach.AngleMap{"R_INDEX_MCP": 120}
	body, err = json.Marshal(ScoreRequest{Landmarks: openHand(), Target: bent})
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/score", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Score)
}

func TestScorePoseGate(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	tiny := openHand()
	for i := range tiny {
		tiny[i][1] = 0.5 + (tiny[i][1]-0.5)*0.1
	}
	for name, tc := range map[string]struct {
		lms    []landmark.Point
		advice string
	}{
		"no hand":   {nil, coach.AdviceShowHand},
		"too small": {tiny, coach.AdviceMoveCloser},
	} {
		body, err := json.Marshal(ScoreRequest{Landmarks: tc.lms, FrameWidth: 640, FrameHeight: 480})
		require.NoError(t, err)
		rec := do(t, h, http.MethodPost, "/score", string(body))
		require.Equal(t, http.StatusOK, rec.Code, name)
		var resp ScoreResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), name)
		assert.False(t, resp.OK, name)
		assert.Equal(t, tc.advice, resp.Advice, name)
		assert.Zero(t, resp.Score, name)
	}

	rec := do(t, h, http.MethodPost, "/score", `{"landmarks":[[0,0,0],[1,1,1]],"target":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func ramp(n int) [][]float64 {
	seq := make([][]float64, n)
	for i := range seq {
		x := float64(i) / float64(n-1)
		seq[i] = []float64{0, 90 + 90*x, 180 - 90*x}
	}
	return seq
}

func TestScoreSequence(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	body, err := json.Marshal(SequenceRequest{Sequence: ramp(40), Template: ramp(30)})
	require.NoError(t, err)
	rec := do(t, h, http.MethodPost, "/score/sequence", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SequenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 40, resp.Frames)
	assert.InDelta(t, 0, resp.Cost, 1e-9, "resampled ramp matches the template")
	assert.Equal(t, 100, resp.Score)

	frames := make([][]landmark.Point, coach.MinSequenceFrames)
	for i := range frames {
		frames[i] = openHand()
	}
	body, err = json.Marshal(SequenceRequest{Frames: frames, Template: [][]float64{{0, 0, 0}}, Smoothing: 0.4})
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/score/sequence", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.Cost, coach.BadCost)
	assert.Equal(t, 0, resp.Score)
}

func TestScoreSequenceRejectsBadRequests(t *testing.T) {
	h := NewRouter(newPredictor(t, 2))

	ragged := ramp(25)
	ragged[3] = []float64{1}
	for name, req := range map[string]SequenceRequest{
		"no template":   {Sequence: ramp(25)},
		"too short":     {Sequence: ramp(5), Template: ramp(5)},
		"ragged rows":   {Sequence: ragged, Template: ramp(5)},
		"width differs": {Sequence: ramp(25), Template: [][]float64{{1, 2}}},
		"both inputs":   {Sequence: ramp(25), Frames: [][]landmark.Point{openHand()}, Template: ramp(5)},
	} {
		body, err := json.Marshal(req)
		require.NoError(t, err, name)
		rec := do(t, h, http.MethodPost, "/score/sequence", string(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}
