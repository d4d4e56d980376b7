// Package server exposes a trained sign classifier over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"signforge/internal/inference"
	"signforge/internal/landmark"
)

// maxBody bounds a request body.
const maxBody = 1 << 20

// PredictRequest carries either a ready feature row or raw landmarks.
type PredictRequest struct {
	Features  []float64        `json:"features,omitempty"`
	Landmarks []landmark.Point `json:"landmarks,omitempty"`
	Mirror    bool             `json:"mirror,omitempty"`
}

// ClassesResponse lists the labels the model can emit.
type ClassesResponse struct {
	RunID   string   `json:"run_id"`
	Classes []string `json:"classes"`
}

// NewRouter wires the classifier and coaching routes onto a fresh router.
func NewRouter(p *inference.Predictor) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	r.HandleFunc("/classes", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, ClassesResponse{RunID: p.RunID(), Classes: p.Classes()})
	}).Methods("GET")

	r.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var req PredictRequest
		if !decode(w, r, &req) {
			return
		}
		features, err := req.features()
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		pred, err := p.Predict(features)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		slog.Debug("prediction", "label", pred.Label, "confidence", pred.Confidence)
		jsonResponse(w, http.StatusOK, pred)
	}).Methods("POST")

	registerScoring(r)
	return r
}

func (req PredictRequest) features() ([]float64, error) {
	switch {
	case len(req.Features) > 0 && len(req.Landmarks) > 0:
		return nil, errors.New("send either features or landmarks, not both")
	case len(req.Features) > 0:
		return req.Features, nil
	case len(req.Landmarks) > 0:
		return landmark.Features(req.Landmarks, req.Mirror)
	default:
		return nil, errors.New("request has no features or landmarks")
	}
}

func jsonResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

func jsonError(w http.ResponseWriter, status int, err error) {
	jsonResponse(w, status, map[string]string{"error": err.Error()})
}
