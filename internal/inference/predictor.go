// Package inference classifies feature rows with a trained checkpoint.
package inference

import (
	"fmt"

	"signforge/internal/checkpoint"
	"signforge/internal/dataset"
	"signforge/internal/model"
)

// Prediction is the classifier's answer for one feature row.
type Prediction struct {
	Label         string             `json:"label"`
	Index         int                `json:"index"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor wraps a restored model and its label table. It is safe for
// concurrent use.
type Predictor struct {
	runID string
	model *model.MLP
	enc   *dataset.LabelEncoder
}

// NewPredictor restores the model stored in c.
func NewPredictor(c *checkpoint.Checkpoint) (*Predictor, error) {
	m, err := c.Model()
	if err != nil {
		return nil, err
	}
	enc, err := c.Encoder()
	if err != nil {
		return nil, err
	}
	return &Predictor{runID: c.RunID, model: m, enc: enc}, nil
}

// Load reads the checkpoint at path and restores a Predictor from it.
func Load(path string) (*Predictor, error) {
	c, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}
	return NewPredictor(c)
}

// RunID identifies the training run the model came from.
func (p *Predictor) RunID() string { return p.runID }

// InputDim returns the feature count the model expects.
func (p *Predictor) InputDim() int { return p.model.InputDim() }

// Classes returns the label table.
func (p *Predictor) Classes() []string { return p.enc.Classes() }

// Predict classifies one feature row.
func (p *Predictor) Predict(features []float64) (Prediction, error) {
	if len(features) != p.model.InputDim() {
		return Prediction{}, fmt.Errorf("inference: got %d features, model expects %d", len(features), p.model.InputDim())
	}
	probs, err := p.model.Probabilities(features)
	if err != nil {
		return Prediction{}, err
	}
	best := model.Argmax(probs)
	label, err := p.enc.Decode(best)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{
		Label:         label,
		Index:         best,
		Confidence:    probs[best],
		Probabilities: make(map[string]float64, len(probs)),
	}
	for i, v := range probs {
		name, _ := p.enc.Decode(i)
		pred.Probabilities[name] = v
	}
	return pred, nil
}
