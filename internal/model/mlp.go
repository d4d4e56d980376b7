package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LayerNames are the parameter prefixes of the three linear layers, laid
// out like a sequential stack of Linear, ReLU, Dropout, Linear, ReLU,
// Dropout, Linear.
var LayerNames = [3]string{"net.0", "net.3", "net.6"}

// Spec fixes the shape of an MLP.
type Spec struct {
	InputDim   int     `json:"input_dim"`
	HiddenDim  int     `json:"hidden_dim"`
	NumClasses int     `json:"num_classes"`
	Dropout    float64 `json:"dropout"`
}

// Validate checks that every dimension is positive and dropout is in [0, 1).
func (s Spec) Validate() error {
	if s.InputDim <= 0 {
		return fmt.Errorf("model: input_dim must be > 0 (got %d)", s.InputDim)
	}
	if s.HiddenDim <= 0 {
		return fmt.Errorf("model: hidden_dim must be > 0 (got %d)", s.HiddenDim)
	}
	if s.NumClasses <= 0 {
		return fmt.Errorf("model: num_classes must be > 0 (got %d)", s.NumClasses)
	}
	if s.Dropout < 0 || s.Dropout >= 1 {
		return fmt.Errorf("model: dropout must be in [0, 1) (got %g)", s.Dropout)
	}
	return nil
}

// MLP is a three layer perceptron with ReLU activations and dropout
// between layers.
type MLP struct {
	spec   Spec
	layers [3]*Linear
	rng    *rand.Rand

	// activations and dropout masks of the last training forward pass
	h1, h2       *mat.Dense
	mask1, mask2 *mat.Dense
}

// NewMLP constructs the network with uniform fan-in initialisation.
// rng also drives the dropout masks.
func NewMLP(spec Spec, rng *rand.Rand) (*MLP, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("model: rng is nil")
	}
	return &MLP{
		spec: spec,
		layers: [3]*Linear{
			newLinear(LayerNames[0], spec.InputDim, spec.HiddenDim, rng),
			newLinear(LayerNames[1], spec.HiddenDim, spec.HiddenDim, rng),
			newLinear(LayerNames[2], spec.HiddenDim, spec.NumClasses, rng),
		},
		rng: rng,
	}, nil
}

// Spec returns the architecture of m.
func (m *MLP) Spec() Spec { return m.spec }

// InputDim returns the expected feature count.
func (m *MLP) InputDim() int { return m.spec.InputDim }

// OutputDim returns the number of logits, one per class.
func (m *MLP) OutputDim() int { return m.spec.NumClasses }

// Params returns all trainable parameters in layer order.
func (m *MLP) Params() []*Param {
	out := make([]*Param, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.weight, l.bias)
	}
	return out
}

// Forward computes logits for inputs. With train set, dropout is active and
// intermediate activations are kept for Backward. With train unset, Forward
// does not mutate m and is safe for concurrent use.
func (m *MLP) Forward(inputs [][]float64, train bool) (*mat.Dense, error) {
	x, err := m.matrix(inputs)
	if err != nil {
		return nil, err
	}

	h1 := relu(m.layers[0].forward(x, train))
	d1 := h1
	if train {
		m.h1 = h1
		m.mask1, d1 = m.dropout(h1)
	}

	h2 := relu(m.layers[1].forward(d1, train))
	d2 := h2
	if train {
		m.h2 = h2
		m.mask2, d2 = m.dropout(h2)
	}

	return m.layers[2].forward(d2, train), nil
}

// Backward propagates dL/dlogits through the last training forward pass,
// accumulating parameter gradients.
func (m *MLP) Backward(dlogits *mat.Dense) error {
	if m.h1 == nil || m.layers[0].x == nil {
		return errors.New("model: backward without a training forward pass")
	}
	g := m.layers[2].backward(dlogits)
	g.MulElem(g, m.mask2)
	reluGrad(g, m.h2)

	g = m.layers[1].backward(g)
	g.MulElem(g, m.mask1)
	reluGrad(g, m.h1)

	m.layers[0].backward(g)
	return nil
}

// ZeroGrad clears every parameter gradient.
func (m *MLP) ZeroGrad() {
	for _, p := range m.Params() {
		p.ZeroGrad()
	}
}

// TrainStep runs one optimisation step over batch.
func (m *MLP) TrainStep(batch Batch, opt Optimizer) (StepResult, error) {
	m.ZeroGrad()
	logits, err := m.Forward(batch.Inputs, true)
	if err != nil {
		return StepResult{}, err
	}
	loss, grad, correct, err := CrossEntropy(logits, batch.Labels)
	if err != nil {
		return StepResult{}, err
	}
	if err := m.Backward(grad); err != nil {
		return StepResult{}, err
	}
	opt.Step(m.Params())
	m.release()
	return StepResult{Loss: loss, Correct: correct, Samples: batch.Len()}, nil
}

// EvalStep scores batch without dropout or parameter updates.
func (m *MLP) EvalStep(batch Batch) (StepResult, error) {
	logits, err := m.Forward(batch.Inputs, false)
	if err != nil {
		return StepResult{}, err
	}
	loss, _, correct, err := CrossEntropy(logits, batch.Labels)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Loss: loss, Correct: correct, Samples: batch.Len()}, nil
}

// Probabilities returns the softmax distribution for a single feature row.
// It is safe to call from multiple goroutines as long as no training step
// runs at the same time.
func (m *MLP) Probabilities(features []float64) ([]float64, error) {
	logits, err := m.Forward([][]float64{features}, false)
	if err != nil {
		return nil, err
	}
	return softmax(logits.RawRowView(0)), nil
}

// State returns a copy of every parameter keyed by name.
func (m *MLP) State() map[string]Tensor {
	state := make(map[string]Tensor, 2*len(m.layers))
	for _, p := range m.Params() {
		state[p.Name] = Tensor{
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float64(nil), p.Value...),
		}
	}
	return state
}

// LoadState overwrites parameters from state. Every parameter must be
// present with the shape fixed by m.Spec().
func (m *MLP) LoadState(state map[string]Tensor) error {
	for _, p := range m.Params() {
		t, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("model: state is missing %s", p.Name)
		}
		if !sameShape(t.Shape, p.Shape) || len(t.Data) != len(p.Value) {
			return fmt.Errorf("model: %s has shape %v, want %v", p.Name, t.Shape, p.Shape)
		}
		copy(p.Value, t.Data)
	}
	return nil
}

func (m *MLP) release() {
	m.h1, m.h2, m.mask1, m.mask2 = nil, nil, nil, nil
	for _, l := range m.layers {
		l.x = nil
	}
}

func (m *MLP) matrix(inputs [][]float64) (*mat.Dense, error) {
	if len(inputs) == 0 {
		return nil, errors.New("model: empty batch")
	}
	x := mat.NewDense(len(inputs), m.spec.InputDim, nil)
	for i, row := range inputs {
		if len(row) != m.spec.InputDim {
			return nil, fmt.Errorf("model: row %d has %d features, want %d", i, len(row), m.spec.InputDim)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

// dropout zeroes activations with probability p and rescales survivors by
// 1/(1-p). It returns the mask and the masked activations.
func (m *MLP) dropout(h *mat.Dense) (*mat.Dense, *mat.Dense) {
	r, c := h.Dims()
	mask := mat.NewDense(r, c, nil)
	p := m.spec.Dropout
	scale := 1 / (1 - p)
	raw := mask.RawMatrix().Data
	for i := range raw {
		if p == 0 || m.rng.Float64() >= p {
			raw[i] = scale
		}
	}
	out := mat.NewDense(r, c, nil)
	out.MulElem(h, mask)
	return mask, out
}

func relu(x *mat.Dense) *mat.Dense {
	x.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, x)
	return x
}

// reluGrad zeroes g wherever the activation h was clamped.
func reluGrad(g, h *mat.Dense) {
	g.Apply(func(i, j int, v float64) float64 {
		if h.At(i, j) <= 0 {
			return 0
		}
		return v
	}, g)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
