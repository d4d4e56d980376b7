package model

// Batch represents a minibatch of features and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Inputs) }

// StepResult summarises one forward pass over a batch.
type StepResult struct {
	// Loss is the mean cross-entropy over the batch.
	Loss    float64
	Correct int
	Samples int
}

// Model defines the training functionality the trainer relies on.
type Model interface {
	TrainStep(batch Batch, opt Optimizer) (StepResult, error)
	EvalStep(batch Batch) (StepResult, error)
	Params() []*Param
}

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	Step(params []*Param)
}

// Param is a named, flat parameter tensor with its gradient buffer.
type Param struct {
	Name  string
	Shape []int
	Value []float64
	Grad  []float64
}

func newParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: shape,
		Value: make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// ZeroGrad clears the gradient buffer.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Tensor is a serialisable copy of a parameter.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}
