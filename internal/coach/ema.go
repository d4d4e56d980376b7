package coach

// DefaultAlpha is the smoothing factor used when none is given.
const DefaultAlpha = 0.4

// EMA is an exponential moving average. The first sample passes through.
type EMA struct {
	alpha  float64
	value  float64
	primed bool
}

// NewEMA returns an average weighting each new sample by alpha. alpha
// outside (0, 1] falls back to DefaultAlpha.
func NewEMA(alpha float64) *EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &EMA{alpha: alpha}
}

// Next folds x into the average and returns the new value.
func (e *EMA) Next(x float64) float64 {
	if !e.primed {
		e.value, e.primed = x, true
		return x
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

// Smooth runs a fresh EMA over xs.
func Smooth(xs []float64, alpha float64) []float64 {
	e := NewEMA(alpha)
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = e.Next(x)
	}
	return out
}
