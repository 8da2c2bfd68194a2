package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allOptimizers = []OptimizerConfig{
	{Type: OptSGD},
	{Type: OptMomentum},
	{Type: OptRMSProp},
	{Type: OptAdagrad},
	{Type: OptAdam},
}

// Accumulators built from squared gradients never move the weight on a
// zero gradient, however warm their state is.
func TestZeroGradientAfterWarmup(t *testing.T) {
	rng := newTestRNG(1)
	for _, typ := range []OptimizerType{OptSGD, OptRMSProp, OptAdagrad} {
		t.Run(string(typ), func(t *testing.T) {
			opt := NewOptimizerFactory(OptimizerConfig{Type: typ}).Init(3, 2)
			w := randomMatrix(rng, 3, 2)
			opt.UpdateParam(w, randomMatrix(rng, 3, 2))

			before := w.Clone()
			for i := 0; i < 5; i++ {
				opt.UpdateParam(w, NewMatrix(3, 2))
			}
			assert.True(t, w.Equal(before))
		})
	}
}

func TestZeroGradientFromFreshState(t *testing.T) {
	for _, cfg := range allOptimizers {
		opt := NewOptimizerFactory(cfg).Init(2, 2)
		w := MatrixFromRows([][]float64{{1, -2}, {0.5, 3}})
		before := w.Clone()
		for i := 0; i < 3; i++ {
			opt.UpdateParam(w, NewMatrix(2, 2))
		}
		assert.True(t, w.Equal(before), string(cfg.Type))
	}
}

func TestSGDRule(t *testing.T) {
	opt := SGD{Alpha: R(1, 10)}.Init(2, 1)
	w := VectorFromSlice([]float64{1, 2})
	opt.UpdateParam(w, VectorFromSlice([]float64{10, -5}))
	assert.InDeltaSlice(t, []float64{0, 2.5}, w.Data(), 1e-12)
}

func TestMomentumRule(t *testing.T) {
	opt := Momentum{Alpha: R(1, 2), Beta: R(1, 2)}.Init(1, 1)
	w := VectorFromSlice([]float64{0})

	opt.UpdateParam(w, VectorFromSlice([]float64{4})) // v = 2
	assert.InDelta(t, -1.0, w.At(0, 0), 1e-12)
	opt.UpdateParam(w, VectorFromSlice([]float64{0})) // v = 1
	assert.InDelta(t, -1.5, w.At(0, 0), 1e-12)
}

func TestRMSPropRule(t *testing.T) {
	opt := RMSProp{Alpha: R(1, 10), Rho: R(9, 10)}.Init(1, 1)
	w := VectorFromSlice([]float64{1})
	opt.UpdateParam(w, VectorFromSlice([]float64{2}))

	g := 0.1 * 4
	assert.InDelta(t, 1-0.1*2/math.Sqrt(g+Epsilon), w.At(0, 0), 1e-12)
}

func TestAdagradAccumulatorNeverDecays(t *testing.T) {
	opt := Adagrad{Alpha: R(1, 1)}.Init(1, 1)
	w := VectorFromSlice([]float64{0})

	opt.UpdateParam(w, VectorFromSlice([]float64{3}))
	opt.UpdateParam(w, VectorFromSlice([]float64{4}))

	want := -3/math.Sqrt(9+Epsilon) - 4/math.Sqrt(25+Epsilon)
	assert.InDelta(t, want, w.At(0, 0), 1e-12)
}

// adamReference replays the update rule on a scalar.
func adamReference(grads []float64, alpha, b1, b2 float64) float64 {
	w, m, v := 0.0, 0.0, 0.0
	t := 1
	for _, g := range grads {
		m = b1*m + (1-b1)*g
		v = b2*v + (1-b2)*g*g
		mh, vh := m, v
		if t <= AdamBiasCutoff {
			mh /= 1 - math.Pow(b1, float64(t))
			vh /= 1 - math.Pow(b2, float64(t))
			t++
		}
		w -= alpha * mh / math.Sqrt(vh+Epsilon)
	}
	return w
}

func TestAdamFirstStepIsBiasCorrected(t *testing.T) {
	opt := Adam{Alpha: R(1, 100), Beta1: R(9, 10), Beta2: R(999, 1000)}.Init(1, 1)
	w := VectorFromSlice([]float64{0})
	opt.UpdateParam(w, VectorFromSlice([]float64{0.5}))

	// m̂ = g and v̂ = g², so the step is alpha * g / sqrt(g² + eps).
	assert.InDelta(t, -0.01*0.5/math.Sqrt(0.25+Epsilon), w.At(0, 0), 1e-12)
}

func TestAdamStopsBiasCorrectionAfterCutoff(t *testing.T) {
	grads := make([]float64, 120)
	for i := range grads {
		grads[i] = math.Sin(float64(i)) + 0.3
	}
	opt := Adam{Alpha: R(1, 100), Beta1: R(9, 10), Beta2: R(999, 1000)}.Init(1, 1)
	w := VectorFromSlice([]float64{0})
	for _, g := range grads {
		opt.UpdateParam(w, VectorFromSlice([]float64{g}))
	}
	assert.InDelta(t, adamReference(grads, 0.01, 0.9, 0.999), w.At(0, 0), 1e-10)

	adam := opt.(*adamOptimizer)
	assert.Equal(t, AdamBiasCutoff+1, adam.t, "counter stops advancing after the cutoff")
}

func TestOptimizerStateMatchesParamShape(t *testing.T) {
	opt := NewOptimizerFactory(OptimizerConfig{Type: OptAdam}).Init(4, 3)
	adam := opt.(*adamOptimizer)
	assert.Equal(t, Shape{4, 3}, Shape{adam.m.Rows(), adam.m.Cols()})
	assert.Equal(t, Shape{4, 3}, Shape{adam.v.Rows(), adam.v.Cols()})

	assert.Panics(t, func() { opt.UpdateParam(NewMatrix(4, 3), NewMatrix(3, 4)) })
}

func TestNewOptimizerFactoryDefaults(t *testing.T) {
	f := NewOptimizerFactory(OptimizerConfig{Type: OptAdam})
	require.IsType(t, Adam{}, f)
	assert.Equal(t, Adam{Alpha: R(1, 100), Beta1: R(9, 10), Beta2: R(999, 1000)}, f)

	f = NewOptimizerFactory(OptimizerConfig{Type: OptMomentum, Alpha: R(1, 20)})
	assert.Equal(t, Momentum{Alpha: R(1, 20), Beta: R(9, 10)}, f)
	assert.Equal(t, "momentum(alpha=1/20, beta=9/10)", f.Name())

	assert.Panics(t, func() { NewOptimizerFactory(OptimizerConfig{Type: "lion"}) })
	assert.Panics(t, func() { R(1, 0).Float() })
}
