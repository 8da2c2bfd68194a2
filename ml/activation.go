package ml

import (
	"fmt"
	"math"
)

var activationMap = map[string]Activation{
	"linear":  Linear,
	"sigmoid": Sigmoid,
	"relu":    Relu,
	"tanh":    Tanh,
	"softmax": Softmax,
}

// Activation is a stateless function applied to a pre-activation value z.
type Activation interface {
	Name() string
	Func(z *Matrix) *Matrix
	// Backward returns dL/dz given g = dL/da, evaluated at the pre-activation z.
	Backward(z, g *Matrix) *Matrix
}

// ElementwiseActivation has a diagonal Jacobian, so its derivative is stored
// as a matrix of the same shape as z.
type ElementwiseActivation struct {
	name string
	fn   func(float64) float64
	df   func(float64) float64
}

var (
	Linear  = ElementwiseActivation{"linear", func(x float64) float64 { return x }, func(float64) float64 { return 1 }}
	Sigmoid = ElementwiseActivation{"sigmoid", SigmoidScalar, SigmoidDerivative}
	Relu    = ElementwiseActivation{"relu", ReluScalar, ReluDerivative}
	Tanh    = ElementwiseActivation{"tanh", math.Tanh, TanhDerivative}
	Softmax = SoftmaxActivation{}
)

// ActivationByName resolves the names accepted by layer options.
func ActivationByName(name string) (Activation, error) {
	act, ok := activationMap[name]
	if !ok {
		return nil, fmt.Errorf("unknown activation: %q", name)
	}
	return act, nil
}

// -------- ELEMENTWISE -------- //
func (a ElementwiseActivation) Name() string { return a.name }

func (a ElementwiseActivation) Func(z *Matrix) *Matrix {
	out := z.Clone()
	out.ApplyFunc(a.fn)
	return out
}

// Deriv evaluates the derivative at every entry of z.
func (a ElementwiseActivation) Deriv(z *Matrix) *Matrix {
	out := z.Clone()
	out.ApplyFunc(a.df)
	return out
}

func (a ElementwiseActivation) Backward(z, g *Matrix) *Matrix {
	d := a.Deriv(z)
	d.MulElem(g)
	return d
}

func SigmoidScalar(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func SigmoidDerivative(x float64) float64 {
	y := SigmoidScalar(x)
	return y * (1 - y)
}

func ReluScalar(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReluDerivative is 0 at exactly x == 0.
func ReluDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func TanhDerivative(x float64) float64 {
	t := math.Tanh(x)
	return 1 - t*t
}

// -------- SOFTMAX -------- //

// SoftmaxActivation normalises a column vector; its Jacobian is dense.
type SoftmaxActivation struct{}

func (SoftmaxActivation) Name() string { return "softmax" }

func (SoftmaxActivation) Func(z *Matrix) *Matrix {
	out := z.Clone()
	softmaxInPlace(out.data)
	return out
}

// Jacobian returns ds_i/dz_j = s_i*(δij - s_j).
func (s SoftmaxActivation) Jacobian(z *Matrix) *Matrix {
	return softmaxJacobian(s.Func(z).data)
}

func (s SoftmaxActivation) Backward(z, g *Matrix) *Matrix {
	return MatMul(s.Jacobian(z), g)
}

func softmaxJacobian(s []float64) *Matrix {
	n := len(s)
	jac := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				jac.data[i*n+j] = s[i] * (1 - s[i])
			} else {
				jac.data[i*n+j] = -s[i] * s[j]
			}
		}
	}
	return jac
}

func softmaxInPlace(v []float64) {
	maxVal := -math.MaxFloat64
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	sum := 0.0
	for i, x := range v {
		e := math.Exp(x - maxVal)
		v[i] = e
		sum += e
	}
	for i := range v {
		v[i] /= sum
	}
}

// SoftmaxRow applies softmax to each row of the matrix.
func SoftmaxRow(m *Matrix) {
	for i := 0; i < m.rows; i++ {
		softmaxInPlace(m.data[i*m.cols : (i+1)*m.cols])
	}
}
