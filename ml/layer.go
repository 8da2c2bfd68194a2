package ml

import (
	"fmt"
	"math/rand/v2"
)

// -------- TYPE DEFINITIONS -------- //

// Shape is the fixed size of the matrix a layer consumes or produces.
type Shape struct {
	Rows, Cols int
}

func (s Shape) String() string { return fmt.Sprintf("[%d, %d]", s.Rows, s.Cols) }

// Layer caches whatever its last Forward needs so that the next Backward can
// compute the local derivative. Backward receives dL/d(output), updates the
// layer's parameters through their optimizers and returns dL/d(input).
// Forward and Backward must alternate on the same example.
type Layer interface {
	Forward(x *Matrix) *Matrix
	Backward(g *Matrix) *Matrix
	InShape() Shape
	OutShape() Shape
}

type LayerOption func(*LayerConfig)

// LayerConfig holds the tunables shared by layer constructors.
type LayerConfig struct {
	InitRange  float64 // weights are drawn from [-InitRange, InitRange)
	Activation Activation
	Candidate  Activation // LSTM candidate gate
}

func newLayerConfig(initRange float64, act Activation, opts []LayerOption) LayerConfig {
	cfg := LayerConfig{InitRange: initRange, Activation: act, Candidate: Tanh}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ------- LAYER OPTIONS ------- //

func WithInitRange(r float64) LayerOption {
	return func(lc *LayerConfig) {
		if r <= 0 {
			panic(fmt.Sprintf("init range must be positive, got %v", r))
		}
		lc.InitRange = r
	}
}

func WithActivation(act Activation) LayerOption {
	return func(lc *LayerConfig) {
		lc.Activation = act
	}
}

// WithCandidateActivation overrides the LSTM candidate gate activation.
func WithCandidateActivation(act Activation) LayerOption {
	return func(lc *LayerConfig) {
		lc.Candidate = act
	}
}

func newParam(rows, cols int, cfg LayerConfig, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	m.RandomizeUniform(rng, -cfg.InitRange, cfg.InitRange)
	return m
}

// -------- STACK -------- //

// Stack runs its layers in order forward and in reverse order backward.
type Stack struct {
	Layers []Layer
}

// NewStack panics if the output shape of one layer differs from the input
// shape of the next.
func NewStack(layers ...Layer) *Stack {
	if len(layers) == 0 {
		panic("NewStack: no layers")
	}
	for i := 1; i < len(layers); i++ {
		out, in := layers[i-1].OutShape(), layers[i].InShape()
		if out != in {
			panic(fmt.Sprintf("layer %d outputs %v but layer %d expects %v", i-1, out, i, in))
		}
	}
	return &Stack{Layers: layers}
}

func (s *Stack) Forward(x *Matrix) *Matrix {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}

func (s *Stack) Backward(g *Matrix) *Matrix {
	for i := len(s.Layers) - 1; i >= 0; i-- {
		g = s.Layers[i].Backward(g)
	}
	return g
}

func (s *Stack) InShape() Shape  { return s.Layers[0].InShape() }
func (s *Stack) OutShape() Shape { return s.Layers[len(s.Layers)-1].OutShape() }

// -------- AFFINE -------- //

// Affine computes act(W·a + b) for a column vector a.
type Affine struct {
	W, B *Matrix
	Act  Activation

	optW, optB Optimizer
	input, z   *Matrix
}

// NewAffine builds an in -> out layer. The activation defaults to Relu and
// weights are drawn from [-0.5, 0.5).
func NewAffine(in, out int, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *Affine {
	cfg := newLayerConfig(0.5, Relu, opts)
	return &Affine{
		W:    newParam(out, in, cfg, rng),
		B:    newParam(out, 1, cfg, rng),
		Act:  cfg.Activation,
		optW: opt.Init(out, in),
		optB: opt.Init(out, 1),
	}
}

func (l *Affine) InShape() Shape  { return Shape{l.W.cols, 1} }
func (l *Affine) OutShape() Shape { return Shape{l.W.rows, 1} }

func (l *Affine) Forward(x *Matrix) *Matrix {
	mustShape("Affine input", x, l.W.cols, 1)
	z := MatMul(l.W, x)
	z.Add(l.B)
	l.input, l.z = x, z
	return l.Act.Func(z)
}

func (l *Affine) Backward(g *Matrix) *Matrix {
	d := l.Act.Backward(l.z, g)
	dW := MatMulT(d, l.input)
	upstream := TMatMul(l.W, d)

	l.optW.UpdateParam(l.W, dW)
	l.optB.UpdateParam(l.B, d)
	return upstream
}

// -------- AFFINE 2D -------- //

// Affine2D maps an X×N input to act(W·x + B) of shape Y×N; every column
// shares W while B holds one bias per output cell.
type Affine2D struct {
	W, B *Matrix
	Act  ElementwiseActivation

	optW, optB Optimizer
	input, z   *Matrix
}

func NewAffine2D(in, out, cols int, act ElementwiseActivation, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *Affine2D {
	cfg := newLayerConfig(0.5, act, opts)
	return &Affine2D{
		W:    newParam(out, in, cfg, rng),
		B:    newParam(out, cols, cfg, rng),
		Act:  act,
		optW: opt.Init(out, in),
		optB: opt.Init(out, cols),
	}
}

func (l *Affine2D) InShape() Shape  { return Shape{l.W.cols, l.B.cols} }
func (l *Affine2D) OutShape() Shape { return Shape{l.B.rows, l.B.cols} }

func (l *Affine2D) Forward(x *Matrix) *Matrix {
	mustShape("Affine2D input", x, l.W.cols, l.B.cols)
	z := MatMul(l.W, x)
	z.Add(l.B)
	l.input, l.z = x, z
	return l.Act.Func(z)
}

func (l *Affine2D) Backward(g *Matrix) *Matrix {
	d := l.Act.Backward(l.z, g)
	dW := MatMulT(d, l.input)
	upstream := TMatMul(l.W, d)

	l.optW.UpdateParam(l.W, dW)
	l.optB.UpdateParam(l.B, d)
	return upstream
}

// -------- ACTIVATION LAYER -------- //

// ActivationLayer applies an elementwise activation to a matrix of any shape.
type ActivationLayer struct {
	Act   ElementwiseActivation
	shape Shape
	z     *Matrix
}

func NewActivationLayer(rows, cols int, act ElementwiseActivation) *ActivationLayer {
	return &ActivationLayer{Act: act, shape: Shape{rows, cols}}
}

func (l *ActivationLayer) InShape() Shape  { return l.shape }
func (l *ActivationLayer) OutShape() Shape { return l.shape }

func (l *ActivationLayer) Forward(x *Matrix) *Matrix {
	mustShape("ActivationLayer input", x, l.shape.Rows, l.shape.Cols)
	l.z = x
	return l.Act.Func(x)
}

func (l *ActivationLayer) Backward(g *Matrix) *Matrix {
	return l.Act.Backward(l.z, g)
}

// -------- RESHAPE -------- //

// Reshape reinterprets the row-major data of a matrix under another shape.
// It is the boundary between 2-D feature maps and column vectors.
type Reshape struct {
	in, out Shape
}

func NewReshape(in, out Shape) *Reshape {
	if in.Rows*in.Cols != out.Rows*out.Cols {
		panic(fmt.Sprintf("cannot reshape %v into %v", in, out))
	}
	return &Reshape{in: in, out: out}
}

// NewFlatten turns a rows×cols matrix into a (rows*cols)×1 vector.
func NewFlatten(rows, cols int) *Reshape {
	return NewReshape(Shape{rows, cols}, Shape{rows * cols, 1})
}

// NewUnflatten is the inverse of NewFlatten.
func NewUnflatten(rows, cols int) *Reshape {
	return NewReshape(Shape{rows * cols, 1}, Shape{rows, cols})
}

func (l *Reshape) InShape() Shape  { return l.in }
func (l *Reshape) OutShape() Shape { return l.out }

func (l *Reshape) Forward(x *Matrix) *Matrix {
	mustShape("Reshape input", x, l.in.Rows, l.in.Cols)
	return NewMatrixFromSlice(l.out.Rows, l.out.Cols, append([]float64(nil), x.data...))
}

func (l *Reshape) Backward(g *Matrix) *Matrix {
	mustShape("Reshape gradient", g, l.out.Rows, l.out.Cols)
	return NewMatrixFromSlice(l.in.Rows, l.in.Cols, append([]float64(nil), g.data...))
}
