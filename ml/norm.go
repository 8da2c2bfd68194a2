package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// normStabiliser keeps the inverse square root finite on constant inputs.
const normStabiliser = 1e-9

// LayerNorm centres its input on zero and scales it by the inverse standard
// deviation of all entries. The variance is the sum of squared deviations
// divided by n+1, where n is the number of entries. It has no parameters.
type LayerNorm struct {
	shape Shape

	xhat   *Matrix
	invStd float64
}

func NewLayerNorm(rows, cols int) *LayerNorm {
	return &LayerNorm{shape: Shape{rows, cols}}
}

func (l *LayerNorm) InShape() Shape  { return l.shape }
func (l *LayerNorm) OutShape() Shape { return l.shape }

func (l *LayerNorm) Forward(x *Matrix) *Matrix {
	mustShape("LayerNorm input", x, l.shape.Rows, l.shape.Cols)
	mean := stat.Mean(x.data, nil)

	out := x.Clone()
	sq := 0.0
	for i, v := range out.data {
		out.data[i] = v - mean
		sq += out.data[i] * out.data[i]
	}
	variance := sq / float64(len(out.data)+1)

	l.invStd = 1 / math.Sqrt(variance+normStabiliser)
	out.Scale(l.invStd)
	l.xhat = out
	return out.Clone()
}

// Backward uses dx = invStd * (g - mean(g) - xhat * <g, xhat> / (n+1)).
func (l *LayerNorm) Backward(g *Matrix) *Matrix {
	mustShape("LayerNorm gradient", g, l.shape.Rows, l.shape.Cols)
	n := float64(len(g.data))
	meanG := stat.Mean(g.data, nil)

	proj := 0.0
	for i, v := range g.data {
		proj += v * l.xhat.data[i]
	}
	proj /= n + 1

	out := NewMatrix(l.shape.Rows, l.shape.Cols)
	for i, v := range g.data {
		out.data[i] = l.invStd * (v - meanG - l.xhat.data[i]*proj)
	}
	return out
}
