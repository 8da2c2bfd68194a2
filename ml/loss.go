package ml

import "math"

// Loss maps a prediction and a target of the same shape to a scalar cost and
// to the gradient of that cost with respect to the prediction.
type Loss interface {
	Name() string
	Func(pred, target *Matrix) float64
	Grad(pred, target *Matrix) *Matrix
}

var (
	MSE          Loss = meanSquaredError{}
	CrossEntropy Loss = crossEntropy{}
)

type meanSquaredError struct{}

func (meanSquaredError) Name() string { return "mse" }

// Func returns the squared L2 norm of pred - target.
func (meanSquaredError) Func(pred, target *Matrix) float64 {
	return Sub(pred, target).SumSquares()
}

func (meanSquaredError) Grad(pred, target *Matrix) *Matrix {
	return Sub(pred, target)
}

// crossEntropy expects strictly positive predictions (e.g. a softmax output).
// Zero components are not guarded against.
type crossEntropy struct{}

func (crossEntropy) Name() string { return "cross-entropy" }

func (crossEntropy) Func(pred, target *Matrix) float64 {
	mustSameShape("CrossEntropy", pred, target)
	cost := 0.0
	for i, t := range target.data {
		cost -= t * math.Log2(pred.data[i])
	}
	return cost
}

func (crossEntropy) Grad(pred, target *Matrix) *Matrix {
	mustSameShape("CrossEntropy", pred, target)
	out := NewMatrix(pred.rows, pred.cols)
	for i, t := range target.data {
		out.data[i] = -t / pred.data[i]
	}
	return out
}
