package data

import (
	"math/rand/v2"

	"github.com/b0tShaman/gradflow/ml"
	"gonum.org/v1/gonum/stat/distuv"
)

func uniformPoint(dist distuv.Uniform, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = dist.Rand()
	}
	return x
}

// Circle draws n points uniformly from [-1, 1]² labelled 1 inside the circle
// of radius 0.5 and 0 outside.
func Circle(n int, rng *rand.Rand) ([]*ml.Matrix, []int) {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rng}
	xs := make([]*ml.Matrix, n)
	labels := make([]int, n)
	for i := range xs {
		p := uniformPoint(dist, 2)
		if p[0]*p[0]+p[1]*p[1] < 0.5*0.5 {
			labels[i] = 1
		}
		xs[i] = ml.VectorFromSlice(p)
	}
	return xs, labels
}

// Linear draws n points from [-1, 1]^features labelled by the sign of a
// random hyperplane through the origin.
func Linear(n, features int, rng *rand.Rand) ([]*ml.Matrix, []int) {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rng}
	normal := uniformPoint(dist, features)

	xs := make([]*ml.Matrix, n)
	labels := make([]int, n)
	for i := range xs {
		p := uniformPoint(dist, features)
		dot := 0.0
		for j, v := range p {
			dot += v * normal[j]
		}
		if dot > 0 {
			labels[i] = 1
		}
		xs[i] = ml.VectorFromSlice(p)
	}
	return xs, labels
}

// Noise draws features and labels independently, so no model can beat chance.
func Noise(n, features, classes int, rng *rand.Rand) ([]*ml.Matrix, []int) {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rng}
	xs := make([]*ml.Matrix, n)
	labels := make([]int, n)
	for i := range xs {
		xs[i] = ml.VectorFromSlice(uniformPoint(dist, features))
		labels[i] = rng.IntN(classes)
	}
	return xs, labels
}

// SequenceSign draws steps×width sequences labelled 1 when the entries of
// the last step sum to a positive value. The earlier steps are distractors.
func SequenceSign(n, steps, width int, rng *rand.Rand) ([]*ml.Matrix, []int) {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rng}
	xs := make([]*ml.Matrix, n)
	labels := make([]int, n)
	for i := range xs {
		data := uniformPoint(dist, steps*width)
		sum := 0.0
		for _, v := range data[(steps-1)*width:] {
			sum += v
		}
		if sum > 0 {
			labels[i] = 1
		}
		xs[i] = ml.NewMatrixFromSlice(steps, width, data)
	}
	return xs, labels
}
