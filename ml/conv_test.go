package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2DOnesTimesTwos(t *testing.T) {
	l := NewConv2D(4, 4, 2, 2, &recordingFactory{}, newTestRNG(1))
	l.Kernel.CopyFrom(MatrixFromRows([][]float64{{2, 2}, {2, 2}}))

	x := NewMatrix(4, 4)
	x.ApplyFunc(func(float64) float64 { return 1 })

	out := l.Forward(x)
	require.Equal(t, Shape{3, 3}, Shape{out.Rows(), out.Cols()})
	for _, v := range out.Data() {
		assert.Equal(t, 8.0, v)
	}
}

func TestCrossCorrelateIsNotConvolution(t *testing.T) {
	x := MatrixFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	k := MatrixFromRows([][]float64{{1, 0}, {0, -1}})

	assert.Equal(t, []float64{1 - 5, 2 - 6}, CrossCorrelate(x, k).Data())
}

func TestConv2DGradients(t *testing.T) {
	rng := newTestRNG(2)
	rec := &recordingFactory{}
	l := NewConv2D(5, 6, 2, 3, rec, rng)
	require.Equal(t, Shape{4, 4}, l.OutShape())

	checkLayerGradients(t, l, rec, randomMatrix(rng, 5, 6), map[string]*Matrix{"Kernel": l.Kernel}, rng)
	assert.Equal(t, 1, rec.opts[0].calls)
}

func TestMaxPoolFixture(t *testing.T) {
	x := MatrixFromRows([][]float64{
		{8, 2, 1, 9},
		{1, 1, 3, 1},
		{1, 2, 1, 1},
		{10, 1, 1, 11},
	})
	l := NewMaxPool2D(4, 4, 2, 2)
	out := l.Forward(x)

	want := MatrixFromRows([][]float64{
		{8, 3, 9},
		{2, 3, 3},
		{10, 2, 11},
	})
	assert.True(t, out.Equal(want), "pooled values:\n%v", out)

	coords := [3][3][2]int{
		{{0, 0}, {1, 2}, {0, 3}},
		{{2, 1}, {1, 2}, {1, 2}},
		{{3, 0}, {2, 1}, {3, 3}},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r, c := l.ArgMax(i, j)
			assert.Equal(t, coords[i][j], [2]int{r, c}, "cell (%d, %d)", i, j)
		}
	}
}

func TestMaxPoolTiesGoToFirstMax(t *testing.T) {
	l := NewMaxPool2D(2, 2, 2, 2)
	l.Forward(MatrixFromRows([][]float64{{1, 5}, {5, 5}}))
	r, c := l.ArgMax(0, 0)
	assert.Equal(t, [2]int{0, 1}, [2]int{r, c})
}

func TestMaxPoolBackwardScattersAdditively(t *testing.T) {
	x := MatrixFromRows([][]float64{
		{8, 2, 1, 9},
		{1, 1, 3, 1},
		{1, 2, 1, 1},
		{10, 1, 1, 11},
	})
	l := NewMaxPool2D(4, 4, 2, 2)
	l.Forward(x)

	g := MatrixFromRows([][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	dx := l.Backward(g)
	want := MatrixFromRows([][]float64{
		{1, 0, 0, 3},
		{0, 0, 2 + 5 + 6, 0},
		{0, 4 + 8, 0, 0},
		{7, 0, 0, 9},
	})
	assert.True(t, dx.Equal(want), "gradient:\n%v", dx)
}
