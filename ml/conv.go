package ml

import (
	"fmt"
	"math/rand/v2"
)

// -------- CONV 2D -------- //

// Conv2D is a valid (unpadded) 2-D cross-correlation with a single learnable
// kernel. An RX×CX input and an RW×CW kernel give an (RX-RW+1)×(CX-CW+1)
// output.
type Conv2D struct {
	Kernel *Matrix

	in, out Shape
	opt     Optimizer
	input   *Matrix
}

func NewConv2D(inRows, inCols, kRows, kCols int, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *Conv2D {
	if kRows > inRows || kCols > inCols {
		panic(fmt.Sprintf("kernel [%d, %d] larger than input [%d, %d]", kRows, kCols, inRows, inCols))
	}
	cfg := newLayerConfig(0.5, Linear, opts)
	return &Conv2D{
		Kernel: newParam(kRows, kCols, cfg, rng),
		in:     Shape{inRows, inCols},
		out:    Shape{inRows - kRows + 1, inCols - kCols + 1},
		opt:    opt.Init(kRows, kCols),
	}
}

func (l *Conv2D) InShape() Shape  { return l.in }
func (l *Conv2D) OutShape() Shape { return l.out }

func (l *Conv2D) Forward(x *Matrix) *Matrix {
	mustShape("Conv2D input", x, l.in.Rows, l.in.Cols)
	l.input = x
	return CrossCorrelate(x, l.Kernel)
}

// Backward passes the kernel gradient (cached input ⋆ g) to the optimizer and
// returns the full cross-correlation of g with the kernel.
func (l *Conv2D) Backward(g *Matrix) *Matrix {
	mustShape("Conv2D gradient", g, l.out.Rows, l.out.Cols)
	dK := CrossCorrelate(l.input, g)

	k := l.Kernel
	dx := NewMatrix(l.in.Rows, l.in.Cols)
	for i := 0; i < g.rows; i++ {
		for j := 0; j < g.cols; j++ {
			gv := g.data[i*g.cols+j]
			if gv == 0 {
				continue
			}
			for di := 0; di < k.rows; di++ {
				row := dx.data[(i+di)*dx.cols+j:]
				krow := k.data[di*k.cols : (di+1)*k.cols]
				for dj, kv := range krow {
					row[dj] += gv * kv
				}
			}
		}
	}

	l.opt.UpdateParam(l.Kernel, dK)
	return dx
}

// CrossCorrelate returns the valid cross-correlation of x with k:
// out[i,j] = Σ x[i+di, j+dj] * k[di, dj].
func CrossCorrelate(x, k *Matrix) *Matrix {
	if k.rows > x.rows || k.cols > x.cols {
		panic(fmt.Sprintf("CrossCorrelate: kernel [%d, %d] larger than input [%d, %d]", k.rows, k.cols, x.rows, x.cols))
	}
	out := NewMatrix(x.rows-k.rows+1, x.cols-k.cols+1)
	for i := 0; i < out.rows; i++ {
		for j := 0; j < out.cols; j++ {
			sum := 0.0
			for di := 0; di < k.rows; di++ {
				xrow := x.data[(i+di)*x.cols+j:]
				krow := k.data[di*k.cols : (di+1)*k.cols]
				for dj, kv := range krow {
					sum += xrow[dj] * kv
				}
			}
			out.data[i*out.cols+j] = sum
		}
	}
	return out
}

// -------- MAX POOL 2D -------- //

// MaxPool2D slides an RW×CW window with stride one and keeps the maximum of
// each window. The position of every maximum is recorded so Backward can
// route the gradient; ties go to the first maximum in row-major order.
type MaxPool2D struct {
	in, out Shape
	window  Shape
	argmax  []int
}

func NewMaxPool2D(inRows, inCols, wRows, wCols int) *MaxPool2D {
	if wRows > inRows || wCols > inCols {
		panic(fmt.Sprintf("pool window [%d, %d] larger than input [%d, %d]", wRows, wCols, inRows, inCols))
	}
	out := Shape{inRows - wRows + 1, inCols - wCols + 1}
	return &MaxPool2D{
		in:     Shape{inRows, inCols},
		out:    out,
		window: Shape{wRows, wCols},
		argmax: make([]int, out.Rows*out.Cols),
	}
}

func (l *MaxPool2D) InShape() Shape  { return l.in }
func (l *MaxPool2D) OutShape() Shape { return l.out }

func (l *MaxPool2D) Forward(x *Matrix) *Matrix {
	mustShape("MaxPool2D input", x, l.in.Rows, l.in.Cols)
	out := NewMatrix(l.out.Rows, l.out.Cols)
	for i := 0; i < l.out.Rows; i++ {
		for j := 0; j < l.out.Cols; j++ {
			best := i*x.cols + j
			for di := 0; di < l.window.Rows; di++ {
				for dj := 0; dj < l.window.Cols; dj++ {
					idx := (i+di)*x.cols + j + dj
					if x.data[idx] > x.data[best] {
						best = idx
					}
				}
			}
			l.argmax[i*l.out.Cols+j] = best
			out.data[i*l.out.Cols+j] = x.data[best]
		}
	}
	return out
}

func (l *MaxPool2D) Backward(g *Matrix) *Matrix {
	mustShape("MaxPool2D gradient", g, l.out.Rows, l.out.Cols)
	dx := NewMatrix(l.in.Rows, l.in.Cols)
	for i, idx := range l.argmax {
		dx.data[idx] += g.data[i]
	}
	return dx
}

// ArgMax returns the input coordinates of the maximum chosen for output
// cell (i, j) by the last Forward.
func (l *MaxPool2D) ArgMax(i, j int) (row, col int) {
	idx := l.argmax[i*l.out.Cols+j]
	return idx / l.in.Cols, idx % l.in.Cols
}
