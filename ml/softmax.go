package ml

// SoftmaxLayer normalises an n×1 vector into a probability distribution.
type SoftmaxLayer struct {
	n   int
	out *Matrix
}

func NewSoftmax(n int) *SoftmaxLayer {
	return &SoftmaxLayer{n: n}
}

func (l *SoftmaxLayer) InShape() Shape  { return Shape{l.n, 1} }
func (l *SoftmaxLayer) OutShape() Shape { return Shape{l.n, 1} }

func (l *SoftmaxLayer) Forward(x *Matrix) *Matrix {
	mustShape("Softmax input", x, l.n, 1)
	out := x.Clone()
	softmaxInPlace(out.data)
	l.out = out
	return out.Clone()
}

// Backward multiplies g by the Jacobian of the cached output.
func (l *SoftmaxLayer) Backward(g *Matrix) *Matrix {
	mustShape("Softmax gradient", g, l.n, 1)
	return MatMul(softmaxJacobian(l.out.data), g)
}

// Softmax2D applies softmax independently to every row of a matrix.
type Softmax2D struct {
	shape Shape
	out   *Matrix
}

func NewSoftmax2D(rows, cols int) *Softmax2D {
	return &Softmax2D{shape: Shape{rows, cols}}
}

func (l *Softmax2D) InShape() Shape  { return l.shape }
func (l *Softmax2D) OutShape() Shape { return l.shape }

func (l *Softmax2D) Forward(x *Matrix) *Matrix {
	mustShape("Softmax2D input", x, l.shape.Rows, l.shape.Cols)
	out := x.Clone()
	SoftmaxRow(out)
	l.out = out
	return out.Clone()
}

func (l *Softmax2D) Backward(g *Matrix) *Matrix {
	mustShape("Softmax2D gradient", g, l.shape.Rows, l.shape.Cols)
	return softmaxRowBackward(l.out, g)
}

// softmaxRowBackward applies each row's Jacobian to the matching row of g:
// dz_j = s_j * (g_j - <s, g>).
func softmaxRowBackward(s, g *Matrix) *Matrix {
	out := NewMatrix(s.rows, s.cols)
	for r := 0; r < s.rows; r++ {
		row := s.data[r*s.cols : (r+1)*s.cols]
		grad := g.data[r*s.cols : (r+1)*s.cols]
		dot := 0.0
		for j, v := range row {
			dot += v * grad[j]
		}
		for j, v := range row {
			out.data[r*s.cols+j] = v * (grad[j] - dot)
		}
	}
	return out
}
