package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Matrix represents a dense matrix with a flat data slice for performance.
// Column vectors are n x 1 matrices.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("invalid matrix shape [%d, %d]", rows, cols))
	}
	data := make([]float64, rows*cols)
	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

// NewMatrixFromSlice wraps data (row-major) without copying.
func NewMatrixFromSlice(rows, cols int, data []float64) *Matrix {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("slice length mismatch: got %d, want %d", len(data), rows*cols))
	}

	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

// NewVector returns a zeroed n x 1 column vector.
func NewVector(n int) *Matrix {
	return NewMatrix(n, 1)
}

// VectorFromSlice copies values into a new column vector.
func VectorFromSlice(values []float64) *Matrix {
	data := make([]float64, len(values))
	copy(data, values)
	return NewMatrixFromSlice(len(values), 1, data)
}

// MatrixFromRows copies a rectangular [][]float64 into a new matrix.
func MatrixFromRows(rows [][]float64) *Matrix {
	if len(rows) == 0 {
		panic("MatrixFromRows: no rows")
	}
	return NewMatrixFromSlice(len(rows), len(rows[0]), Flatten(rows))
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Data exposes the row-major backing slice.
func (m *Matrix) Data() []float64 { return m.data }

func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

func (m *Matrix) SameShape(b *Matrix) bool {
	return m.rows == b.rows && m.cols == b.cols
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.dense, mat.Squeeze()))
}

func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

func (m *Matrix) CopyFrom(b *Matrix) {
	mustSameShape("CopyFrom", m, b)
	copy(m.data, b.data)
}

// RandomizeUniform fills the matrix with independent draws from [lo, hi).
func (m *Matrix) RandomizeUniform(rng *rand.Rand, lo, hi float64) {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rng}
	for i := range m.data {
		m.data[i] = dist.Rand()
	}
}

func (m *Matrix) Reset() {
	for i := range m.data {
		m.data[i] = 0.0
	}
}

func (m *Matrix) Add(b *Matrix) {
	mustSameShape("Add", m, b)
	m.dense.Add(m.dense, b.dense)
}

func (m *Matrix) Subtract(b *Matrix) {
	mustSameShape("Subtract", m, b)
	m.dense.Sub(m.dense, b.dense)
}

// AddScaled performs m += alpha * b.
func (m *Matrix) AddScaled(alpha float64, b *Matrix) {
	mustSameShape("AddScaled", m, b)
	floats.AddScaled(m.data, alpha, b.data)
}

func (m *Matrix) Scale(alpha float64) {
	floats.Scale(alpha, m.data)
}

// MulElem performs the Hadamard product in place.
func (m *Matrix) MulElem(b *Matrix) {
	mustSameShape("MulElem", m, b)
	floats.Mul(m.data, b.data)
}

func (m *Matrix) ApplyFunc(fn func(float64) float64) {
	for i := range m.data {
		m.data[i] = fn(m.data[i])
	}
}

func (m *Matrix) Transpose() *Matrix {
	out := NewMatrix(m.cols, m.rows)
	out.dense.Copy(m.dense.T())
	return out
}

// Row returns row i as a new column vector.
func (m *Matrix) Row(i int) *Matrix {
	return VectorFromSlice(m.data[i*m.cols : (i+1)*m.cols])
}

// SetRow copies the vector v into row i.
func (m *Matrix) SetRow(i int, v *Matrix) {
	if len(v.data) != m.cols {
		panic(fmt.Sprintf("SetRow: length %d does not match %d columns", len(v.data), m.cols))
	}
	copy(m.data[i*m.cols:(i+1)*m.cols], v.data)
}

// ArgMax returns the flat index of the largest entry; the first maximum wins.
func (m *Matrix) ArgMax() int {
	best := 0
	for i, v := range m.data {
		if v > m.data[best] {
			best = i
		}
	}
	return best
}

func (m *Matrix) Sum() float64 {
	return floats.Sum(m.data)
}

func (m *Matrix) SumSquares() float64 {
	return floats.Dot(m.data, m.data)
}

func (m *Matrix) Equal(b *Matrix) bool {
	return m.SameShape(b) && floats.Equal(m.data, b.data)
}

func (m *Matrix) EqualApprox(b *Matrix, tol float64) bool {
	return m.SameShape(b) && floats.EqualApprox(m.data, b.data, tol)
}

// ------ UTILITY FUNCTIONS ------
func MatMul(a, b *Matrix) *Matrix {
	if a.cols != b.rows {
		panic(fmt.Sprintf("MatMul shape mismatch: [%d, %d] x [%d, %d]", a.rows, a.cols, b.rows, b.cols))
	}
	out := NewMatrix(a.rows, b.cols)
	out.dense.Mul(a.dense, b.dense)
	return out
}

// MatMulT computes a * b^T.
func MatMulT(a, b *Matrix) *Matrix {
	if a.cols != b.cols {
		panic(fmt.Sprintf("MatMulT shape mismatch: [%d, %d] x [%d, %d]^T", a.rows, a.cols, b.rows, b.cols))
	}
	out := NewMatrix(a.rows, b.rows)
	out.dense.Mul(a.dense, b.dense.T())
	return out
}

// TMatMul computes a^T * b.
func TMatMul(a, b *Matrix) *Matrix {
	if a.rows != b.rows {
		panic(fmt.Sprintf("TMatMul shape mismatch: [%d, %d]^T x [%d, %d]", a.rows, a.cols, b.rows, b.cols))
	}
	out := NewMatrix(a.cols, b.cols)
	out.dense.Mul(a.dense.T(), b.dense)
	return out
}

// Hadamard returns a new matrix holding a ⊙ b.
func Hadamard(a, b *Matrix) *Matrix {
	out := a.Clone()
	out.MulElem(b)
	return out
}

// Sub returns a new matrix holding a - b.
func Sub(a, b *Matrix) *Matrix {
	out := a.Clone()
	out.Subtract(b)
	return out
}

// Sum returns a new matrix holding the sum of all arguments.
func Sum(first *Matrix, rest ...*Matrix) *Matrix {
	out := first.Clone()
	for _, m := range rest {
		out.Add(m)
	}
	return out
}

func Flatten(input [][]float64) []float64 {
	if len(input) == 0 {
		return nil
	}
	rows, cols := len(input), len(input[0])
	flat := make([]float64, rows*cols)
	for i, row := range input {
		if len(row) != cols {
			panic(fmt.Sprintf("Flatten: row %d has %d values, want %d", i, len(row), cols))
		}
		copy(flat[i*cols:], row)
	}
	return flat
}

func mustSameShape(op string, a, b *Matrix) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("%s shape mismatch: [%d, %d] vs [%d, %d]", op, a.rows, a.cols, b.rows, b.cols))
	}
}

func mustShape(what string, m *Matrix, rows, cols int) {
	if m.rows != rows || m.cols != cols {
		panic(fmt.Sprintf("%s: got [%d, %d], want [%d, %d]", what, m.rows, m.cols, rows, cols))
	}
}
