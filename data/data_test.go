package data

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVSplitsInFileOrder(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("x1,x2,y\n")
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Join([]string{"0.5", "-1", []string{"0", "1"}[i%2]}, ","))
		sb.WriteString("\n")
	}
	path := writeFile(t, "circle.csv", sb.String())

	split, err := LoadCSV(path, 2, 0.8)
	require.NoError(t, err)
	assert.Len(t, split.TrainX, 8)
	assert.Len(t, split.TestX, 2)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1, 0, 1}, split.TrainLabels)
	assert.Equal(t, []float64{0.5, -1}, split.TrainX[0].Data())
	assert.Equal(t, 2, split.TestX[1].Rows())
}

func TestLoadCSVErrors(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), 2, 0.8)
	assert.Error(t, err)

	_, err = LoadCSV(writeFile(t, "bad.csv", "a,b,y\n1,x,0\n"), 2, 0.8)
	assert.ErrorContains(t, err, "row 2")

	_, err = LoadCSV(writeFile(t, "short.csv", "a,b,y\n1,0\n"), 2, 0.8)
	assert.Error(t, err)

	_, err = LoadCSV(writeFile(t, "empty.csv", "a,b,y\n"), 2, 0.8)
	assert.Error(t, err)
}

func TestIDXRoundTrip(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, binary.Write(&img, binary.BigEndian, [4]uint32{2051, 2, 2, 3}))
	img.Write([]byte{0, 255, 51, 0, 0, 0, 255, 255, 255, 255, 255, 255})

	images, err := readIDXImages(&img)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, 2, images[0].Rows())
	assert.Equal(t, 3, images[0].Cols())
	assert.Equal(t, []float64{0, 1, 0.2, 0, 0, 0}, images[0].Data())

	var lbl bytes.Buffer
	require.NoError(t, binary.Write(&lbl, binary.BigEndian, [2]uint32{2049, 3}))
	lbl.Write([]byte{7, 0, 9})
	path := writeFile(t, "labels.idx", lbl.String())

	labels, err := LoadIDXLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 0, 9}, labels)
}

func TestIDXRejectsWrongMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, [4]uint32{2049, 1, 1, 1}))
	_, err := readIDXImages(&buf)
	assert.ErrorContains(t, err, "invalid magic number")

	var trunc bytes.Buffer
	require.NoError(t, binary.Write(&trunc, binary.BigEndian, [4]uint32{2051, 2, 2, 2}))
	trunc.Write([]byte{1, 2, 3, 4, 5})
	_, err = readIDXImages(&trunc)
	assert.ErrorContains(t, err, "image 1")
}

func TestLoadGrayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "white.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	m, err := LoadGrayscale(path, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Rows())
	for _, v := range m.Data() {
		assert.InDelta(t, 1.0, v, 1e-2)
	}

	_, err = LoadGrayscale(writeFile(t, "x.png", "not an image"), 4, 4)
	assert.Error(t, err)
}

func TestCostWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	costs := make(chan float64, 3)
	costs <- 1.5
	costs <- 0.25
	costs <- 2
	close(costs)

	require.NoError(t, CostWriter(dir)("circle", costs))
	got, err := os.ReadFile(filepath.Join(dir, "circle.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1.5\n0.25\n2\n", string(got))
}

func TestSyntheticLabels(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	xs, labels := Circle(500, rng)
	for i, x := range xs {
		d := x.Data()
		inside := d[0]*d[0]+d[1]*d[1] < 0.25
		assert.Equal(t, inside, labels[i] == 1)
	}

	xs, _ = Linear(2000, 3, rng)
	first := make([]float64, len(xs))
	for i, x := range xs {
		first[i] = x.At(0, 0)
	}
	assert.InDelta(t, 0, stat.Mean(first, nil), 0.05)

	seqs, labels := SequenceSign(100, 4, 2, rng)
	for i, s := range seqs {
		require.Equal(t, 4, s.Rows())
		assert.Equal(t, s.At(3, 0)+s.At(3, 1) > 0, labels[i] == 1)
	}

	_, noise := Noise(1000, 2, 3, rng)
	counts := make([]float64, 3)
	for _, l := range noise {
		counts[l]++
	}
	for _, c := range counts {
		assert.InDelta(t, 333, c, 60)
	}
}

func TestSplitAt(t *testing.T) {
	xs, labels := Circle(10, rand.New(rand.NewPCG(3, 4)))
	s := SplitAt(xs, labels, 0.7)
	assert.Len(t, s.TrainX, 7)
	assert.Len(t, s.TestLabels, 3)
}
