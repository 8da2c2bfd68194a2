package data

import (
	"image"
	_ "image/jpeg" // Essential: Registers JPEG format
	_ "image/png"
	"os"

	"github.com/b0tShaman/gradflow/ml"
	"golang.org/x/image/draw"
)

// LoadGrayscale decodes a PNG or JPEG of any size, scales it to cols×rows
// and returns its luminance as a rows×cols matrix in [0, 1].
func LoadGrayscale(path string, rows, cols int) (*ml.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return Grayscale(src, rows, cols), nil
}

// Grayscale resamples img to cols×rows with Catmull-Rom interpolation.
func Grayscale(img image.Image, rows, cols int) *ml.Matrix {
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)

	out := make([]float64, 0, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// Standard Grayscale formula
			gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			out = append(out, gray/255)
		}
	}
	return ml.NewMatrixFromSlice(rows, cols, out)
}
