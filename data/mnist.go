package data

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/b0tShaman/gradflow/ml"
)

const (
	idxImageMagic = 2051
	idxLabelMagic = 2049
)

// LoadIDXImages reads an MNIST image file in IDX format:
//
//	magic number: 0x00000803 (2051)
//	number of images, rows, cols: 4 bytes each, big endian
//	pixel data: unsigned bytes (0-255)
//
// Each image becomes a rows×cols matrix scaled to [0, 1].
func LoadIDXImages(path string) ([]*ml.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readIDXImages(f)
}

func readIDXImages(r io.Reader) ([]*ml.Matrix, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != idxImageMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", header[0], idxImageMagic)
	}
	count, rows, cols := int(header[1]), int(header[2]), int(header[3])

	images := make([]*ml.Matrix, count)
	buf := make([]byte, rows*cols)
	for i := range images {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", i, err)
		}
		pixels := make([]float64, len(buf))
		for j, b := range buf {
			pixels[j] = float64(b) / 255
		}
		images[i] = ml.NewMatrixFromSlice(rows, cols, pixels)
	}
	return images, nil
}

// LoadIDXLabels reads an MNIST label file in IDX format:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes, big endian
//	label data: unsigned bytes (0-9)
func LoadIDXLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readIDXLabels(f)
}

func readIDXLabels(r io.Reader) ([]int, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != idxLabelMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", header[0], idxLabelMagic)
	}

	raw := make([]byte, header[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}
