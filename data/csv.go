package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/b0tShaman/gradflow/ml"
)

// Split holds labelled examples divided into a training and a test part.
type Split struct {
	TrainX      []*ml.Matrix
	TrainLabels []int
	TestX       []*ml.Matrix
	TestLabels  []int
}

// LoadCSV reads a comma-separated file whose first row is a header and whose
// remaining rows hold `features` numeric columns followed by an integer
// class label. The first trainRatio of the rows (in file order) become the
// training set, the rest the test set.
func LoadCSV(path string, features int, trainRatio float64) (*Split, error) {
	if trainRatio < 0 || trainRatio > 1 {
		return nil, fmt.Errorf("train ratio %v outside [0, 1]", trainRatio)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = features + 1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	records = records[1:] // header

	trainLimit := int(float64(len(records)) * trainRatio)
	split := &Split{}
	for i, rec := range records {
		x := make([]float64, features)
		for j := 0; j < features; j++ {
			x[j], err = strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %d: %w", path, i+2, j+1, err)
			}
		}
		y, err := strconv.Atoi(rec[features])
		if err != nil {
			return nil, fmt.Errorf("%s row %d label: %w", path, i+2, err)
		}
		if y < 0 {
			return nil, fmt.Errorf("%s row %d: negative label %d", path, i+2, y)
		}

		if i < trainLimit {
			split.TrainX = append(split.TrainX, ml.VectorFromSlice(x))
			split.TrainLabels = append(split.TrainLabels, y)
		} else {
			split.TestX = append(split.TestX, ml.VectorFromSlice(x))
			split.TestLabels = append(split.TestLabels, y)
		}
	}
	return split, nil
}

// SplitAt divides xs and labels at trainRatio, keeping their order.
func SplitAt(xs []*ml.Matrix, labels []int, trainRatio float64) *Split {
	n := int(float64(len(xs)) * trainRatio)
	return &Split{
		TrainX: xs[:n], TrainLabels: labels[:n],
		TestX: xs[n:], TestLabels: labels[n:],
	}
}
