package ml

import (
	"fmt"
)

// ImageLoader decodes an image file into a rows×cols matrix of intensities
// in [0, 1].
type ImageLoader func(path string, rows, cols int) (*Matrix, error)

// InferenceImg classifies a single image file with a trained model and
// returns the predicted class and its output score.
func InferenceImg(model Model, imagePath string, rows, cols int, load ImageLoader) (int, float64, error) {
	fmt.Printf("Running Inference on: %s\n", imagePath)

	pixels, err := load(imagePath, rows, cols)
	if err != nil {
		return 0, 0, fmt.Errorf("loading %s: %w", imagePath, err)
	}

	out := model.Feedforward(pixels)
	class := out.ArgMax()
	confidence := out.data[class]

	fmt.Printf("Predicted class: %d\n", class)
	fmt.Printf("Confidence: %.2f%%\n", confidence*100)
	return class, confidence, nil
}
