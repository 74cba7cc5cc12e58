// Package dataset provides labelled image batches for training and
// evaluation: an in-memory source, a loader for class-per-directory image
// folders and a synthetic generator.
package dataset

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// Batch is a set of images with their labels.
type Batch struct {
	Images  *tensor.Tensor // [N, H, W, C]
	Labels  *tensor.Tensor // one-hot [N, K]
	Classes []int          // class index per sample
}

// NewBatch one-hot encodes classes over numClasses and pairs them with images.
func NewBatch(images *tensor.Tensor, classes []int, numClasses int) (Batch, error) {
	if len(images.Shape()) != 4 || images.Shape()[0] != len(classes) {
		return Batch{}, fmt.Errorf("batch: %d labels for images %v", len(classes), images.Shape())
	}
	labels, err := tensor.OneHot(classes, numClasses)
	if err != nil {
		return Batch{}, fmt.Errorf("batch: %w", err)
	}
	return Batch{Images: images, Labels: labels, Classes: append([]int(nil), classes...)}, nil
}

// Size returns the number of samples.
func (b Batch) Size() int {
	return len(b.Classes)
}
