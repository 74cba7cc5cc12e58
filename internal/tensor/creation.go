package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return &Tensor{shape: shape.Clone(), data: make([]float32, shape.NumElements())}
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Scalar creates a single-element tensor with an empty shape.
func Scalar(value float32) *Tensor {
	return &Tensor{shape: Shape{}, data: []float32{value}}
}

// Randn creates a tensor with values drawn from N(0, std²).
// Note: Uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func Randn(shape Shape, std float64, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

// Uniform creates a tensor with values drawn from U(low, high).
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = float32(low + rng.Float64()*(high-low))
	}
	return t
}

// OneHot encodes class indices as a [len(classes), numClasses] tensor.
func OneHot(classes []int, numClasses int) (*Tensor, error) {
	t := Zeros(Shape{len(classes), numClasses})
	for i, c := range classes {
		if c < 0 || c >= numClasses {
			return nil, fmt.Errorf("class index %d out of range [0, %d)", c, numClasses)
		}
		t.data[i*numClasses+c] = 1
	}
	return t, nil
}

// ArgMax returns the index of the largest value in each row of a 2D tensor.
func ArgMax(t *Tensor) []int {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("ArgMax: expected 2D tensor, got %v", t.shape))
	}
	rows := t.shape[0]
	out := make([]int, rows)
	for r := range rows {
		row := t.Row(r)
		best := 0
		bestVal := float32(math.Inf(-1))
		for j, v := range row {
			if v > bestVal {
				best, bestVal = j, v
			}
		}
		out[r] = best
	}
	return out
}
