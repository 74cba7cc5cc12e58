// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the float32 NHWC tensor used across distill.
//
// Example:
//
//	images := tensor.Zeros(tensor.Shape{8, 150, 150, 3})
//	labels, err := tensor.OneHot([]int{0, 1, 2, 0, 1, 2, 0, 1}, 3)
package tensor

import (
	"github.com/born-ml/distill/internal/tensor"
)

// Tensor is a dense row-major float32 array.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Backend computes tensor operations.
type Backend = tensor.Backend

// Padding selects how convolutions treat feature-map borders.
type Padding = tensor.Padding

// Padding modes.
const (
	PaddingValid = tensor.PaddingValid
	PaddingSame  = tensor.PaddingSame
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// OneHot encodes class indices as a [len(classes), numClasses] tensor.
func OneHot(classes []int, numClasses int) (*Tensor, error) {
	return tensor.OneHot(classes, numClasses)
}

// ArgMax returns the index of the largest value in each row of a 2D tensor.
func ArgMax(t *Tensor) []int {
	return tensor.ArgMax(t)
}
