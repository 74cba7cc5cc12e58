// Package tensor provides the float32 tensor type and the Backend contract
// used by every numerical component of the distillation pipeline.
//
// Tensors are immutable by convention once handed to an operation: kernels
// always allocate their outputs, so a tensor can be shared between the
// forward pass, the gradient tape and metric updates without copies.
// The only in-place writers are optimizers (parameter updates) and
// batch-norm running statistics.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	shape Shape
	data  []float32
}

// New wraps data without copying it. Panics if the element count does not
// match the shape.
func New(shape Shape, data []float32) *Tensor {
	if shape.NumElements() != len(data) {
		panic(fmt.Sprintf("tensor.New: shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data)))
	}
	return &Tensor{shape: shape.Clone(), data: data}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return &Tensor{shape: shape.Clone(), data: buf}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying buffer (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Item returns the value of a single-element tensor.
// Panics if the tensor holds more than one element.
func (t *Tensor) Item() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item() only works for single-element tensors, got shape %v", t.shape))
	}
	return t.data[0]
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset = offset*t.shape[i] + idx
	}
	return offset
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

// View returns a tensor with a new shape sharing the same buffer.
func (t *Tensor) View(shape Shape) *Tensor {
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("View: cannot view %v as %v", t.shape, shape))
	}
	return &Tensor{shape: shape.Clone(), data: t.data}
}

// Detach returns a tensor that shares the data but is a distinct node:
// no recorded operation produced it, so gradients never flow through it.
//
// Used to stop gradients through the frozen teacher during distillation.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{shape: t.shape, data: t.data}
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	buf := make([]float32, len(t.data))
	copy(buf, t.data)
	return &Tensor{shape: t.shape.Clone(), data: buf}
}

// CopyFrom overwrites t's data with src's. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// IsFinite reports whether every element is neither NaN nor ±Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Row returns a view of row i of a 2D tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("Row: expected 2D tensor, got %v", t.shape))
	}
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float32]%v", t.shape)
}
