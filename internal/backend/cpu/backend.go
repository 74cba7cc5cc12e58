// Package cpu implements the tensor.Backend contract in pure Go, with
// gonum BLAS for matrix products and goroutine fan-out for the direct loops.
package cpu

import (
	"fmt"

	"github.com/born-ml/distill/internal/parallel"
	"github.com/born-ml/distill/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	par parallel.Config
}

// Compile-time check.
var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend sized to the host's logical cores.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Reshape returns a view with a new shape. The buffer is shared; kernels never
// write into their inputs so sharing is safe.
func (cpu *CPUBackend) Reshape(t *tensor.Tensor, newShape tensor.Shape) *tensor.Tensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v", t.Shape(), t.NumElements(), newShape))
	}
	return t.View(newShape)
}

// nhwc unpacks a 4D feature-map shape.
func nhwc(op string, s tensor.Shape) (n, h, w, c int) {
	if len(s) != 4 {
		panic(fmt.Sprintf("%s: expected 4D NHWC input, got %v", op, s))
	}
	return s[0], s[1], s[2], s[3]
}

// rows2D unpacks a 2D [batch, classes] shape.
func rows2D(op string, s tensor.Shape) (rows, cols int) {
	if len(s) != 2 {
		panic(fmt.Sprintf("%s: expected 2D input, got %v", op, s))
	}
	return s[0], s[1]
}
