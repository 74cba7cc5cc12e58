package nn

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer.
//
// Max pooling reduces spatial dimensions by taking the maximum value in each
// window. It has no learnable parameters.
//
// Input shape:  [batch, height, width, channels]
// Output shape: [batch, out_height, out_width, channels]
//
// Where:
//
//	out_height = (height - size) / stride + 1
//	out_width = (width - size) / stride + 1
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, backend)
//	output := pool.Forward(input, true) // [32, 28, 28, 64] -> [32, 14, 14, 64]
type MaxPool2D struct {
	size    int
	stride  int
	backend tensor.Backend
}

// NewMaxPool2D creates a new 2D max pooling layer.
func NewMaxPool2D(size, stride int, backend tensor.Backend) *MaxPool2D {
	if size <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid pool size %d", size))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	return &MaxPool2D{size: size, stride: stride, backend: backend}
}

// Forward pools the input.
func (m *MaxPool2D) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("MaxPool2D.Forward: expected 4D input [N,H,W,C], got %v", input.Shape()))
	}
	return m.backend.MaxPool2D(input, m.size, m.stride)
}

// Parameters returns nil.
func (m *MaxPool2D) Parameters() []*Parameter {
	return nil
}

// GlobalAvgPool2D averages each channel over the spatial axes:
// [N, H, W, C] -> [N, C].
type GlobalAvgPool2D struct {
	backend tensor.Backend
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D(backend tensor.Backend) *GlobalAvgPool2D {
	return &GlobalAvgPool2D{backend: backend}
}

// Forward pools the input.
func (g *GlobalAvgPool2D) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("GlobalAvgPool2D.Forward: expected 4D input [N,H,W,C], got %v", input.Shape()))
	}
	return g.backend.GlobalAvgPool2D(input)
}

// Parameters returns nil.
func (g *GlobalAvgPool2D) Parameters() []*Parameter {
	return nil
}
