package ops

import "github.com/born-ml/distill/internal/tensor"

// Conv2DOp records a full 2D convolution.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Backward (gradients):
//   - d_input:  transposed convolution of d_output with kernel
//   - d_kernel: correlation of input with d_output
type Conv2DOp struct {
	input   *tensor.Tensor
	kernel  *tensor.Tensor
	output  *tensor.Tensor
	stride  int
	padding tensor.Padding
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.Tensor, stride int, padding tensor.Padding) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.kernel}
}

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.Tensor {
	return op.output
}

// Backward delegates both gradients to the backend.
func (op *Conv2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	inputGrad, kernelGrad := backend.Conv2DBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.Tensor{inputGrad, kernelGrad}
}

// DepthwiseConv2DOp records a per-channel spatial convolution.
type DepthwiseConv2DOp struct {
	input   *tensor.Tensor
	kernel  *tensor.Tensor
	output  *tensor.Tensor
	stride  int
	padding tensor.Padding
}

// NewDepthwiseConv2DOp creates a new depthwise convolution operation.
func NewDepthwiseConv2DOp(input, kernel, output *tensor.Tensor, stride int, padding tensor.Padding) *DepthwiseConv2DOp {
	return &DepthwiseConv2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Inputs returns [input, kernel].
func (op *DepthwiseConv2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.kernel}
}

// Output returns the convolution result.
func (op *DepthwiseConv2DOp) Output() *tensor.Tensor {
	return op.output
}

// Backward delegates both gradients to the backend.
func (op *DepthwiseConv2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	inputGrad, kernelGrad := backend.DepthwiseConv2DBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.Tensor{inputGrad, kernelGrad}
}
