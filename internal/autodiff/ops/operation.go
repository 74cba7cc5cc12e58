// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and computes input gradients during the backward pass by delegating
// to the backend's backward kernels:
//   - AddOp, MulOp, MulScalarOp, AddBiasOp: element-wise arithmetic
//   - MatMulOp, ReshapeOp: dense layers and layout changes
//   - Conv2DOp, DepthwiseConv2DOp: convolutions
//   - MaxPool2DOp, GlobalAvgPool2DOp, ScaleChannelsOp: pooling and SE gating
//   - ReLUOp, SigmoidOp, SoftmaxOp: activations
//   - BatchNormOp: training-mode batch normalization
//   - CrossEntropyOp, KLDivergenceOp: losses
package ops

import "github.com/born-ml/distill/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs(); a nil entry means no
	// gradient flows to that input (labels, soft targets).
	Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor
}
