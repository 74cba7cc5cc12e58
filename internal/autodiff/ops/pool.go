package ops

import "github.com/born-ml/distill/internal/tensor"

// MaxPool2DOp records a max pooling operation.
//
// Backward: the gradient of each output pixel flows only to the input
// position that won its window.
type MaxPool2DOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	size   int
	stride int
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
func NewMaxPool2DOp(input, output *tensor.Tensor, size, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{input: input, output: output, size: size, stride: stride}
}

// Backward routes gradients through the max positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.MaxPool2DBackward(op.input, outputGrad, op.size, op.stride)}
}

// Inputs returns [input].
func (op *MaxPool2DOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns the pooled tensor.
func (op *MaxPool2DOp) Output() *tensor.Tensor { return op.output }

// GlobalAvgPool2DOp records a spatial mean per channel.
type GlobalAvgPool2DOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewGlobalAvgPool2DOp creates a new GlobalAvgPool2D operation.
func NewGlobalAvgPool2DOp(input, output *tensor.Tensor) *GlobalAvgPool2DOp {
	return &GlobalAvgPool2DOp{input: input, output: output}
}

// Backward spreads the gradient evenly over the pooled positions.
func (op *GlobalAvgPool2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.GlobalAvgPool2DBackward(outputGrad, op.input.Shape())}
}

// Inputs returns [input].
func (op *GlobalAvgPool2DOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns the [N, C] averages.
func (op *GlobalAvgPool2DOp) Output() *tensor.Tensor { return op.output }

// ScaleChannelsOp records output = input * gate, gate broadcast over H and W.
//
// This is the recalibration product of a squeeze-and-excitation block.
type ScaleChannelsOp struct {
	input  *tensor.Tensor
	gate   *tensor.Tensor
	output *tensor.Tensor
}

// NewScaleChannelsOp creates a new ScaleChannels operation.
func NewScaleChannelsOp(input, gate, output *tensor.Tensor) *ScaleChannelsOp {
	return &ScaleChannelsOp{input: input, gate: gate, output: output}
}

// Backward computes gradients for the feature map and the gate.
func (op *ScaleChannelsOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	inputGrad, gateGrad := backend.ScaleChannelsBackward(op.input, op.gate, outputGrad)
	return []*tensor.Tensor{inputGrad, gateGrad}
}

// Inputs returns [input, gate].
func (op *ScaleChannelsOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input, op.gate} }

// Output returns the rescaled feature map.
func (op *ScaleChannelsOp) Output() *tensor.Tensor { return op.output }
