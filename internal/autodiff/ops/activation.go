package ops

import "github.com/born-ml/distill/internal/tensor"

// ReLUOp represents output = max(0, x).
//
// Backward: d(ReLU(x))/dx = 1 if x > 0, else 0.
type ReLUOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.Tensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

// Backward masks the output gradient with the positive inputs.
func (op *ReLUOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.ReLUBackward(op.input, outputGrad)}
}

// Inputs returns [x].
func (op *ReLUOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns max(0, x).
func (op *ReLUOp) Output() *tensor.Tensor { return op.output }

// SigmoidOp represents output = σ(x).
//
// Backward uses the saved output: d_x = d_out · σ(x) · (1 − σ(x)).
type SigmoidOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(input, output *tensor.Tensor) *SigmoidOp {
	return &SigmoidOp{input: input, output: output}
}

// Backward computes the input gradient from the saved output.
func (op *SigmoidOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.SigmoidBackward(op.output, outputGrad)}
}

// Inputs returns [x].
func (op *SigmoidOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns σ(x).
func (op *SigmoidOp) Output() *tensor.Tensor { return op.output }

// SoftmaxOp represents output = softmax(x) along the last axis.
type SoftmaxOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(input, output *tensor.Tensor) *SoftmaxOp {
	return &SoftmaxOp{input: input, output: output}
}

// Backward computes the Jacobian-vector product y · (d_out − Σ d_out·y).
func (op *SoftmaxOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.SoftmaxBackward(op.output, outputGrad)}
}

// Inputs returns [x].
func (op *SoftmaxOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns softmax(x).
func (op *SoftmaxOp) Output() *tensor.Tensor { return op.output }
