package ops

import "github.com/born-ml/distill/internal/tensor"

// AddOp represents output = a + b.
//
// Backward: d_a = d_out, d_b = d_out.
type AddOp struct {
	a, b   *tensor.Tensor
	output *tensor.Tensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.Tensor) *AddOp {
	return &AddOp{a: a, b: b, output: output}
}

// Backward passes the output gradient to both operands.
func (op *AddOp) Backward(outputGrad *tensor.Tensor, _ tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad, outputGrad}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }

// Output returns a + b.
func (op *AddOp) Output() *tensor.Tensor { return op.output }

// MulOp represents output = a * b (element-wise).
//
// Backward: d_a = d_out * b, d_b = d_out * a.
type MulOp struct {
	a, b   *tensor.Tensor
	output *tensor.Tensor
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.Tensor) *MulOp {
	return &MulOp{a: a, b: b, output: output}
}

// Backward computes gradients for both factors.
func (op *MulOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{
		backend.Mul(outputGrad, op.b),
		backend.Mul(outputGrad, op.a),
	}
}

// Inputs returns [a, b].
func (op *MulOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }

// Output returns a * b.
func (op *MulOp) Output() *tensor.Tensor { return op.output }

// MulScalarOp represents output = x * s for a constant s.
type MulScalarOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	scalar float32
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(input, output *tensor.Tensor, scalar float32) *MulScalarOp {
	return &MulScalarOp{input: input, output: output, scalar: scalar}
}

// Backward scales the output gradient by the same constant.
func (op *MulScalarOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.MulScalar(outputGrad, op.scalar)}
}

// Inputs returns [x].
func (op *MulScalarOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns x * s.
func (op *MulScalarOp) Output() *tensor.Tensor { return op.output }

// AddBiasOp represents output = x + bias broadcast over the innermost axis.
//
// Backward: d_x = d_out, d_bias = Σ d_out over every axis but the last.
type AddBiasOp struct {
	input  *tensor.Tensor
	bias   *tensor.Tensor
	output *tensor.Tensor
}

// NewAddBiasOp creates a new AddBiasOp.
func NewAddBiasOp(input, bias, output *tensor.Tensor) *AddBiasOp {
	return &AddBiasOp{input: input, bias: bias, output: output}
}

// Backward computes gradients for the input and the bias.
func (op *AddBiasOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad, backend.SumToLast(outputGrad)}
}

// Inputs returns [x, bias].
func (op *AddBiasOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input, op.bias} }

// Output returns x + bias.
func (op *AddBiasOp) Output() *tensor.Tensor { return op.output }
