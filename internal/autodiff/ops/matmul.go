package ops

import "github.com/born-ml/distill/internal/tensor"

// MatMulOp represents output = op(A) @ op(B), where op transposes when the
// matching flag is set.
//
// Backward for the plain case (C = A @ B):
//   - d_A = d_C @ B^T
//   - d_B = A^T @ d_C
//
// The transposed cases follow by transposing the roles accordingly, so no
// transpose is ever materialized.
type MatMulOp struct {
	a, b           *tensor.Tensor
	output         *tensor.Tensor
	transA, transB bool
}

// NewMatMulOp creates a new MatMulOp.
func NewMatMulOp(a, b, output *tensor.Tensor, transA, transB bool) *MatMulOp {
	return &MatMulOp{a: a, b: b, output: output, transA: transA, transB: transB}
}

// Backward computes gradients for both operands.
func (op *MatMulOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	g := outputGrad
	var gradA, gradB *tensor.Tensor
	switch {
	case !op.transA && !op.transB:
		gradA = backend.MatMul(g, op.b, false, true)
		gradB = backend.MatMul(op.a, g, true, false)
	case op.transA && !op.transB:
		gradA = backend.MatMul(op.b, g, false, true)
		gradB = backend.MatMul(op.a, g, false, false)
	case !op.transA && op.transB:
		gradA = backend.MatMul(g, op.b, false, false)
		gradB = backend.MatMul(g, op.a, true, false)
	default:
		gradA = backend.MatMul(op.b, g, true, true)
		gradB = backend.MatMul(g, op.a, true, true)
	}
	return []*tensor.Tensor{gradA, gradB}
}

// Inputs returns [A, B].
func (op *MatMulOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }

// Output returns op(A) @ op(B).
func (op *MatMulOp) Output() *tensor.Tensor { return op.output }

// ReshapeOp represents a layout change with the same element order.
type ReshapeOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.Tensor) *ReshapeOp {
	return &ReshapeOp{input: input, output: output}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// Inputs returns [x].
func (op *ReshapeOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns the reshaped tensor.
func (op *ReshapeOp) Output() *tensor.Tensor { return op.output }
