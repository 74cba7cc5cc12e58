package ops

import "github.com/born-ml/distill/internal/tensor"

// BatchNormOp records training-mode batch normalization.
//
// The batch mean and variance computed by the forward kernel are kept so the
// backward pass normalizes with exactly the same statistics.
type BatchNormOp struct {
	input    *tensor.Tensor
	gamma    *tensor.Tensor
	beta     *tensor.Tensor
	output   *tensor.Tensor
	mean     *tensor.Tensor
	variance *tensor.Tensor
	eps      float32
}

// NewBatchNormOp creates a new BatchNormOp.
func NewBatchNormOp(input, gamma, beta, output, mean, variance *tensor.Tensor, eps float32) *BatchNormOp {
	return &BatchNormOp{
		input:    input,
		gamma:    gamma,
		beta:     beta,
		output:   output,
		mean:     mean,
		variance: variance,
		eps:      eps,
	}
}

// Backward computes gradients for input, gamma and beta.
func (op *BatchNormOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	dx, dgamma, dbeta := backend.BatchNormBackward(op.input, op.gamma, op.mean, op.variance, outputGrad, op.eps)
	return []*tensor.Tensor{dx, dgamma, dbeta}
}

// Inputs returns [input, gamma, beta].
func (op *BatchNormOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *BatchNormOp) Output() *tensor.Tensor { return op.output }
