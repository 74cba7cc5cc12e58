package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/distill/internal/tensor"
)

func checkLossShapes(op string, logits, targets *tensor.Tensor) (rows, cols int) {
	rows, cols = rows2D(op, logits.Shape())
	if !targets.Shape().Equal(logits.Shape()) {
		panic(fmt.Sprintf("%s: targets shape %v does not match logits shape %v", op, targets.Shape(), logits.Shape()))
	}
	if rows == 0 {
		panic(fmt.Sprintf("%s: empty batch", op))
	}
	return rows, cols
}

// CrossEntropy computes mean over the batch of −Σ_k t_k · log_softmax(z)_k.
//
// Log-softmax uses the log-sum-exp trick, so no probability is ever clipped.
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.Tensor) *tensor.Tensor {
	rows, cols := checkLossShapes("cross_entropy", logits, targets)
	logp := make([]float32, cols)
	var total float64
	for r := 0; r < rows; r++ {
		logSoftmaxRow(logits.Row(r), logp, 1)
		for k, t := range targets.Row(r) {
			if t != 0 {
				total -= float64(t * logp[k])
			}
		}
	}
	return tensor.Scalar(float32(total / float64(rows)))
}

// CrossEntropyBackward returns ∂L/∂z = g · (softmax(z)·Σt − t) / N.
func (cpu *CPUBackend) CrossEntropyBackward(logits, targets, outputGrad *tensor.Tensor) *tensor.Tensor {
	rows, cols := checkLossShapes("cross_entropy_backward", logits, targets)
	scale := outputGrad.Item() / float32(rows)
	grad := tensor.Zeros(logits.Shape())
	p := make([]float32, cols)
	for r := 0; r < rows; r++ {
		softmaxRow(logits.Row(r), p, 1)
		t := targets.Row(r)
		var mass float32
		for _, v := range t {
			mass += v
		}
		dst := grad.Row(r)
		for k := range dst {
			dst[k] = scale * (p[k]*mass - t[k])
		}
	}
	return grad
}

// KLDivergence computes mean over the batch of Σ_k p_k · (log p_k − log q_k),
// where q = softmax(z / T). Terms with p_k = 0 contribute nothing; a NaN
// target makes the loss NaN.
func (cpu *CPUBackend) KLDivergence(targets, logits *tensor.Tensor, temperature float32) *tensor.Tensor {
	rows, cols := checkLossShapes("kl_divergence", logits, targets)
	logq := make([]float32, cols)
	var total float64
	for r := 0; r < rows; r++ {
		logSoftmaxRow(logits.Row(r), logq, temperature)
		for k, p := range targets.Row(r) {
			if p > 0 || p != p {
				total += float64(p) * (math.Log(float64(p)) - float64(logq[k]))
			}
		}
	}
	return tensor.Scalar(float32(total / float64(rows)))
}

// KLDivergenceBackward returns ∂L/∂z = g · (q·Σp − p) / (N·T).
func (cpu *CPUBackend) KLDivergenceBackward(targets, logits, outputGrad *tensor.Tensor, temperature float32) *tensor.Tensor {
	rows, cols := checkLossShapes("kl_divergence_backward", logits, targets)
	scale := outputGrad.Item() / (float32(rows) * temperature)
	grad := tensor.Zeros(logits.Shape())
	q := make([]float32, cols)
	for r := 0; r < rows; r++ {
		softmaxRow(logits.Row(r), q, temperature)
		p := targets.Row(r)
		var mass float32
		for _, v := range p {
			mass += v
		}
		dst := grad.Row(r)
		for k := range dst {
			dst[k] = scale * (q[k]*mass - p[k])
		}
	}
	return grad
}
