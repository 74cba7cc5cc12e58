package ops

import "github.com/born-ml/distill/internal/tensor"

// CrossEntropyOp records the categorical cross-entropy of logits against
// one-hot (or soft) targets, averaged over the batch.
//
// Backward: d_logits = (softmax(logits) − targets) / N. Targets are labels
// and receive no gradient.
type CrossEntropyOp struct {
	logits  *tensor.Tensor
	targets *tensor.Tensor
	output  *tensor.Tensor
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.Tensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Backward computes the logits gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.CrossEntropyBackward(op.logits, op.targets, outputGrad), nil}
}

// Inputs returns [logits, targets].
func (op *CrossEntropyOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.logits, op.targets}
}

// Output returns the scalar loss.
func (op *CrossEntropyOp) Output() *tensor.Tensor { return op.output }

// KLDivergenceOp records KL(targets ‖ softmax(logits / T)), summed over
// classes and averaged over the batch.
//
// Targets are constant soft labels: only the logits receive a gradient.
type KLDivergenceOp struct {
	targets     *tensor.Tensor
	logits      *tensor.Tensor
	output      *tensor.Tensor
	temperature float32
}

// NewKLDivergenceOp creates a new KLDivergenceOp.
func NewKLDivergenceOp(targets, logits, output *tensor.Tensor, temperature float32) *KLDivergenceOp {
	return &KLDivergenceOp{targets: targets, logits: logits, output: output, temperature: temperature}
}

// Backward computes the logits gradient.
func (op *KLDivergenceOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{nil, backend.KLDivergenceBackward(op.targets, op.logits, outputGrad, op.temperature)}
}

// Inputs returns [targets, logits].
func (op *KLDivergenceOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.targets, op.logits}
}

// Output returns the scalar loss.
func (op *KLDivergenceOp) Output() *tensor.Tensor { return op.output }
