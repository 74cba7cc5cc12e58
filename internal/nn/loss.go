package nn

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// CrossEntropyLoss computes categorical cross-entropy for multi-class
// classification, averaged over the batch.
//
// Mathematical Formulation:
//
//	Loss = −(1/N) Σ_n Σ_k y[n,k] · log_softmax(logits)[n,k]
//
// Gradient (Backward):
//
//	∂L/∂logits = (Softmax(logits) − y) / N
//
// Expects raw logits; log-softmax uses the log-sum-exp trick, so large logits
// neither overflow nor need clipping.
type CrossEntropyLoss struct {
	backend tensor.Backend
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss(backend tensor.Backend) *CrossEntropyLoss {
	return &CrossEntropyLoss{backend: backend}
}

// Forward computes the loss for logits [N, K] against one-hot targets [N, K].
func (l *CrossEntropyLoss) Forward(logits, targets *tensor.Tensor) *tensor.Tensor {
	checkLossInputs("CrossEntropyLoss", logits, targets)
	return l.backend.CrossEntropy(logits, targets)
}

// KLDivergenceLoss measures how far the temperature-softened student
// distribution is from the teacher's soft targets:
//
//	Loss = (1/N) Σ_n Σ_k p[n,k] · (log p[n,k] − log softmax(z/T)[n,k])
//
// p are constants (the teacher is frozen), so only z receives a gradient.
// No T² rescaling is applied.
type KLDivergenceLoss struct {
	temperature float32
	backend     tensor.Backend
}

// NewKLDivergenceLoss creates a KL divergence loss at the given temperature.
func NewKLDivergenceLoss(temperature float32, backend tensor.Backend) (*KLDivergenceLoss, error) {
	if temperature <= 0 {
		return nil, &ConfigurationError{Field: "temperature", Value: temperature, Details: "must be positive"}
	}
	return &KLDivergenceLoss{temperature: temperature, backend: backend}, nil
}

// Forward computes the loss of student logits against soft targets.
func (l *KLDivergenceLoss) Forward(softTargets, logits *tensor.Tensor) *tensor.Tensor {
	checkLossInputs("KLDivergenceLoss", logits, softTargets)
	return l.backend.KLDivergence(softTargets, logits, l.temperature)
}

// Temperature returns the softening temperature.
func (l *KLDivergenceLoss) Temperature() float32 {
	return l.temperature
}

// Softmax returns softmax(logits / temperature) along the class axis.
func Softmax(backend tensor.Backend, logits *tensor.Tensor, temperature float32) *tensor.Tensor {
	if temperature != 1 {
		logits = backend.MulScalar(logits, 1/temperature)
	}
	return backend.Softmax(logits)
}

func checkLossInputs(op string, logits, targets *tensor.Tensor) {
	if len(logits.Shape()) != 2 {
		panic(fmt.Sprintf("%s: expected logits [batch, classes], got %v", op, logits.Shape()))
	}
	if !logits.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("%s: targets %v do not match logits %v", op, targets.Shape(), logits.Shape()))
	}
}
