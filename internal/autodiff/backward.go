package autodiff

import (
	"errors"

	"github.com/born-ml/distill/internal/tensor"
)

var (
	// ErrNoOperations is returned when Backward runs on an empty tape.
	ErrNoOperations = errors.New("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	// ErrNonScalarLoss is returned when the loss holds more than one element.
	ErrNonScalarLoss = errors.New("backward: loss must be a single-element tensor")
	// ErrLossNotRecorded is returned when no recorded operation produced the loss.
	ErrLossNotRecorded = errors.New("backward: loss was not produced by a recorded operation")
)

// Gradients maps a tensor to the gradient of the loss with respect to it.
// Parameters are looked up by their tensor pointer.
type Gradients map[*tensor.Tensor]*tensor.Tensor

// Of returns the gradient for t, or nil when no gradient reached it.
func (g Gradients) Of(t *tensor.Tensor) *tensor.Tensor {
	return g[t]
}

// AllFinite reports whether every gradient of the given tensors is finite.
// Tensors without a gradient are skipped.
func (g Gradients) AllFinite(ts ...*tensor.Tensor) bool {
	for _, t := range ts {
		if grad, ok := g[t]; ok && !grad.IsFinite() {
			return false
		}
	}
	return true
}

// Backward computes gradients of loss using the backend's tape.
//
// The backward kernels run on the wrapped backend, so nothing computed here
// is ever recorded.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.CrossEntropy(model.Forward(x, true), y)
//	grads, err := backend.Backward(loss)
func (b *AutodiffBackend[B]) Backward(loss *tensor.Tensor) (Gradients, error) {
	return b.tape.Backward(loss, b.inner)
}

// BackwardCapable is implemented by backends that record a tape and can
// differentiate through it. AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// Tape returns the gradient tape for manual control.
	Tape() *GradientTape
	// NoGrad runs fn with recording suspended.
	NoGrad(fn func())
	// Backward computes gradients of a scalar loss.
	Backward(loss *tensor.Tensor) (Gradients, error)
}

var _ BackwardCapable = (*AutodiffBackend[tensor.Backend])(nil)
