package autodiff

import (
	"fmt"

	"github.com/born-ml/distill/internal/autodiff/ops"
	"github.com/born-ml/distill/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	grads, err := tape.Backward(loss, backend)
type GradientTape struct {
	operations []ops.Operation // Recorded operations (in execution order)
	recording  bool            // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 128),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward computes gradients of a scalar loss with respect to every tensor
// that contributed to it, by walking the tape in reverse.
//
// Algorithm:
//  1. Seed the loss gradient with one
//  2. Walk operations in reverse order
//  3. For each operation whose output has a gradient, apply the chain rule
//  4. Accumulate gradients when the same tensor feeds several operations
//
// Tensors that were detached or produced while recording was suspended are
// leaves: no gradient flows past them.
func (t *GradientTape) Backward(loss *tensor.Tensor, backend tensor.Backend) (Gradients, error) {
	if len(t.operations) == 0 {
		return nil, ErrNoOperations
	}
	if loss.NumElements() != 1 {
		return nil, fmt.Errorf("%w: got shape %v", ErrNonScalarLoss, loss.Shape())
	}

	// Backward kernels must never be recorded.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads := make(Gradients, len(t.operations))
	grads[loss] = tensor.Ones(loss.Shape())

	reached := false
	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outputGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		reached = true
		t.accumulate(op, op.Backward(outputGrad, backend), grads, backend)
	}
	if !reached {
		return nil, ErrLossNotRecorded
	}
	return grads, nil
}

// accumulate adds each input gradient into the gradient map.
func (t *GradientTape) accumulate(op ops.Operation, inputGrads []*tensor.Tensor, grads Gradients, backend tensor.Backend) {
	for j, input := range op.Inputs() {
		if j >= len(inputGrads) || inputGrads[j] == nil {
			continue
		}
		if existing, ok := grads[input]; ok {
			grads[input] = backend.Add(existing, inputGrads[j])
		} else {
			grads[input] = inputGrads[j]
		}
	}
}
