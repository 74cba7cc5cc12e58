package nn

import (
	"github.com/born-ml/distill/internal/tensor"
)

// Parameter represents a named tensor owned by a layer.
//
// Trainable parameters are weights and biases updated by an optimizer.
// Non-trainable parameters ("buffers") hold state such as batch-norm running
// statistics or the weights of a frozen backbone; they are persisted with the
// model but never receive optimizer updates.
//
// Example:
//
//	weight := nn.NewParameter("dense.kernel", weightTensor)
//	w := weight.Tensor()
//	g := grads.Of(w) // gradient after backward pass
type Parameter struct {
	name      string         // Fully qualified name (e.g., "stage1.pointwise.kernel")
	tensor    *tensor.Tensor // The parameter tensor
	trainable bool
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:      name,
		tensor:    t,
		trainable: true,
	}
}

// NewBuffer creates a non-trainable parameter.
func NewBuffer(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Trainable reports whether optimizers may update this parameter.
func (p *Parameter) Trainable() bool {
	return p.trainable
}

// SetTrainable toggles optimizer updates for this parameter.
func (p *Parameter) SetTrainable(trainable bool) {
	p.trainable = trainable
}

// NumElements returns the number of scalar values held by the parameter.
func (p *Parameter) NumElements() int {
	return p.tensor.NumElements()
}
