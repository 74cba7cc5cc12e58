package nn

import "github.com/born-ml/distill/internal/tensor"

// ReLU applies max(0, x) element-wise. It has no parameters.
type ReLU struct {
	backend tensor.Backend
}

// NewReLU creates a ReLU activation.
func NewReLU(backend tensor.Backend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies the activation.
func (r *ReLU) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	return r.backend.ReLU(input)
}

// Parameters returns nil.
func (r *ReLU) Parameters() []*Parameter {
	return nil
}

// Sigmoid applies 1/(1+exp(-x)) element-wise. Outputs lie in [0, 1] and
// saturate to 1 in float32 for inputs above about 17.
type Sigmoid struct {
	backend tensor.Backend
}

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid(backend tensor.Backend) *Sigmoid {
	return &Sigmoid{backend: backend}
}

// Forward applies the activation.
func (s *Sigmoid) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	return s.backend.Sigmoid(input)
}

// Parameters returns nil.
func (s *Sigmoid) Parameters() []*Parameter {
	return nil
}
