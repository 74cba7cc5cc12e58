package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// DefaultReductionRatio is the SE bottleneck reduction used by the student.
const DefaultReductionRatio = 16

// SqueezeExcite is a channel attention block.
//
//	s    = GlobalAvgPool(x)             [N, C]
//	z    = ReLU(s @ W1 + b1)            [N, C/r]
//	gate = Sigmoid(z @ W2 + b2)         [N, C]
//	y    = x * gate (broadcast over H, W)
//
// The output has exactly the shape of the input. Gate values lie in [0, 1],
// so the block can only attenuate channels; they are strictly inside (0, 1)
// unless a pre-activation exceeds about 17, where float32 rounds the sigmoid
// to 1.
type SqueezeExcite struct {
	channels   int
	bottleneck int
	pool       *GlobalAvgPool2D
	squeeze    *Linear
	relu       *ReLU
	excite     *Linear
	sigmoid    *Sigmoid
	backend    tensor.Backend
}

// NewSqueezeExcite creates an SE block for a feature map with the given
// channel count.
//
// The bottleneck width is floor(channels / ratio). A ratio below 1 or above
// the channel count would leave no bottleneck units and is rejected with a
// ConfigurationError.
func NewSqueezeExcite(name string, channels, ratio int, backend tensor.Backend, rng *rand.Rand) (*SqueezeExcite, error) {
	if channels <= 0 {
		return nil, &ConfigurationError{Field: "channels", Value: channels, Details: "must be positive"}
	}
	if ratio < 1 {
		return nil, &ConfigurationError{Field: "reduction_ratio", Value: ratio, Details: "must be at least 1"}
	}
	if ratio > channels {
		return nil, &ConfigurationError{
			Field:   "reduction_ratio",
			Value:   ratio,
			Details: fmt.Sprintf("exceeds channel count %d, bottleneck would be empty", channels),
		}
	}
	bottleneck := channels / ratio
	return &SqueezeExcite{
		channels:   channels,
		bottleneck: bottleneck,
		pool:       NewGlobalAvgPool2D(backend),
		squeeze:    NewLinear(name+".squeeze", channels, bottleneck, backend, rng),
		relu:       NewReLU(backend),
		excite:     NewLinear(name+".excite", bottleneck, channels, backend, rng),
		sigmoid:    NewSigmoid(backend),
		backend:    backend,
	}, nil
}

// Gate computes the per-sample channel weights [N, C] for x.
func (se *SqueezeExcite) Gate(input *tensor.Tensor, training bool) *tensor.Tensor {
	s := input.Shape()
	if len(s) != 4 || s[3] != se.channels {
		panic(fmt.Sprintf("SqueezeExcite: expected [N,H,W,%d] input, got %v", se.channels, s))
	}
	z := se.pool.Forward(input, training)
	z = se.relu.Forward(se.squeeze.Forward(z, training), training)
	return se.sigmoid.Forward(se.excite.Forward(z, training), training)
}

// Forward rescales every channel of the input by its gate.
func (se *SqueezeExcite) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	return se.backend.ScaleChannels(input, se.Gate(input, training))
}

// Parameters returns the parameters of both dense layers.
func (se *SqueezeExcite) Parameters() []*Parameter {
	return append(se.squeeze.Parameters(), se.excite.Parameters()...)
}

// Bottleneck returns the width of the squeeze layer.
func (se *SqueezeExcite) Bottleneck() int {
	return se.bottleneck
}
