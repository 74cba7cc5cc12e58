package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// Dropout zeroes a random fraction of its inputs during training and scales
// the survivors by 1/(1-rate), so inference is the identity.
//
// The mask is drawn from the layer's own random source; seeding that source
// makes training runs reproducible.
type Dropout struct {
	rate    float32
	rng     *rand.Rand
	backend tensor.Backend
}

// NewDropout creates a dropout layer. rate must lie in [0, 1).
func NewDropout(rate float32, backend tensor.Backend, rng *rand.Rand) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, &ConfigurationError{Field: "dropout_rate", Value: rate, Details: "must lie in [0, 1)"}
	}
	if rng == nil {
		return nil, fmt.Errorf("dropout: %w: nil random source", ErrConfiguration)
	}
	return &Dropout{rate: rate, rng: rng, backend: backend}, nil
}

// Forward applies the dropout mask in training mode.
func (d *Dropout) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	if !training || d.rate == 0 {
		return input
	}
	keep := 1 / (1 - d.rate)
	mask := tensor.Zeros(input.Shape())
	md := mask.Data()
	for i := range md {
		if d.rng.Float32() >= d.rate {
			md[i] = keep
		}
	}
	return d.backend.Mul(input, mask)
}

// Parameters returns nil.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}

// Rate returns the drop probability.
func (d *Dropout) Rate() float32 {
	return d.rate
}
