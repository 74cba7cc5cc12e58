package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// This is the Keras default kernel initializer.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// He initialization for weights feeding ReLU activations.
//
// Values are drawn from N(0, 2/fan_in).
func He(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	return tensor.Randn(shape, math.Sqrt(2.0/float64(fanIn)), rng)
}
