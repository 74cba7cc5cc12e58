package nn

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// Batch normalization defaults, matching Keras.
const (
	DefaultBatchNormMomentum = 0.99
	DefaultBatchNormEpsilon  = 1e-3
)

// BatchNorm normalizes the channel (last) axis.
//
// Training mode normalizes with batch statistics and folds them into the
// running averages:
//
//	moving = momentum·moving + (1 − momentum)·batch
//
// Inference mode normalizes with the running averages and leaves them unchanged.
type BatchNorm struct {
	channels   int
	momentum   float32
	eps        float32
	gamma      *Parameter
	beta       *Parameter
	movingMean *Parameter // buffer
	movingVar  *Parameter // buffer
	backend    tensor.Backend
}

// NewBatchNorm creates a batch normalization layer with Keras defaults.
func NewBatchNorm(name string, channels int, backend tensor.Backend) *BatchNorm {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm %s: invalid channels %d", name, channels))
	}
	shape := tensor.Shape{channels}
	return &BatchNorm{
		channels:   channels,
		momentum:   DefaultBatchNormMomentum,
		eps:        DefaultBatchNormEpsilon,
		gamma:      NewParameter(name+".gamma", tensor.Ones(shape)),
		beta:       NewParameter(name+".beta", tensor.Zeros(shape)),
		movingMean: NewBuffer(name+".moving_mean", tensor.Zeros(shape)),
		movingVar:  NewBuffer(name+".moving_variance", tensor.Ones(shape)),
		backend:    backend,
	}
}

// Forward normalizes the input.
func (bn *BatchNorm) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	if c := input.Shape().Last(); c != bn.channels {
		panic(fmt.Sprintf("BatchNorm.Forward: expected %d channels, got shape %v", bn.channels, input.Shape()))
	}
	if !training {
		return bn.backend.BatchNormInference(input, bn.gamma.Tensor(), bn.beta.Tensor(),
			bn.movingMean.Tensor(), bn.movingVar.Tensor(), bn.eps)
	}

	output, mean, variance := bn.backend.BatchNorm(input, bn.gamma.Tensor(), bn.beta.Tensor(), bn.eps)
	bn.update(bn.movingMean.Tensor(), mean)
	bn.update(bn.movingVar.Tensor(), variance)
	return output
}

func (bn *BatchNorm) update(moving, batch *tensor.Tensor) {
	md, bd := moving.Data(), batch.Data()
	for i := range md {
		md[i] = bn.momentum*md[i] + (1-bn.momentum)*bd[i]
	}
}

// Parameters returns [gamma, beta, moving_mean, moving_variance].
// The moving statistics are buffers.
func (bn *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta, bn.movingMean, bn.movingVar}
}
