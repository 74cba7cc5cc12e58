// Package nn implements the neural network modules used by the teacher and
// student classifiers.
//
// This package provides building blocks for constructing networks:
//   - Module interface: Forward with an explicit training flag, Parameters
//   - Parameter: trainable weights and non-trainable buffers
//   - Layers: Linear, Conv2D, DepthwiseConv2D, PointwiseConv2D, BatchNorm,
//     MaxPool2D, GlobalAvgPool2D, Dropout, ReLU, Sigmoid
//   - SqueezeExcite: channel attention block
//   - Losses: CrossEntropyLoss, KLDivergenceLoss
//   - Sequential: container for stacking layers
//
// Feature maps are NHWC. Layers run their arithmetic through the backend they
// were built with; when that backend is an autodiff.AutodiffBackend with
// recording enabled, the forward pass is recorded for backpropagation.
package nn

import (
	"github.com/born-ml/distill/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: compute output from input
//   - Parameters: return all parameters, trainable or not
//
// The training flag selects the behavior of mode-dependent layers:
// BatchNorm uses batch statistics and updates its running averages, Dropout
// drops units. With training=false both are deterministic.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear("fc1", 784, 128, backend, rng),
//	    nn.NewReLU(backend),
//	    nn.NewLinear("fc2", 128, 10, backend, rng),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor, training bool) *tensor.Tensor

	// Parameters returns all parameters of this module, including nested
	// modules. Returns an empty slice for modules without parameters.
	Parameters() []*Parameter
}

// Trainable filters params down to the ones an optimizer may update.
func Trainable(params []*Parameter) []*Parameter {
	out := make([]*Parameter, 0, len(params))
	for _, p := range params {
		if p.Trainable() {
			out = append(out, p)
		}
	}
	return out
}

// Buffers filters params down to the non-trainable state (running statistics
// and frozen weights).
func Buffers(params []*Parameter) []*Parameter {
	out := make([]*Parameter, 0)
	for _, p := range params {
		if !p.Trainable() {
			out = append(out, p)
		}
	}
	return out
}

// Freeze marks every parameter of m as non-trainable.
func Freeze(m Module) {
	for _, p := range m.Parameters() {
		p.SetTrainable(false)
	}
}
