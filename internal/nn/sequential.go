package nn

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input.
//
// Example:
//
//	stage := nn.NewSequential(
//	    nn.NewDepthwiseConv2D("stage1.depthwise", 3, 3, 1, tensor.PaddingSame, backend, rng),
//	    nn.NewBatchNorm("stage1.bn1", 3, backend),
//	    nn.NewReLU(backend),
//	)
//
//	output := stage.Forward(input, true)
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules: modules,
	}
}

// Forward applies all modules in sequence with the same training flag.
func (s *Sequential) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output, training)
	}
	return output
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("Sequential.Module: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}
