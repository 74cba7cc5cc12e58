package optim

import (
	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/nn"
)

// DefaultSGDLR is the learning rate used when SGDConfig.LR is zero.
const DefaultSGDLR = 0.01

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = DefaultSGDLR
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(grads autodiff.Gradients) error {
	updates, err := collect(s.params, grads)
	if err != nil {
		return err
	}

	for _, u := range updates {
		data := u.param.Tensor().Data()
		if s.momentum == 0 {
			for i, g := range u.grad {
				data[i] -= s.lr * g
			}
			continue
		}

		velocity, ok := s.velocities[u.param]
		if !ok {
			velocity = make([]float32, u.param.NumElements())
			s.velocities[u.param] = velocity
		}
		for i, g := range u.grad {
			velocity[i] = s.momentum*velocity[i] + g
			data[i] -= s.lr * velocity[i]
		}
	}
	return nil
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
