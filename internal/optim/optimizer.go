// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers only touch trainable parameters. Buffers (batch-norm running
// statistics) and frozen parameters are never updated, even when a gradient
// for them is present.
//
// Example usage:
//
//	optimizer := optim.NewAdam(student.Parameters(), optim.AdamConfig{LR: 1e-3})
//
//	backend.Tape().StartRecording()
//	loss := backend.CrossEntropy(student.Forward(images, true), labels)
//	grads, err := backend.Backward(loss)
//	backend.Tape().Clear()
//	if err := optimizer.Step(grads); err != nil {
//	    return err
//	}
package optim

import (
	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/nn"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every trainable parameter that received
	// a gradient. Gradients are checked against parameter shapes before any
	// parameter is modified, so a failed Step leaves the model untouched.
	Step(grads autodiff.Gradients) error

	// LR returns the current learning rate.
	LR() float32

	// SetLR updates the learning rate.
	SetLR(lr float32)
}

// collect pairs each trainable parameter with its gradient, skipping
// parameters that did not take part in the forward pass.
func collect(params []*nn.Parameter, grads autodiff.Gradients) ([]update, error) {
	updates := make([]update, 0, len(params))
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		g := grads.Of(p.Tensor())
		if g == nil {
			continue
		}
		if err := nn.CheckShape(p.Name()+" gradient", p.Tensor().Shape(), g.Shape()); err != nil {
			return nil, err
		}
		updates = append(updates, update{param: p, grad: g.Data()})
	}
	return updates, nil
}

type update struct {
	param *nn.Parameter
	grad  []float32
}
