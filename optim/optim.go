// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers used to train models.
//
//	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3})
//	grads, err := backend.Backward(loss)
//	err = opt.Step(grads)
package optim

import (
	"github.com/born-ml/distill/internal/optim"
	"github.com/born-ml/distill/nn"
)

// Optimizer applies gradient updates to parameters.
type Optimizer = optim.Optimizer

// Adam is the Adam optimizer with bias correction.
type Adam = optim.Adam

// AdamConfig configures Adam. Zero fields take the defaults.
type AdamConfig = optim.AdamConfig

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// NewAdam creates an Adam optimizer over params.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// NewSGD creates an SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}
