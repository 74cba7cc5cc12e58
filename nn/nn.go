// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the building blocks of the distillation models and
// their error taxonomy.
package nn

import (
	"math/rand"

	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/tensor"
)

// Module is a layer or model with trainable state.
type Module = nn.Module

// Parameter is a named tensor owned by a module.
type Parameter = nn.Parameter

// ParameterCount splits a model's size by trainability.
type ParameterCount = nn.ParameterCount

// SqueezeExcite is the channel-attention block.
type SqueezeExcite = nn.SqueezeExcite

// Error categories, matched with errors.Is.
var (
	ErrConfiguration = nn.ErrConfiguration
	ErrShapeMismatch = nn.ErrShapeMismatch
	ErrNumerical     = nn.ErrNumerical
)

// Typed errors, inspected with errors.As.
type (
	ConfigurationError = nn.ConfigurationError
	ShapeMismatchError = nn.ShapeMismatchError
	NumericalError     = nn.NumericalError
)

// NewSqueezeExcite creates a squeeze-and-excitation block over channels
// with a bottleneck of channels/ratio units.
func NewSqueezeExcite(name string, channels, ratio int, backend tensor.Backend, rng *rand.Rand) (*SqueezeExcite, error) {
	return nn.NewSqueezeExcite(name, channels, ratio, backend, rng)
}

// CountParameters counts scalar values in m, split by trainability.
func CountParameters(m Module) ParameterCount {
	return nn.CountParameters(m)
}
