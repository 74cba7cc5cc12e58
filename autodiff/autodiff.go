// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// It wraps any backend with a gradient tape:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := ...
//	grads, err := backend.Backward(loss)
package autodiff

import (
	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Gradients maps tensors to the gradient of the loss with respect to them.
type Gradients = autodiff.Gradients
