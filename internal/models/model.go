// Package models builds the two image classifiers used for distillation: a
// Teacher that puts a new head on a pretrained feature extractor, and a
// compact Student made of depthwise-separable stages with squeeze-and-excite
// attention.
//
// Both models return logits from Forward. Predict turns logits into class
// probabilities.
package models

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/tensor"
)

// Kind identifies a model architecture.
type Kind string

// Known architectures.
const (
	KindTeacher Kind = "teacher"
	KindStudent Kind = "student"
)

// Model is an image classifier mapping [N, H, W, C] images to [N, K] logits.
type Model interface {
	nn.Module

	// InputShape returns the expected per-sample image shape [H, W, C].
	InputShape() tensor.Shape

	// NumClasses returns the width of the output layer.
	NumClasses() int

	// Spec describes the architecture so it can be rebuilt on load.
	Spec() Spec

	// Backend returns the backend the model computes on.
	Backend() tensor.Backend
}

// Spec is the persisted architecture description of a model.
type Spec struct {
	Kind       Kind           `json:"kind"`
	InputShape []int          `json:"input_shape"`
	NumClasses int            `json:"num_classes"`
	Teacher    *TeacherConfig `json:"teacher,omitempty"`
	Student    *StudentConfig `json:"student,omitempty"`
}

// Build constructs an untrained model from spec.
func Build(spec Spec, backend tensor.Backend, rng *rand.Rand) (Model, error) {
	switch spec.Kind {
	case KindTeacher:
		cfg := DefaultTeacherConfig()
		if spec.Teacher != nil {
			cfg = *spec.Teacher
		}
		return NewTeacher(spec.InputShape, spec.NumClasses, cfg, backend, rng)
	case KindStudent:
		cfg := DefaultStudentConfig()
		if spec.Student != nil {
			cfg = *spec.Student
		}
		return NewStudent(spec.InputShape, spec.NumClasses, cfg, backend, rng)
	default:
		return nil, &nn.ConfigurationError{Field: "kind", Value: spec.Kind, Details: "unknown model kind"}
	}
}

// CheckInput validates a batch of images against the model input contract.
func CheckInput(m Model, images *tensor.Tensor) error {
	in := m.InputShape()
	return nn.CheckShape("images", tensor.Shape{-1, in[0], in[1], in[2]}, images.Shape())
}

// Predict returns class probabilities for images, computed in inference
// mode. Nothing is recorded on an autodiff tape.
func Predict(m Model, images *tensor.Tensor) (*tensor.Tensor, error) {
	if err := CheckInput(m, images); err != nil {
		return nil, err
	}
	var probs *tensor.Tensor
	run := func() {
		probs = nn.Softmax(m.Backend(), m.Forward(images, false), 1)
	}
	if ad, ok := m.Backend().(autodiff.BackwardCapable); ok {
		ad.NoGrad(run)
	} else {
		run()
	}
	return probs, nil
}

// validateHeader checks the input shape and class count shared by every model.
func validateHeader(inputShape tensor.Shape, numClasses int) error {
	if len(inputShape) != 3 {
		return &nn.ConfigurationError{Field: "input_shape", Value: inputShape, Details: "must be [height, width, channels]"}
	}
	if err := inputShape.Validate(); err != nil {
		return &nn.ConfigurationError{Field: "input_shape", Value: inputShape, Details: err.Error()}
	}
	if numClasses < 2 {
		return &nn.ConfigurationError{Field: "num_classes", Value: numClasses, Details: "need at least 2 classes"}
	}
	return nil
}

// checkDownsampling verifies that an image of the given shape survives
// the given number of 2× poolings.
func checkDownsampling(inputShape tensor.Shape, poolings int) error {
	minSide := 1 << poolings
	if inputShape[0] < minSide || inputShape[1] < minSide {
		return &nn.ConfigurationError{
			Field:   "input_shape",
			Value:   inputShape,
			Details: fmt.Sprintf("%d pooling stages need at least %dx%d pixels", poolings, minSide, minSide),
		}
	}
	return nil
}
