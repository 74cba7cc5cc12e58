package models

import (
	"math/rand"

	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/tensor"
)

// TeacherConfig configures the teacher head and backbone.
type TeacherConfig struct {
	Backbone         BackboneConfig `json:"backbone" yaml:"backbone"`
	HiddenUnits      int            `json:"hidden_units" yaml:"hidden_units"`
	FineTuneBackbone bool           `json:"fine_tune_backbone" yaml:"fine_tune_backbone"`
}

// DefaultTeacherConfig returns a 256-unit head on the default backbone with
// the backbone frozen.
func DefaultTeacherConfig() TeacherConfig {
	return TeacherConfig{
		Backbone:    DefaultBackboneConfig(),
		HiddenUnits: 256,
	}
}

// Teacher is a pretrained feature extractor followed by a classification head:
//
//	backbone → global average pool → dense(hidden) → ReLU → dense(classes)
type Teacher struct {
	cfg        TeacherConfig
	inputShape tensor.Shape
	numClasses int
	backbone   *ConvBackbone
	head       *nn.Sequential
	backend    tensor.Backend
}

// NewTeacher creates a teacher for images of inputShape [H, W, C].
//
// Unless cfg.FineTuneBackbone is set, backbone parameters are marked
// non-trainable and only the head learns.
func NewTeacher(inputShape tensor.Shape, numClasses int, cfg TeacherConfig, backend tensor.Backend, rng *rand.Rand) (*Teacher, error) {
	if err := validateHeader(inputShape, numClasses); err != nil {
		return nil, err
	}
	if cfg.HiddenUnits <= 0 {
		return nil, &nn.ConfigurationError{Field: "teacher.hidden_units", Value: cfg.HiddenUnits, Details: "must be positive"}
	}
	backbone, err := NewConvBackbone(inputShape[2], cfg.Backbone, backend, rng)
	if err != nil {
		return nil, err
	}
	if err := checkDownsampling(inputShape, backbone.Blocks()); err != nil {
		return nil, err
	}
	if !cfg.FineTuneBackbone {
		nn.Freeze(backbone)
	}

	head := nn.NewSequential(
		nn.NewGlobalAvgPool2D(backend),
		nn.NewLinear("head.hidden", backbone.OutChannels(), cfg.HiddenUnits, backend, rng),
		nn.NewReLU(backend),
		nn.NewLinear("head.logits", cfg.HiddenUnits, numClasses, backend, rng),
	)

	return &Teacher{
		cfg:        cfg,
		inputShape: inputShape.Clone(),
		numClasses: numClasses,
		backbone:   backbone,
		head:       head,
		backend:    backend,
	}, nil
}

// Forward returns class logits.
func (t *Teacher) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	return t.head.Forward(t.backbone.Forward(input, training), training)
}

// Parameters returns backbone parameters followed by head parameters.
func (t *Teacher) Parameters() []*nn.Parameter {
	return append(t.backbone.Parameters(), t.head.Parameters()...)
}

// Backbone returns the feature extractor.
func (t *Teacher) Backbone() *ConvBackbone {
	return t.backbone
}

func (t *Teacher) InputShape() tensor.Shape { return t.inputShape.Clone() }

func (t *Teacher) NumClasses() int { return t.numClasses }

func (t *Teacher) Backend() tensor.Backend { return t.backend }

// Spec describes the teacher architecture.
func (t *Teacher) Spec() Spec {
	cfg := t.cfg
	cfg.Backbone.Filters = append([]int(nil), t.cfg.Backbone.Filters...)
	return Spec{
		Kind:       KindTeacher,
		InputShape: t.inputShape.Clone(),
		NumClasses: t.numClasses,
		Teacher:    &cfg,
	}
}
