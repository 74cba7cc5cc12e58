package models

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/tensor"
)

// StudentConfig configures the student architecture.
type StudentConfig struct {
	// Widths lists the output channels of each stage. Every stage but the
	// last downsamples and applies squeeze-and-excite attention.
	Widths         []int   `json:"widths" yaml:"widths"`
	DenseUnits     int     `json:"dense_units" yaml:"dense_units"`
	ReductionRatio int     `json:"reduction_ratio" yaml:"reduction_ratio"`
	DropoutRate    float32 `json:"dropout_rate" yaml:"dropout_rate"`
}

// DefaultStudentConfig returns five stages of 32, 64, 128, 256 and 512
// channels, a 512-unit dense layer, SE reduction 16 and 50% dropout.
func DefaultStudentConfig() StudentConfig {
	return StudentConfig{
		Widths:         []int{32, 64, 128, 256, 512},
		DenseUnits:     512,
		ReductionRatio: nn.DefaultReductionRatio,
		DropoutRate:    0.5,
	}
}

// Student is a compact classifier built from depthwise-separable stages.
//
// Stages 1..n-1:
//
//	depthwise 3×3 → BN → ReLU → pointwise 1×1 → BN → ReLU → maxpool 2 → SE
//
// Stage n:
//
//	depthwise 3×3 → BN → ReLU → pointwise 1×1 → BN → ReLU → GAP
//	→ dense → ReLU → dropout → dense(classes)
type Student struct {
	cfg        StudentConfig
	inputShape tensor.Shape
	numClasses int
	body       *nn.Sequential
	backend    tensor.Backend
}

// NewStudent creates a freshly initialized student for images of
// inputShape [H, W, C]. It fails with a ConfigurationError when the
// reduction ratio exceeds a stage width or the image is too small for the
// number of pooling stages.
func NewStudent(inputShape tensor.Shape, numClasses int, cfg StudentConfig, backend tensor.Backend, rng *rand.Rand) (*Student, error) {
	if err := validateHeader(inputShape, numClasses); err != nil {
		return nil, err
	}
	if len(cfg.Widths) == 0 {
		return nil, &nn.ConfigurationError{Field: "student.widths", Value: cfg.Widths, Details: "need at least one stage"}
	}
	if cfg.DenseUnits <= 0 {
		return nil, &nn.ConfigurationError{Field: "student.dense_units", Value: cfg.DenseUnits, Details: "must be positive"}
	}
	if err := checkDownsampling(inputShape, len(cfg.Widths)-1); err != nil {
		return nil, err
	}

	body := nn.NewSequential()
	in := inputShape[2]
	last := len(cfg.Widths) - 1
	for i, width := range cfg.Widths {
		if width <= 0 {
			return nil, &nn.ConfigurationError{Field: "student.widths", Value: cfg.Widths, Details: "widths must be positive"}
		}
		prefix := fmt.Sprintf("stage%d", i+1)
		body.Add(nn.NewDepthwiseConv2D(prefix+".depthwise", in, 3, 1, tensor.PaddingSame, backend, rng))
		body.Add(nn.NewBatchNorm(prefix+".bn1", in, backend))
		body.Add(nn.NewReLU(backend))
		body.Add(nn.NewPointwiseConv2D(prefix+".pointwise", in, width, backend, rng))
		body.Add(nn.NewBatchNorm(prefix+".bn2", width, backend))
		body.Add(nn.NewReLU(backend))
		if i == last {
			break
		}
		body.Add(nn.NewMaxPool2D(2, 2, backend))
		se, err := nn.NewSqueezeExcite(prefix+".se", width, cfg.ReductionRatio, backend, rng)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		body.Add(se)
		in = width
	}

	dropout, err := nn.NewDropout(cfg.DropoutRate, backend, rng)
	if err != nil {
		return nil, err
	}
	body.Add(nn.NewGlobalAvgPool2D(backend))
	body.Add(nn.NewLinear("head.dense", cfg.Widths[last], cfg.DenseUnits, backend, rng))
	body.Add(nn.NewReLU(backend))
	body.Add(dropout)
	body.Add(nn.NewLinear("head.logits", cfg.DenseUnits, numClasses, backend, rng))

	return &Student{
		cfg:        cfg,
		inputShape: inputShape.Clone(),
		numClasses: numClasses,
		body:       body,
		backend:    backend,
	}, nil
}

// Forward returns class logits. Dropout and batch statistics are active
// only when training is true.
func (s *Student) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	return s.body.Forward(input, training)
}

// Parameters returns all weights and batch-norm buffers in layer order.
func (s *Student) Parameters() []*nn.Parameter {
	return s.body.Parameters()
}

func (s *Student) InputShape() tensor.Shape { return s.inputShape.Clone() }

func (s *Student) NumClasses() int { return s.numClasses }

func (s *Student) Backend() tensor.Backend { return s.backend }

// Spec describes the student architecture.
func (s *Student) Spec() Spec {
	cfg := s.cfg
	cfg.Widths = append([]int(nil), s.cfg.Widths...)
	return Spec{
		Kind:       KindStudent,
		InputShape: s.inputShape.Clone(),
		NumClasses: s.numClasses,
		Student:    &cfg,
	}
}
