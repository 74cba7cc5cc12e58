package models

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/serialization"
	"github.com/born-ml/distill/internal/tensor"
)

// FeatureExtractor is a pretrained image encoder treated as a black box:
// images in, a feature map with a fixed channel count out.
type FeatureExtractor interface {
	nn.Module

	// OutChannels returns the channel count of the produced feature map.
	OutChannels() int
}

// BackboneConfig describes a ConvBackbone.
type BackboneConfig struct {
	Filters []int `json:"filters" yaml:"filters"` // Output channels per block
}

// DefaultBackboneConfig returns three blocks of 32, 64 and 128 filters.
func DefaultBackboneConfig() BackboneConfig {
	return BackboneConfig{Filters: []int{32, 64, 128}}
}

// ConvBackbone stacks blocks of 3×3 convolution, ReLU and 2× max pooling.
//
// Parameters are named "backbone.block<i>.conv.kernel" and
// "backbone.block<i>.conv.bias", so weights exported from a trained teacher
// can be loaded into a fresh backbone.
type ConvBackbone struct {
	filters []int
	body    *nn.Sequential
}

// NewConvBackbone creates a randomly initialized backbone for images with
// inChannels channels.
func NewConvBackbone(inChannels int, cfg BackboneConfig, backend tensor.Backend, rng *rand.Rand) (*ConvBackbone, error) {
	if len(cfg.Filters) == 0 {
		return nil, &nn.ConfigurationError{Field: "backbone.filters", Value: cfg.Filters, Details: "need at least one block"}
	}
	body := nn.NewSequential()
	in := inChannels
	for i, out := range cfg.Filters {
		if out <= 0 {
			return nil, &nn.ConfigurationError{Field: "backbone.filters", Value: cfg.Filters, Details: "filters must be positive"}
		}
		name := fmt.Sprintf("backbone.block%d.conv", i+1)
		body.Add(nn.NewConv2D(name, in, out, 3, 1, tensor.PaddingSame, true, backend, rng))
		body.Add(nn.NewReLU(backend))
		body.Add(nn.NewMaxPool2D(2, 2, backend))
		in = out
	}
	return &ConvBackbone{filters: append([]int(nil), cfg.Filters...), body: body}, nil
}

// Forward encodes images into a feature map.
func (b *ConvBackbone) Forward(input *tensor.Tensor, training bool) *tensor.Tensor {
	return b.body.Forward(input, training)
}

// Parameters returns the convolution weights of every block.
func (b *ConvBackbone) Parameters() []*nn.Parameter {
	return b.body.Parameters()
}

// OutChannels returns the filter count of the last block.
func (b *ConvBackbone) OutChannels() int {
	return b.filters[len(b.filters)-1]
}

// Blocks returns the number of pooling blocks.
func (b *ConvBackbone) Blocks() int {
	return len(b.filters)
}

// LoadPretrained loads backbone weights from a .kdst file. The file may hold
// a bare backbone or a whole teacher; only "backbone." entries are used.
func (b *ConvBackbone) LoadPretrained(path string) error {
	r, err := serialization.Open(path)
	if err != nil {
		return fmt.Errorf("load pretrained backbone: %w", err)
	}
	defer r.Close()

	state := make(map[string]*tensor.Tensor)
	for _, name := range r.TensorNames() {
		if !strings.HasPrefix(name, "backbone.") {
			continue
		}
		t, err := r.LoadTensor(name)
		if err != nil {
			return fmt.Errorf("load pretrained backbone: %w", err)
		}
		state[name] = t
	}
	if err := nn.LoadStateDict(b, state); err != nil {
		return fmt.Errorf("load pretrained backbone %s: %w", path, err)
	}
	return nil
}

// SavePretrained writes the backbone weights to path so they can seed
// another teacher with LoadPretrained.
func (b *ConvBackbone) SavePretrained(path string) error {
	state, err := nn.StateDict(b)
	if err != nil {
		return err
	}
	header := serialization.Header{
		ModelType: "backbone",
		Metadata:  map[string]string{"filters": fmt.Sprint(b.filters)},
	}
	return serialization.WriteFile(path, state, header)
}
