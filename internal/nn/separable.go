package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// DepthwiseConv2D convolves every channel with its own k×k filter.
//
// Input shape:  [batch, height, width, channels]
// Kernel shape: [k, k, channels]
// Output shape: [batch, out_height, out_width, channels]
type DepthwiseConv2D struct {
	channels   int
	kernelSize int
	stride     int
	padding    tensor.Padding
	weight     *Parameter
	bias       *Parameter
	backend    tensor.Backend
}

// NewDepthwiseConv2D creates a depthwise convolution with a bias.
func NewDepthwiseConv2D(
	name string,
	channels, kernelSize, stride int,
	padding tensor.Padding,
	backend tensor.Backend,
	rng *rand.Rand,
) *DepthwiseConv2D {
	if channels <= 0 || kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("depthwise %s: invalid geometry c=%d k=%d stride=%d", name, channels, kernelSize, stride))
	}
	area := kernelSize * kernelSize
	return &DepthwiseConv2D{
		channels:   channels,
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
		weight:     NewParameter(name+".depthwise_kernel", Xavier(area, area, tensor.Shape{kernelSize, kernelSize, channels}, rng)),
		bias:       NewParameter(name+".bias", tensor.Zeros(tensor.Shape{channels})),
		backend:    backend,
	}
}

// Forward applies the per-channel convolution.
func (d *DepthwiseConv2D) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	s := input.Shape()
	if len(s) != 4 || s[3] != d.channels {
		panic(fmt.Sprintf("DepthwiseConv2D.Forward: expected [N,H,W,%d] input, got %v", d.channels, s))
	}
	output := d.backend.DepthwiseConv2D(input, d.weight.Tensor(), d.stride, d.padding)
	return d.backend.AddBias(output, d.bias.Tensor())
}

// Parameters returns [depthwise_kernel, bias].
func (d *DepthwiseConv2D) Parameters() []*Parameter {
	return []*Parameter{d.weight, d.bias}
}

// PointwiseConv2D is a 1×1 convolution that mixes channels at every pixel.
//
// It is computed as a single matrix product over all pixels:
//
//	[N*H*W, C_in] @ [C_in, C_out] -> [N, H, W, C_out]
type PointwiseConv2D struct {
	inChannels  int
	outChannels int
	weight      *Parameter // [in_channels, out_channels]
	bias        *Parameter
	backend     tensor.Backend
}

// NewPointwiseConv2D creates a 1×1 convolution with a bias.
func NewPointwiseConv2D(name string, inChannels, outChannels int, backend tensor.Backend, rng *rand.Rand) *PointwiseConv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("pointwise %s: invalid channels %d -> %d", name, inChannels, outChannels))
	}
	return &PointwiseConv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		weight:      NewParameter(name+".kernel", Xavier(inChannels, outChannels, tensor.Shape{inChannels, outChannels}, rng)),
		bias:        NewParameter(name+".bias", tensor.Zeros(tensor.Shape{outChannels})),
		backend:     backend,
	}
}

// Forward mixes channels with the 1×1 kernel.
func (p *PointwiseConv2D) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	s := input.Shape()
	if len(s) != 4 || s[3] != p.inChannels {
		panic(fmt.Sprintf("PointwiseConv2D.Forward: expected [N,H,W,%d] input, got %v", p.inChannels, s))
	}
	n, h, w := s[0], s[1], s[2]
	flat := p.backend.Reshape(input, tensor.Shape{n * h * w, p.inChannels})
	mixed := p.backend.MatMul(flat, p.weight.Tensor(), false, false)
	mixed = p.backend.AddBias(mixed, p.bias.Tensor())
	return p.backend.Reshape(mixed, tensor.Shape{n, h, w, p.outChannels})
}

// Parameters returns [kernel, bias].
func (p *PointwiseConv2D) Parameters() []*Parameter {
	return []*Parameter{p.weight, p.bias}
}

// OutChannels returns the number of output channels.
func (p *PointwiseConv2D) OutChannels() int {
	return p.outChannels
}
