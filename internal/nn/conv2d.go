package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// Conv2D is a full 2D convolution layer.
//
// Input shape:  [batch, height, width, in_channels]
// Kernel shape: [k, k, in_channels, out_channels]
// Output shape: [batch, out_height, out_width, out_channels]
//
// Example:
//
//	conv := nn.NewConv2D("block1.conv", 3, 32, 3, 1, tensor.PaddingSame, true, backend, rng)
//	output := conv.Forward(images, true) // [N, 32, 32, 3] -> [N, 32, 32, 32]
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     tensor.Padding
	weight      *Parameter
	bias        *Parameter // nil when useBias is false
	backend     tensor.Backend
}

// NewConv2D creates a new Conv2D layer with a square kernel.
func NewConv2D(
	name string,
	inChannels, outChannels, kernelSize, stride int,
	padding tensor.Padding,
	useBias bool,
	backend tensor.Backend,
	rng *rand.Rand,
) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("conv2d %s: invalid geometry in=%d out=%d k=%d stride=%d", name, inChannels, outChannels, kernelSize, stride))
	}
	area := kernelSize * kernelSize
	kernel := Xavier(area*inChannels, area*outChannels, tensor.Shape{kernelSize, kernelSize, inChannels, outChannels}, rng)

	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter(name+".kernel", kernel),
		backend:     backend,
	}
	if useBias {
		c.bias = NewParameter(name+".bias", tensor.Zeros(tensor.Shape{outChannels}))
	}
	return c
}

// Forward convolves the input with the kernel and adds the bias.
func (c *Conv2D) Forward(input *tensor.Tensor, _ bool) *tensor.Tensor {
	s := input.Shape()
	if len(s) != 4 || s[3] != c.inChannels {
		panic(fmt.Sprintf("Conv2D.Forward: expected [N,H,W,%d] input, got %v", c.inChannels, s))
	}
	output := c.backend.Conv2D(input, c.weight.Tensor(), c.stride, c.padding)
	if c.bias != nil {
		output = c.backend.AddBias(output, c.bias.Tensor())
	}
	return output
}

// Parameters returns [kernel] or [kernel, bias].
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.weight, c.bias}
	}
	return []*Parameter{c.weight}
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.outChannels
}
