package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/distill/internal/parallel"
	"github.com/born-ml/distill/internal/tensor"
)

func poolGeometry(op string, h, w, size, stride int) (oh, ow int) {
	if size < 1 || stride < 1 {
		panic(fmt.Sprintf("%s: size and stride must be >= 1, got %d/%d", op, size, stride))
	}
	oh = (h-size)/stride + 1
	ow = (w-size)/stride + 1
	if h < size || w < size {
		panic(fmt.Sprintf("%s: window %d larger than input %dx%d", op, size, h, w))
	}
	return oh, ow
}

// MaxPool2D performs max pooling with valid padding. A window holding a
// NaN yields NaN.
//
// Input shape:  [N, H, W, C]
// Output shape: [N, (H-size)/stride+1, (W-size)/stride+1, C]
func (cpu *CPUBackend) MaxPool2D(input *tensor.Tensor, size, stride int) *tensor.Tensor {
	n, h, w, c := nhwc("maxpool2d", input.Shape())
	oh, ow := poolGeometry("maxpool2d", h, w, size, stride)
	out := tensor.Zeros(tensor.Shape{n, oh, ow, c})
	in, od := input.Data(), out.Data()

	parallel.Range(n*oh, func(start, end int) {
		for r := start; r < end; r++ {
			b, oy := r/oh, r%oh
			for ox := 0; ox < ow; ox++ {
				dst := od[((b*oh+oy)*ow+ox)*c:][:c]
				for ch := range dst {
					dst[ch] = float32(math.Inf(-1))
				}
				for ky := 0; ky < size; ky++ {
					iy := oy*stride + ky
					for kx := 0; kx < size; kx++ {
						ix := ox*stride + kx
						src := in[((b*h+iy)*w+ix)*c:][:c]
						for ch, v := range src {
							if v > dst[ch] || v != v {
								dst[ch] = v
							}
						}
					}
				}
			}
		}
	}, cpu.par)
	return out
}

// MaxPool2DBackward routes each output gradient to the first maximal input
// of its window, or to its first NaN.
func (cpu *CPUBackend) MaxPool2DBackward(input, outputGrad *tensor.Tensor, size, stride int) *tensor.Tensor {
	n, h, w, c := nhwc("maxpool2d_backward", input.Shape())
	oh, ow := poolGeometry("maxpool2d_backward", h, w, size, stride)
	if !outputGrad.Shape().Equal(tensor.Shape{n, oh, ow, c}) {
		panic(fmt.Sprintf("maxpool2d_backward: output grad shape %v, expected %v", outputGrad.Shape(), tensor.Shape{n, oh, ow, c}))
	}
	inputGrad := tensor.Zeros(input.Shape())
	in, gd, dx := input.Data(), outputGrad.Data(), inputGrad.Data()

	parallel.For(n, func(b int) {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				gbase := ((b*oh+oy)*ow + ox) * c
				for ch := 0; ch < c; ch++ {
					best := -1
					bestVal := float32(math.Inf(-1))
					for ky := 0; ky < size; ky++ {
						iy := oy*stride + ky
						for kx := 0; kx < size; kx++ {
							idx := ((b*h+iy)*w+ox*stride+kx)*c + ch
							if v := in[idx]; best < 0 || (bestVal == bestVal && (v > bestVal || v != v)) {
								best, bestVal = idx, v
							}
						}
					}
					dx[best] += gd[gbase+ch]
				}
			}
		}
	}, cpu.par)
	return inputGrad
}

// GlobalAvgPool2D averages every channel over the spatial axes.
//
// Input shape:  [N, H, W, C]
// Output shape: [N, C]
func (cpu *CPUBackend) GlobalAvgPool2D(input *tensor.Tensor) *tensor.Tensor {
	n, h, w, c := nhwc("global_avg_pool2d", input.Shape())
	out := tensor.Zeros(tensor.Shape{n, c})
	in, od := input.Data(), out.Data()
	inv := 1 / float32(h*w)

	parallel.For(n, func(b int) {
		dst := od[b*c : (b+1)*c]
		for p := 0; p < h*w; p++ {
			src := in[(b*h*w+p)*c:][:c]
			for ch, v := range src {
				dst[ch] += v
			}
		}
		for ch := range dst {
			dst[ch] *= inv
		}
	}, cpu.par)
	return out
}

// GlobalAvgPool2DBackward spreads each [N, C] gradient evenly over H×W.
func (cpu *CPUBackend) GlobalAvgPool2DBackward(outputGrad *tensor.Tensor, inputShape tensor.Shape) *tensor.Tensor {
	n, h, w, c := nhwc("global_avg_pool2d_backward", inputShape)
	if !outputGrad.Shape().Equal(tensor.Shape{n, c}) {
		panic(fmt.Sprintf("global_avg_pool2d_backward: output grad shape %v, expected %v", outputGrad.Shape(), tensor.Shape{n, c}))
	}
	inputGrad := tensor.Zeros(inputShape)
	gd, dx := outputGrad.Data(), inputGrad.Data()
	inv := 1 / float32(h*w)

	for b := 0; b < n; b++ {
		g := gd[b*c : (b+1)*c]
		for p := 0; p < h*w; p++ {
			dst := dx[(b*h*w+p)*c:][:c]
			for ch, v := range g {
				dst[ch] = v * inv
			}
		}
	}
	return inputGrad
}

// ScaleChannels multiplies input [N,H,W,C] by gate [N,C] broadcast over H and W.
func (cpu *CPUBackend) ScaleChannels(input, gate *tensor.Tensor) *tensor.Tensor {
	n, h, w, c := nhwc("scale_channels", input.Shape())
	if !gate.Shape().Equal(tensor.Shape{n, c}) {
		panic(fmt.Sprintf("scale_channels: gate shape %v, expected %v", gate.Shape(), tensor.Shape{n, c}))
	}
	out := tensor.Zeros(input.Shape())
	in, gt, od := input.Data(), gate.Data(), out.Data()

	for b := 0; b < n; b++ {
		s := gt[b*c : (b+1)*c]
		for p := 0; p < h*w; p++ {
			off := (b*h*w + p) * c
			for ch, v := range s {
				od[off+ch] = in[off+ch] * v
			}
		}
	}
	return out
}

// ScaleChannelsBackward returns d_input = d_out·gate and d_gate = Σ_{h,w} d_out·input.
func (cpu *CPUBackend) ScaleChannelsBackward(input, gate, outputGrad *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	n, h, w, c := nhwc("scale_channels_backward", input.Shape())
	sameShape("scale_channels_backward", input, outputGrad)
	inputGrad := tensor.Zeros(input.Shape())
	gateGrad := tensor.Zeros(tensor.Shape{n, c})
	in, gt, gd := input.Data(), gate.Data(), outputGrad.Data()
	dx, dg := inputGrad.Data(), gateGrad.Data()

	for b := 0; b < n; b++ {
		s := gt[b*c : (b+1)*c]
		ds := dg[b*c : (b+1)*c]
		for p := 0; p < h*w; p++ {
			off := (b*h*w + p) * c
			for ch := range s {
				g := gd[off+ch]
				dx[off+ch] = g * s[ch]
				ds[ch] += g * in[off+ch]
			}
		}
	}
	return inputGrad, gateGrad
}
