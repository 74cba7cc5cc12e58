package cpu

import (
	"fmt"

	"github.com/born-ml/distill/internal/parallel"
	"github.com/born-ml/distill/internal/tensor"
)

type dwGeom struct {
	n, h, w, c      int
	kh, kw          int
	oh, ow          int
	stride          int
	padTop, padLeft int
}

func newDWGeom(op string, in, k tensor.Shape, stride int, padding tensor.Padding) dwGeom {
	n, h, w, c := nhwc(op, in)
	if len(k) != 3 || k[2] != c {
		panic(fmt.Sprintf("%s: kernel must be [K_h,K_w,%d], got %v", op, c, k))
	}
	if stride < 1 {
		panic(fmt.Sprintf("%s: stride must be >= 1, got %d", op, stride))
	}
	oh, pt := convGeometry(h, k[0], stride, padding)
	ow, pl := convGeometry(w, k[1], stride, padding)
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions %dx%d for input %v kernel %v", op, oh, ow, in, k))
	}
	return dwGeom{n: n, h: h, w: w, c: c, kh: k[0], kw: k[1], oh: oh, ow: ow, stride: stride, padTop: pt, padLeft: pl}
}

// DepthwiseConv2D convolves every channel with its own spatial filter.
//
// Input shape:  [N, H, W, C]
// Kernel shape: [K_h, K_w, C]
// Output shape: [N, H_out, W_out, C]
//
//	out[n,y,x,c] = Σ_{ky,kx} in[n, y*s+ky-pt, x*s+kx-pl, c] · k[ky,kx,c]
//
// Channels never mix, which is what makes the depthwise/pointwise
// factorization cheaper than a full convolution.
func (cpu *CPUBackend) DepthwiseConv2D(input, kernel *tensor.Tensor, stride int, padding tensor.Padding) *tensor.Tensor {
	g := newDWGeom("depthwise_conv2d", input.Shape(), kernel.Shape(), stride, padding)
	out := tensor.Zeros(tensor.Shape{g.n, g.oh, g.ow, g.c})
	in, k, od := input.Data(), kernel.Data(), out.Data()

	parallel.Range(g.n*g.oh, func(start, end int) {
		for r := start; r < end; r++ {
			n, oy := r/g.oh, r%g.oh
			for ox := 0; ox < g.ow; ox++ {
				dst := od[((n*g.oh+oy)*g.ow+ox)*g.c:][:g.c]
				for ky := 0; ky < g.kh; ky++ {
					iy := oy*g.stride + ky - g.padTop
					if iy < 0 || iy >= g.h {
						continue
					}
					for kx := 0; kx < g.kw; kx++ {
						ix := ox*g.stride + kx - g.padLeft
						if ix < 0 || ix >= g.w {
							continue
						}
						src := in[((n*g.h+iy)*g.w+ix)*g.c:][:g.c]
						w := k[(ky*g.kw+kx)*g.c:][:g.c]
						for c := range dst {
							dst[c] += src[c] * w[c]
						}
					}
				}
			}
		}
	}, cpu.par)
	return out
}

// DepthwiseConv2DBackward computes input and kernel gradients.
//
// The input gradient is accumulated per batch item in parallel; the kernel
// gradient is accumulated per batch item into private buffers and summed,
// which keeps the result independent of scheduling.
func (cpu *CPUBackend) DepthwiseConv2DBackward(input, kernel, outputGrad *tensor.Tensor, stride int, padding tensor.Padding) (*tensor.Tensor, *tensor.Tensor) {
	g := newDWGeom("depthwise_conv2d_backward", input.Shape(), kernel.Shape(), stride, padding)
	expected := tensor.Shape{g.n, g.oh, g.ow, g.c}
	if !outputGrad.Shape().Equal(expected) {
		panic(fmt.Sprintf("depthwise_conv2d_backward: output grad shape %v, expected %v", outputGrad.Shape(), expected))
	}

	inputGrad := tensor.Zeros(input.Shape())
	in, k, gd, dx := input.Data(), kernel.Data(), outputGrad.Data(), inputGrad.Data()
	kSize := kernel.NumElements()
	partial := make([]float32, g.n*kSize)

	parallel.For(g.n, func(n int) {
		dk := partial[n*kSize : (n+1)*kSize]
		for oy := 0; oy < g.oh; oy++ {
			for ox := 0; ox < g.ow; ox++ {
				grad := gd[((n*g.oh+oy)*g.ow+ox)*g.c:][:g.c]
				for ky := 0; ky < g.kh; ky++ {
					iy := oy*g.stride + ky - g.padTop
					if iy < 0 || iy >= g.h {
						continue
					}
					for kx := 0; kx < g.kw; kx++ {
						ix := ox*g.stride + kx - g.padLeft
						if ix < 0 || ix >= g.w {
							continue
						}
						base := ((n*g.h+iy)*g.w + ix) * g.c
						src := in[base:][:g.c]
						dsrc := dx[base:][:g.c]
						koff := (ky*g.kw + kx) * g.c
						w := k[koff:][:g.c]
						dw := dk[koff:][:g.c]
						for c, gv := range grad {
							dsrc[c] += gv * w[c]
							dw[c] += gv * src[c]
						}
					}
				}
			}
		}
	}, cpu.par)

	kernelGrad := tensor.Zeros(kernel.Shape())
	kg := kernelGrad.Data()
	for n := 0; n < g.n; n++ {
		for i, v := range partial[n*kSize : (n+1)*kSize] {
			kg[i] += v
		}
	}
	return inputGrad, kernelGrad
}
