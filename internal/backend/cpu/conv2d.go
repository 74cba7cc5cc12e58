package cpu

import (
	"fmt"

	"github.com/born-ml/distill/internal/parallel"
	"github.com/born-ml/distill/internal/tensor"
)

// convGeometry returns the output extent and the leading pad along one axis.
//
// Same padding follows TensorFlow: out = ceil(in/stride) and the odd pixel of
// padding, if any, goes after the data.
func convGeometry(in, k, stride int, padding tensor.Padding) (out, padBefore int) {
	if padding == tensor.PaddingSame {
		out = (in + stride - 1) / stride
		total := max((out-1)*stride+k-in, 0)
		return out, total / 2
	}
	return (in-k)/stride + 1, 0
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [N, H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [N, H_out, W_out, C_out]
//
// Each output pixel becomes one row of the column matrix, so the product
// cols[N*H_out*W_out, K_h*K_w*C_in] @ kernel[K_h*K_w*C_in, C_out] is already
// laid out as NHWC.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.Tensor, stride int, padding tensor.Padding) *tensor.Tensor {
	g := newConvGeom("conv2d", input.Shape(), kernel.Shape(), stride, padding)

	cols := cpu.im2col(input.Data(), g)
	out := tensor.Zeros(tensor.Shape{g.n, g.oh, g.ow, g.cout})
	sgemm(false, false, g.rows(), g.cout, g.patch(), cols, g.patch(), kernel.Data(), g.cout, 0, out.Data(), g.cout)
	return out
}

// Conv2DBackward computes input and kernel gradients.
//
//	d_kernel = cols^T @ d_out
//	d_cols   = d_out @ kernel^T, scattered back with col2im
func (cpu *CPUBackend) Conv2DBackward(input, kernel, outputGrad *tensor.Tensor, stride int, padding tensor.Padding) (*tensor.Tensor, *tensor.Tensor) {
	g := newConvGeom("conv2d_backward", input.Shape(), kernel.Shape(), stride, padding)
	expected := tensor.Shape{g.n, g.oh, g.ow, g.cout}
	if !outputGrad.Shape().Equal(expected) {
		panic(fmt.Sprintf("conv2d_backward: output grad shape %v, expected %v", outputGrad.Shape(), expected))
	}

	cols := cpu.im2col(input.Data(), g)

	kernelGrad := tensor.Zeros(kernel.Shape())
	sgemm(true, false, g.patch(), g.cout, g.rows(), cols, g.patch(), outputGrad.Data(), g.cout, 0, kernelGrad.Data(), g.cout)

	dCols := make([]float32, g.rows()*g.patch())
	sgemm(false, true, g.rows(), g.patch(), g.cout, outputGrad.Data(), g.cout, kernel.Data(), g.cout, 0, dCols, g.patch())

	inputGrad := tensor.Zeros(input.Shape())
	cpu.col2im(dCols, inputGrad.Data(), g)
	return inputGrad, kernelGrad
}

type convGeom struct {
	n, h, w, cin    int
	kh, kw, cout    int
	oh, ow          int
	stride          int
	padTop, padLeft int
}

func newConvGeom(op string, in, k tensor.Shape, stride int, padding tensor.Padding) convGeom {
	n, h, w, cin := nhwc(op, in)
	if len(k) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [K_h,K_w,C_in,C_out], got %v", op, k))
	}
	if k[2] != cin {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, cin, k[2]))
	}
	if stride < 1 {
		panic(fmt.Sprintf("%s: stride must be >= 1, got %d", op, stride))
	}
	oh, pt := convGeometry(h, k[0], stride, padding)
	ow, pl := convGeometry(w, k[1], stride, padding)
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions %dx%d for input %v kernel %v", op, oh, ow, in, k))
	}
	return convGeom{
		n: n, h: h, w: w, cin: cin,
		kh: k[0], kw: k[1], cout: k[3],
		oh: oh, ow: ow,
		stride: stride, padTop: pt, padLeft: pl,
	}
}

func (g convGeom) rows() int  { return g.n * g.oh * g.ow }
func (g convGeom) patch() int { return g.kh * g.kw * g.cin }

// im2col expands input patches into a [rows, patch] matrix.
func (cpu *CPUBackend) im2col(in []float32, g convGeom) []float32 {
	patch := g.patch()
	cols := make([]float32, g.rows()*patch)

	parallel.Range(g.rows(), func(start, end int) {
		for r := start; r < end; r++ {
			n := r / (g.oh * g.ow)
			oy := (r / g.ow) % g.oh
			ox := r % g.ow
			dst := cols[r*patch : (r+1)*patch]
			for ky := 0; ky < g.kh; ky++ {
				iy := oy*g.stride + ky - g.padTop
				for kx := 0; kx < g.kw; kx++ {
					ix := ox*g.stride + kx - g.padLeft
					off := (ky*g.kw + kx) * g.cin
					if iy < 0 || iy >= g.h || ix < 0 || ix >= g.w {
						continue // zero padding
					}
					src := ((n*g.h+iy)*g.w + ix) * g.cin
					copy(dst[off:off+g.cin], in[src:src+g.cin])
				}
			}
		}
	}, cpu.par)
	return cols
}

// col2im scatters column gradients back into an NHWC gradient buffer.
// Work is split per batch item so no two goroutines write the same pixel.
func (cpu *CPUBackend) col2im(cols, dst []float32, g convGeom) {
	patch := g.patch()
	parallel.For(g.n, func(n int) {
		for oy := 0; oy < g.oh; oy++ {
			for ox := 0; ox < g.ow; ox++ {
				r := (n*g.oh+oy)*g.ow + ox
				src := cols[r*patch : (r+1)*patch]
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
						off := (ky*g.kw + kx) * g.cin
						base := ((n*g.h+iy)*g.w + ix) * g.cin
						for c := 0; c < g.cin; c++ {
							dst[base+c] += src[off+c]
						}
					}
				}
			}
		}
	}, cpu.par)
}
