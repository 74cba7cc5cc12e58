package cpu

import (
	"math"

	"github.com/born-ml/distill/internal/tensor"
)

// ReLU applies max(0, x) element-wise. NaN inputs pass through unchanged.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Zeros(x.Shape())
	od := out.Data()
	for i, v := range x.Data() {
		if v > 0 || v != v {
			od[i] = v
		}
	}
	return out
}

// ReLUBackward passes the gradient where the input was positive or NaN.
func (cpu *CPUBackend) ReLUBackward(input, outputGrad *tensor.Tensor) *tensor.Tensor {
	sameShape("relu_backward", input, outputGrad)
	out := tensor.Zeros(input.Shape())
	od, gd := out.Data(), outputGrad.Data()
	for i, v := range input.Data() {
		if v > 0 || v != v {
			od[i] = gd[i]
		}
	}
	return out
}

// Sigmoid applies 1/(1+exp(-x)) element-wise, evaluated in the numerically
// stable branch for each sign.
func (cpu *CPUBackend) Sigmoid(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Zeros(x.Shape())
	od := out.Data()
	for i, v := range x.Data() {
		od[i] = sigmoid(v)
	}
	return out
}

func sigmoid(v float32) float32 {
	if v >= 0 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	}
	e := math.Exp(float64(v))
	return float32(e / (1 + e))
}

// SigmoidBackward computes d_x = d_out · y · (1 - y) from the forward output y.
func (cpu *CPUBackend) SigmoidBackward(output, outputGrad *tensor.Tensor) *tensor.Tensor {
	sameShape("sigmoid_backward", output, outputGrad)
	out := tensor.Zeros(output.Shape())
	od, gd := out.Data(), outputGrad.Data()
	for i, y := range output.Data() {
		od[i] = gd[i] * y * (1 - y)
	}
	return out
}

// Softmax normalizes along the innermost dimension.
func (cpu *CPUBackend) Softmax(x *tensor.Tensor) *tensor.Tensor {
	c := x.Shape().Last()
	out := tensor.Zeros(x.Shape())
	xd, od := x.Data(), out.Data()
	for off := 0; off < len(xd); off += c {
		softmaxRow(xd[off:off+c], od[off:off+c], 1)
	}
	return out
}

// softmaxRow writes softmax(src / temperature) into dst using the max trick.
func softmaxRow(src, dst []float32, temperature float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(float64((v - maxVal) / temperature))
		dst[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range dst {
		dst[i] *= inv
	}
}

// logSoftmaxRow writes log_softmax(src / temperature) into dst.
func logSoftmaxRow(src, dst []float32, temperature float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range src {
		sum += math.Exp(float64((v - maxVal) / temperature))
	}
	logSum := float32(math.Log(sum))
	for i, v := range src {
		dst[i] = (v-maxVal)/temperature - logSum
	}
}

// SoftmaxBackward computes d_x = y · (d_out − Σ d_out·y) row by row.
func (cpu *CPUBackend) SoftmaxBackward(output, outputGrad *tensor.Tensor) *tensor.Tensor {
	sameShape("softmax_backward", output, outputGrad)
	c := output.Shape().Last()
	out := tensor.Zeros(output.Shape())
	yd, gd, od := output.Data(), outputGrad.Data(), out.Data()
	for off := 0; off < len(yd); off += c {
		var dot float32
		for i := off; i < off+c; i++ {
			dot += gd[i] * yd[i]
		}
		for i := off; i < off+c; i++ {
			od[i] = yd[i] * (gd[i] - dot)
		}
	}
	return out
}
