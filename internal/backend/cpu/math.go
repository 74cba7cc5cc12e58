package cpu

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

func sameShape(op string, a, b *tensor.Tensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

// Add performs element-wise addition.
func (cpu *CPUBackend) Add(a, b *tensor.Tensor) *tensor.Tensor {
	sameShape("add", a, b)
	out := tensor.Zeros(a.Shape())
	od, ad, bd := out.Data(), a.Data(), b.Data()
	for i := range od {
		od[i] = ad[i] + bd[i]
	}
	return out
}

// Mul performs element-wise multiplication.
func (cpu *CPUBackend) Mul(a, b *tensor.Tensor) *tensor.Tensor {
	sameShape("mul", a, b)
	out := tensor.Zeros(a.Shape())
	od, ad, bd := out.Data(), a.Data(), b.Data()
	for i := range od {
		od[i] = ad[i] * bd[i]
	}
	return out
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.Tensor, scalar float32) *tensor.Tensor {
	out := tensor.Zeros(x.Shape())
	od, xd := out.Data(), x.Data()
	for i := range od {
		od[i] = xd[i] * scalar
	}
	return out
}

// AddBias adds bias [C] to each innermost row of x.
func (cpu *CPUBackend) AddBias(x, bias *tensor.Tensor) *tensor.Tensor {
	c := x.Shape().Last()
	if len(bias.Shape()) != 1 || bias.Shape()[0] != c {
		panic(fmt.Sprintf("add_bias: bias shape %v does not match innermost dim %d of %v", bias.Shape(), c, x.Shape()))
	}
	out := tensor.Zeros(x.Shape())
	od, xd, bd := out.Data(), x.Data(), bias.Data()
	for i := range od {
		od[i] = xd[i] + bd[i%c]
	}
	return out
}

// SumToLast reduces x [..., C] to [C].
func (cpu *CPUBackend) SumToLast(x *tensor.Tensor) *tensor.Tensor {
	c := x.Shape().Last()
	out := tensor.Zeros(tensor.Shape{c})
	od, xd := out.Data(), x.Data()
	for i, v := range xd {
		od[i%c] += v
	}
	return out
}
