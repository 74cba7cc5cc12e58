package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/distill/internal/tensor"
)

func checkChannelParams(op string, c int, params ...*tensor.Tensor) {
	for _, p := range params {
		if len(p.Shape()) != 1 || p.Shape()[0] != c {
			panic(fmt.Sprintf("%s: per-channel tensor shape %v, expected (%d)", op, p.Shape(), c))
		}
	}
}

// BatchNorm normalizes x [..., C] with batch statistics computed over every
// axis but the last, then applies gamma/beta.
//
// Returns the output plus the batch mean and biased variance, which the
// caller folds into running statistics.
func (cpu *CPUBackend) BatchNorm(input, gamma, beta *tensor.Tensor, eps float32) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	c := input.Shape().Last()
	checkChannelParams("batch_norm", c, gamma, beta)
	xd := input.Data()
	m := len(xd) / c

	sum := make([]float64, c)
	for i, v := range xd {
		sum[i%c] += float64(v)
	}
	mean := tensor.Zeros(tensor.Shape{c})
	md := mean.Data()
	for ch := range md {
		md[ch] = float32(sum[ch] / float64(m))
	}

	sq := make([]float64, c)
	for i, v := range xd {
		d := float64(v - md[i%c])
		sq[i%c] += d * d
	}
	variance := tensor.Zeros(tensor.Shape{c})
	vd := variance.Data()
	for ch := range vd {
		vd[ch] = float32(sq[ch] / float64(m))
	}

	return cpu.BatchNormInference(input, gamma, beta, mean, variance, eps), mean, variance
}

// BatchNormInference applies y = gamma·(x − mean)/sqrt(var + eps) + beta with
// the given statistics.
func (cpu *CPUBackend) BatchNormInference(input, gamma, beta, mean, variance *tensor.Tensor, eps float32) *tensor.Tensor {
	c := input.Shape().Last()
	checkChannelParams("batch_norm", c, gamma, beta, mean, variance)

	scale := make([]float32, c)
	shift := make([]float32, c)
	gd, bd, md, vd := gamma.Data(), beta.Data(), mean.Data(), variance.Data()
	for ch := 0; ch < c; ch++ {
		inv := float32(1 / math.Sqrt(float64(vd[ch]+eps)))
		scale[ch] = gd[ch] * inv
		shift[ch] = bd[ch] - md[ch]*scale[ch]
	}

	out := tensor.Zeros(input.Shape())
	od := out.Data()
	for i, v := range input.Data() {
		ch := i % c
		od[i] = v*scale[ch] + shift[ch]
	}
	return out
}

// BatchNormBackward computes gradients of the training-mode batch norm.
//
//	x̂      = (x − μ)·σ⁻¹
//	d_beta  = Σ d_out
//	d_gamma = Σ d_out·x̂
//	d_x     = σ⁻¹/M · (M·d_x̂ − Σ d_x̂ − x̂·Σ d_x̂·x̂),  d_x̂ = d_out·gamma
func (cpu *CPUBackend) BatchNormBackward(input, gamma, mean, variance, outputGrad *tensor.Tensor, eps float32) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	sameShape("batch_norm_backward", input, outputGrad)
	c := input.Shape().Last()
	checkChannelParams("batch_norm_backward", c, gamma, mean, variance)
	xd, gd := input.Data(), outputGrad.Data()
	m := len(xd) / c

	invStd := make([]float32, c)
	for ch, v := range variance.Data() {
		invStd[ch] = float32(1 / math.Sqrt(float64(v+eps)))
	}
	md, gm := mean.Data(), gamma.Data()

	gammaGrad := tensor.Zeros(tensor.Shape{c})
	betaGrad := tensor.Zeros(tensor.Shape{c})
	dgm, dbt := gammaGrad.Data(), betaGrad.Data()
	sumDxhat := make([]float64, c)
	sumDxhatXhat := make([]float64, c)
	dgmAcc := make([]float64, c)
	dbtAcc := make([]float64, c)

	for i, v := range xd {
		ch := i % c
		xhat := (v - md[ch]) * invStd[ch]
		g := gd[i]
		dxhat := g * gm[ch]
		dbtAcc[ch] += float64(g)
		dgmAcc[ch] += float64(g * xhat)
		sumDxhat[ch] += float64(dxhat)
		sumDxhatXhat[ch] += float64(dxhat * xhat)
	}
	for ch := 0; ch < c; ch++ {
		dgm[ch] = float32(dgmAcc[ch])
		dbt[ch] = float32(dbtAcc[ch])
	}

	inputGrad := tensor.Zeros(input.Shape())
	dx := inputGrad.Data()
	fm := float32(m)
	for i, v := range xd {
		ch := i % c
		xhat := (v - md[ch]) * invStd[ch]
		dxhat := gd[i] * gm[ch]
		dx[i] = invStd[ch] / fm * (fm*dxhat - float32(sumDxhat[ch]) - xhat*float32(sumDxhatXhat[ch]))
	}
	return inputGrad, gammaGrad, betaGrad
}
