package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/distill/internal/tensor"
)

// MatMul computes op(a) @ op(b) for 2D tensors.
//
//	a: [M, K] (or [K, M] when transA)
//	b: [K, N] (or [N, K] when transB)
//	out: [M, N]
func (cpu *CPUBackend) MatMul(a, b *tensor.Tensor, transA, transB bool) *tensor.Tensor {
	ar, ac := rows2D("matmul", a.Shape())
	br, bc := rows2D("matmul", b.Shape())

	m, k := ar, ac
	if transA {
		m, k = ac, ar
	}
	kb, n := br, bc
	if transB {
		kb, n = bc, br
	}
	if k != kb {
		panic(fmt.Sprintf("matmul: inner dimensions differ: op(a)=%dx%d op(b)=%dx%d", m, k, kb, n))
	}

	out := tensor.Zeros(tensor.Shape{m, n})
	sgemm(transA, transB, m, n, k, a.Data(), ac, b.Data(), bc, 0, out.Data(), n)
	return out
}

// sgemm computes c = op(a) @ op(b) + beta*c on row-major buffers.
// lda/ldb are the row strides of a and b as stored (before transposition).
func sgemm(transA, transB bool, m, n, k int, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		if beta == 0 {
			clear(c[:m*ldc])
		}
		return
	}
	tA, tB := blas.NoTrans, blas.NoTrans
	if transA {
		tA = blas.Trans
	}
	if transB {
		tB = blas.Trans
	}
	blas32.Implementation().Sgemm(tA, tB, m, n, k, 1, a, lda, b, ldb, beta, c, ldc)
}
