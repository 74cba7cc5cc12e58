// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: records operations during the forward pass
//   - Operation interface: each op implements its backward pass
//   - Reverse-mode AD: gradients of a scalar loss via the chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	logits := student.Forward(x, true)
//	loss := backend.CrossEntropy(logits, y)
//	grads, err := backend.Backward(loss)
//	backend.Tape().StopRecording()
//	backend.Tape().Clear()
//
// A backend (and its tape) belongs to one training loop at a time; it is not
// safe for concurrent use.
package autodiff

import (
	"github.com/born-ml/distill/internal/autodiff/ops"
	"github.com/born-ml/distill/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

var _ tensor.Backend = (*AutodiffBackend[tensor.Backend])(nil)

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// NoGrad runs fn with recording suspended. Tensors produced inside fn are
// leaves of the graph: gradients never flow through them.
func (b *AutodiffBackend[B]) NoGrad(fn func()) {
	wasRecording := b.tape.IsRecording()
	b.tape.StopRecording()
	defer func() {
		if wasRecording {
			b.tape.StartRecording()
		}
	}()
	fn()
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Mul(a, c)
	b.tape.Record(ops.NewMulOp(a, c, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.Tensor, scalar float32) *tensor.Tensor {
	result := b.inner.MulScalar(x, scalar)
	b.tape.Record(ops.NewMulScalarOp(x, result, scalar))
	return result
}

// AddBias adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) AddBias(x, bias *tensor.Tensor) *tensor.Tensor {
	result := b.inner.AddBias(x, bias)
	b.tape.Record(ops.NewAddBiasOp(x, bias, result))
	return result
}

// SumToLast is only used by backward passes and is not recorded.
func (b *AutodiffBackend[B]) SumToLast(x *tensor.Tensor) *tensor.Tensor {
	return b.inner.SumToLast(x)
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.Tensor, transA, transB bool) *tensor.Tensor {
	result := b.inner.MatMul(a, c, transA, transB)
	b.tape.Record(ops.NewMatMulOp(a, c, result, transA, transB))
	return result
}

// Reshape changes the shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(t *tensor.Tensor, newShape tensor.Shape) *tensor.Tensor {
	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}

// Conv2D performs a 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.Tensor, stride int, padding tensor.Padding) *tensor.Tensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv2DBackward(input, kernel, outputGrad *tensor.Tensor, stride int, padding tensor.Padding) (*tensor.Tensor, *tensor.Tensor) {
	return b.inner.Conv2DBackward(input, kernel, outputGrad, stride, padding)
}

// DepthwiseConv2D performs a depthwise convolution and records the operation.
func (b *AutodiffBackend[B]) DepthwiseConv2D(input, kernel *tensor.Tensor, stride int, padding tensor.Padding) *tensor.Tensor {
	result := b.inner.DepthwiseConv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewDepthwiseConv2DOp(input, kernel, result, stride, padding))
	return result
}

// DepthwiseConv2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) DepthwiseConv2DBackward(input, kernel, outputGrad *tensor.Tensor, stride int, padding tensor.Padding) (*tensor.Tensor, *tensor.Tensor) {
	return b.inner.DepthwiseConv2DBackward(input, kernel, outputGrad, stride, padding)
}

// MaxPool2D performs max pooling and records the operation.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.Tensor, size, stride int) *tensor.Tensor {
	result := b.inner.MaxPool2D(input, size, stride)
	b.tape.Record(ops.NewMaxPool2DOp(input, result, size, stride))
	return result
}

// MaxPool2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) MaxPool2DBackward(input, outputGrad *tensor.Tensor, size, stride int) *tensor.Tensor {
	return b.inner.MaxPool2DBackward(input, outputGrad, size, stride)
}

// GlobalAvgPool2D averages over space and records the operation.
func (b *AutodiffBackend[B]) GlobalAvgPool2D(input *tensor.Tensor) *tensor.Tensor {
	result := b.inner.GlobalAvgPool2D(input)
	b.tape.Record(ops.NewGlobalAvgPool2DOp(input, result))
	return result
}

// GlobalAvgPool2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) GlobalAvgPool2DBackward(outputGrad *tensor.Tensor, inputShape tensor.Shape) *tensor.Tensor {
	return b.inner.GlobalAvgPool2DBackward(outputGrad, inputShape)
}

// ScaleChannels gates channels and records the operation.
func (b *AutodiffBackend[B]) ScaleChannels(input, gate *tensor.Tensor) *tensor.Tensor {
	result := b.inner.ScaleChannels(input, gate)
	b.tape.Record(ops.NewScaleChannelsOp(input, gate, result))
	return result
}

// ScaleChannelsBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ScaleChannelsBackward(input, gate, outputGrad *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	return b.inner.ScaleChannelsBackward(input, gate, outputGrad)
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.Tensor) *tensor.Tensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// ReLUBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ReLUBackward(input, outputGrad *tensor.Tensor) *tensor.Tensor {
	return b.inner.ReLUBackward(input, outputGrad)
}

// Sigmoid applies the logistic function and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Sigmoid(x)
	b.tape.Record(ops.NewSigmoidOp(x, result))
	return result
}

// SigmoidBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) SigmoidBackward(output, outputGrad *tensor.Tensor) *tensor.Tensor {
	return b.inner.SigmoidBackward(output, outputGrad)
}

// Softmax normalizes the last axis and records the operation.
func (b *AutodiffBackend[B]) Softmax(x *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Softmax(x)
	b.tape.Record(ops.NewSoftmaxOp(x, result))
	return result
}

// SoftmaxBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) SoftmaxBackward(output, outputGrad *tensor.Tensor) *tensor.Tensor {
	return b.inner.SoftmaxBackward(output, outputGrad)
}

// BatchNorm normalizes with batch statistics and records the operation.
func (b *AutodiffBackend[B]) BatchNorm(input, gamma, beta *tensor.Tensor, eps float32) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	out, mean, variance := b.inner.BatchNorm(input, gamma, beta, eps)
	b.tape.Record(ops.NewBatchNormOp(input, gamma, beta, out, mean, variance, eps))
	return out, mean, variance
}

// BatchNormBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) BatchNormBackward(input, gamma, mean, variance, outputGrad *tensor.Tensor, eps float32) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	return b.inner.BatchNormBackward(input, gamma, mean, variance, outputGrad, eps)
}

// BatchNormInference normalizes with fixed statistics. Inference mode is
// never differentiated, so it is not recorded.
func (b *AutodiffBackend[B]) BatchNormInference(input, gamma, beta, mean, variance *tensor.Tensor, eps float32) *tensor.Tensor {
	return b.inner.BatchNormInference(input, gamma, beta, mean, variance, eps)
}

// CrossEntropy computes the categorical cross-entropy and records the operation.
func (b *AutodiffBackend[B]) CrossEntropy(logits, targets *tensor.Tensor) *tensor.Tensor {
	result := b.inner.CrossEntropy(logits, targets)
	b.tape.Record(ops.NewCrossEntropyOp(logits, targets, result))
	return result
}

// CrossEntropyBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) CrossEntropyBackward(logits, targets, outputGrad *tensor.Tensor) *tensor.Tensor {
	return b.inner.CrossEntropyBackward(logits, targets, outputGrad)
}

// KLDivergence computes the temperature-scaled KL divergence and records the operation.
func (b *AutodiffBackend[B]) KLDivergence(targets, logits *tensor.Tensor, temperature float32) *tensor.Tensor {
	result := b.inner.KLDivergence(targets, logits, temperature)
	b.tape.Record(ops.NewKLDivergenceOp(targets, logits, result, temperature))
	return result
}

// KLDivergenceBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) KLDivergenceBackward(targets, logits, outputGrad *tensor.Tensor, temperature float32) *tensor.Tensor {
	return b.inner.KLDivergenceBackward(targets, logits, outputGrad, temperature)
}
