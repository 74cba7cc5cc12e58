package tensor

// Padding selects how convolutions treat the borders of a feature map.
type Padding int

const (
	// PaddingValid applies no padding; the output shrinks by kernel-1.
	PaddingValid Padding = iota
	// PaddingSame pads so that output = ceil(input / stride), TensorFlow style.
	PaddingSame
)

// String returns the Keras-style name of the padding mode.
func (p Padding) String() string {
	if p == PaddingSame {
		return "same"
	}
	return "valid"
}

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Layout conventions:
//   - Feature maps are NHWC: [batch, height, width, channels].
//   - Conv2D kernels are [kh, kw, in_channels, out_channels].
//   - Depthwise kernels are [kh, kw, channels].
//   - Logits and one-hot labels are [batch, classes].
//
// Backward kernels are listed next to the forward kernel whose gradient
// they compute. They are never recorded on a gradient tape.
type Backend interface {
	// Name returns a human-readable backend identifier.
	Name() string

	// Element-wise operations (operands must have identical shapes)
	Add(a, b *Tensor) *Tensor
	Mul(a, b *Tensor) *Tensor
	MulScalar(x *Tensor, scalar float32) *Tensor

	// AddBias adds bias [C] to every innermost row of x [..., C].
	AddBias(x, bias *Tensor) *Tensor
	// SumToLast reduces x [..., C] to [C] (gradient of AddBias w.r.t. bias).
	SumToLast(x *Tensor) *Tensor

	// MatMul computes op(a) @ op(b) for 2D tensors, where op transposes
	// when the matching flag is set.
	MatMul(a, b *Tensor, transA, transB bool) *Tensor
	Reshape(t *Tensor, newShape Shape) *Tensor

	// Convolutional operations
	Conv2D(input, kernel *Tensor, stride int, padding Padding) *Tensor
	Conv2DBackward(input, kernel, outputGrad *Tensor, stride int, padding Padding) (inputGrad, kernelGrad *Tensor)
	DepthwiseConv2D(input, kernel *Tensor, stride int, padding Padding) *Tensor
	DepthwiseConv2DBackward(input, kernel, outputGrad *Tensor, stride int, padding Padding) (inputGrad, kernelGrad *Tensor)

	// Pooling and channel operations
	MaxPool2D(input *Tensor, size, stride int) *Tensor
	MaxPool2DBackward(input, outputGrad *Tensor, size, stride int) *Tensor
	GlobalAvgPool2D(input *Tensor) *Tensor
	GlobalAvgPool2DBackward(outputGrad *Tensor, inputShape Shape) *Tensor
	// ScaleChannels multiplies input [N,H,W,C] by gate [N,C] broadcast over H and W.
	ScaleChannels(input, gate *Tensor) *Tensor
	ScaleChannelsBackward(input, gate, outputGrad *Tensor) (inputGrad, gateGrad *Tensor)

	// Activation functions
	ReLU(x *Tensor) *Tensor
	ReLUBackward(input, outputGrad *Tensor) *Tensor
	Sigmoid(x *Tensor) *Tensor
	SigmoidBackward(output, outputGrad *Tensor) *Tensor
	// Softmax normalizes along the innermost dimension.
	Softmax(x *Tensor) *Tensor
	SoftmaxBackward(output, outputGrad *Tensor) *Tensor

	// Batch normalization over every axis except the innermost (channels).
	// BatchNorm uses batch statistics and returns them (biased variance).
	BatchNorm(input, gamma, beta *Tensor, eps float32) (output, mean, variance *Tensor)
	BatchNormBackward(input, gamma, mean, variance, outputGrad *Tensor, eps float32) (inputGrad, gammaGrad, betaGrad *Tensor)
	BatchNormInference(input, gamma, beta, mean, variance *Tensor, eps float32) *Tensor

	// Losses. Both return a single-element tensor averaged over the batch.
	//
	// CrossEntropy computes mean(-Σ targets · log_softmax(logits)).
	CrossEntropy(logits, targets *Tensor) *Tensor
	CrossEntropyBackward(logits, targets, outputGrad *Tensor) *Tensor
	// KLDivergence computes mean(Σ p · (log p − log_softmax(logits / T))) where
	// p are the (constant) soft targets.
	KLDivergence(targets, logits *Tensor, temperature float32) *Tensor
	KLDivergenceBackward(targets, logits, outputGrad *Tensor, temperature float32) *Tensor
}
