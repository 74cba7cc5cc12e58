package autodiff_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/tensor"
)

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
}

func TestTape_RecordsOnlyWhileRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones(tensor.Shape{2, 2})

	backend.Add(x, x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	backend.Add(x, x)
	backend.ReLU(x)
	assert.Equal(t, 2, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording(), "Clear must keep the recording state")
}

func TestNoGrad_SuspendsAndRestoresRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones(tensor.Shape{2})

	backend.Tape().StartRecording()
	backend.NoGrad(func() {
		assert.False(t, backend.Tape().IsRecording())
		backend.Mul(x, x)
	})
	assert.True(t, backend.Tape().IsRecording())
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StopRecording()
	backend.NoGrad(func() {})
	assert.False(t, backend.Tape().IsRecording(), "NoGrad must not turn recording on")
}

func TestBackward_SimpleProduct(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{3}, tensor.Shape{1})
	require.NoError(t, err)

	backend.Tape().StartRecording()
	y := backend.Mul(x, x) // y = x²
	grads, err := backend.Backward(y)
	require.NoError(t, err)

	// dy/dx = 2x, accumulated from both operands.
	assert.InDelta(t, 6.0, grads.Of(x).Item(), 1e-6)
}

func TestBackward_DetachStopsGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{2}, tensor.Shape{1})
	require.NoError(t, err)
	w, err := tensor.FromSlice([]float32{5}, tensor.Shape{1})
	require.NoError(t, err)

	backend.Tape().StartRecording()
	h := backend.Mul(x, w)
	frozen := h.Detach()
	y := backend.Mul(frozen, x)

	grads, err := backend.Backward(y)
	require.NoError(t, err)

	// Only the direct path y = frozen·x contributes: dy/dx = frozen = 10.
	assert.InDelta(t, 10.0, grads.Of(x).Item(), 1e-6)
	assert.Nil(t, grads.Of(w), "no gradient may cross a detached tensor")
	assert.NotNil(t, grads.Of(frozen))
}

func TestBackward_NoGradLeaves(t *testing.T) {
	backend := autodiff.New(cpu.New())
	w := tensor.Full(tensor.Shape{1, 2}, 0.5)
	x := tensor.Ones(tensor.Shape{1, 2})
	labels, err := tensor.OneHot([]int{1}, 2)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	var teacherOut *tensor.Tensor
	backend.NoGrad(func() {
		teacherOut = backend.Mul(x, w)
	})
	studentOut := backend.Mul(x, x)
	loss := backend.CrossEntropy(backend.Add(studentOut, teacherOut), labels)

	grads, err := backend.Backward(loss)
	require.NoError(t, err)
	assert.Nil(t, grads.Of(w))
	assert.NotNil(t, grads.Of(x))
}

func TestBackward_Errors(t *testing.T) {
	t.Run("empty tape", func(t *testing.T) {
		backend := autodiff.New(cpu.New())
		_, err := backend.Backward(tensor.Scalar(1))
		assert.ErrorIs(t, err, autodiff.ErrNoOperations)
	})

	t.Run("non scalar", func(t *testing.T) {
		backend := autodiff.New(cpu.New())
		backend.Tape().StartRecording()
		y := backend.ReLU(tensor.Ones(tensor.Shape{3}))
		_, err := backend.Backward(y)
		assert.ErrorIs(t, err, autodiff.ErrNonScalarLoss)
	})

	t.Run("loss not on tape", func(t *testing.T) {
		backend := autodiff.New(cpu.New())
		backend.Tape().StartRecording()
		backend.ReLU(tensor.Ones(tensor.Shape{3}))
		_, err := backend.Backward(tensor.Scalar(2))
		assert.ErrorIs(t, err, autodiff.ErrLossNotRecorded)
	})
}

func TestBackward_DoesNotRecordBackwardKernels(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Full(tensor.Shape{1, 3}, 0.2)
	labels, err := tensor.OneHot([]int{0}, 3)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	loss := backend.CrossEntropy(backend.ReLU(x), labels)
	before := backend.Tape().NumOps()

	_, err = backend.Backward(loss)
	require.NoError(t, err)
	assert.Equal(t, before, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestGradients_AllFinite(t *testing.T) {
	a := tensor.Ones(tensor.Shape{2})
	b := tensor.Ones(tensor.Shape{2})
	bad := tensor.Ones(tensor.Shape{2})
	bad.Data()[1] = float32(math.Inf(1))
	grads := autodiff.Gradients{a: tensor.Ones(tensor.Shape{2}), b: bad}

	assert.True(t, grads.AllFinite(a))
	assert.False(t, grads.AllFinite(a, b))
	assert.True(t, grads.AllFinite(tensor.Zeros(tensor.Shape{1})), "missing gradients are skipped")
}
