package nn

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("dense", 3, 2, backend, newRNG())

	copy(layer.Weight().Tensor().Data(), []float32{1, 0, 0, 1, 1, 1})
	copy(layer.Bias().Tensor().Data(), []float32{0.5, -0.5})

	input, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3})
	require.NoError(t, err)

	out := layer.Forward(input, false)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{4.5, 4.5}, out.Data())

	assert.Equal(t, "dense.kernel", layer.Weight().Name())
	assert.Equal(t, "dense.bias", layer.Bias().Name())
	assert.Len(t, layer.Parameters(), 2)
}

func TestLinear_PanicsOnWrongFeatures(t *testing.T) {
	layer := NewLinear("dense", 3, 2, cpu.New(), newRNG())
	assert.Panics(t, func() {
		layer.Forward(tensor.Zeros(tensor.Shape{1, 4}), false)
	})
}

func TestPointwiseConv2D_MatchesConv2D1x1(t *testing.T) {
	backend := cpu.New()
	rng := newRNG()
	pw := NewPointwiseConv2D("pw", 3, 4, backend, rng)
	conv := NewConv2D("conv", 3, 4, 1, 1, tensor.PaddingSame, true, backend, rng)

	// Same kernel values: [3,4] and [1,1,3,4] share the row-major layout.
	copy(conv.weight.Tensor().Data(), pw.weight.Tensor().Data())
	copy(pw.bias.Tensor().Data(), []float32{0.1, 0.2, 0.3, 0.4})
	copy(conv.bias.Tensor().Data(), []float32{0.1, 0.2, 0.3, 0.4})

	input := tensor.Randn(tensor.Shape{2, 3, 3, 3}, 1, rng)
	got := pw.Forward(input, true)
	want := conv.Forward(input, true)

	require.Equal(t, tensor.Shape{2, 3, 3, 4}, got.Shape())
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-5)
}

func TestDepthwiseConv2D_PreservesShapeWithSamePadding(t *testing.T) {
	backend := cpu.New()
	dw := NewDepthwiseConv2D("dw", 5, 3, 1, tensor.PaddingSame, backend, newRNG())

	out := dw.Forward(tensor.Ones(tensor.Shape{2, 7, 7, 5}), true)
	assert.Equal(t, tensor.Shape{2, 7, 7, 5}, out.Shape())
	assert.Equal(t, tensor.Shape{3, 3, 5}, dw.Parameters()[0].Tensor().Shape())
}

func TestBatchNorm_TrainingUpdatesRunningStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm("bn", 2, backend)

	input := tensor.Full(tensor.Shape{4, 1, 1, 2}, 3)
	bn.Forward(input, true)

	// moving = 0.99·moving + 0.01·batch
	assert.InDeltaSlice(t, []float32{0.03, 0.03}, bn.movingMean.Tensor().Data(), 1e-6)
	assert.InDeltaSlice(t, []float32{0.99, 0.99}, bn.movingVar.Tensor().Data(), 1e-6)

	params := bn.Parameters()
	require.Len(t, params, 4)
	assert.True(t, params[0].Trainable())
	assert.True(t, params[1].Trainable())
	assert.False(t, params[2].Trainable())
	assert.False(t, params[3].Trainable())
}

func TestBatchNorm_InferenceIsDeterministicAndStateless(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm("bn", 3, backend)
	input := tensor.Randn(tensor.Shape{2, 2, 2, 3}, 1, newRNG())

	before := bn.movingMean.Tensor().Clone()
	a := bn.Forward(input, false)
	b := bn.Forward(input, false)

	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, before.Data(), bn.movingMean.Tensor().Data())
}

func TestDropout(t *testing.T) {
	backend := cpu.New()

	t.Run("invalid rate", func(t *testing.T) {
		_, err := NewDropout(1, backend, newRNG())
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("inference is identity", func(t *testing.T) {
		d, err := NewDropout(0.5, backend, newRNG())
		require.NoError(t, err)
		input := tensor.Ones(tensor.Shape{4, 8})
		assert.Same(t, input, d.Forward(input, false))
	})

	t.Run("training scales survivors", func(t *testing.T) {
		d, err := NewDropout(0.5, backend, newRNG())
		require.NoError(t, err)
		out := d.Forward(tensor.Ones(tensor.Shape{10, 100}), true)

		zeros := 0
		for _, v := range out.Data() {
			if v == 0 {
				zeros++
			} else {
				assert.Equal(t, float32(2), v)
			}
		}
		assert.InDelta(t, 500, zeros, 100)
	})
}

func TestSqueezeExcite_ShapeAndGateRange(t *testing.T) {
	backend := cpu.New()
	rng := newRNG()
	se, err := NewSqueezeExcite("se", 32, DefaultReductionRatio, backend, rng)
	require.NoError(t, err)
	assert.Equal(t, 2, se.Bottleneck())

	input := tensor.Randn(tensor.Shape{3, 4, 4, 32}, 1, rng)
	out := se.Forward(input, true)
	assert.Equal(t, input.Shape(), out.Shape())

	gate := se.Gate(input, false)
	require.Equal(t, tensor.Shape{3, 32}, gate.Shape())
	for _, g := range gate.Data() {
		assert.Greater(t, g, float32(0))
		assert.Less(t, g, float32(1))
	}

	// Every output is its input scaled by a factor in (0, 1).
	for i, v := range out.Data() {
		in := input.Data()[i]
		if in > 0 {
			assert.LessOrEqual(t, v, in)
			assert.GreaterOrEqual(t, v, float32(0))
		}
	}
}

func TestSqueezeExcite_ReductionRatio(t *testing.T) {
	backend := cpu.New()

	t.Run("ratio equal to channels", func(t *testing.T) {
		se, err := NewSqueezeExcite("se", 8, 8, backend, newRNG())
		require.NoError(t, err)
		assert.Equal(t, 1, se.Bottleneck())
	})

	t.Run("ratio above channels", func(t *testing.T) {
		_, err := NewSqueezeExcite("se", 8, 16, backend, newRNG())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "reduction_ratio", cfgErr.Field)
	})

	t.Run("ratio below one", func(t *testing.T) {
		_, err := NewSqueezeExcite("se", 8, 0, backend, newRNG())
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestSequential(t *testing.T) {
	backend := cpu.New()
	rng := newRNG()
	seq := NewSequential(
		NewLinear("fc1", 4, 3, backend, rng),
		NewReLU(backend),
	)
	seq.Add(NewLinear("fc2", 3, 2, backend, rng))

	assert.Equal(t, 3, seq.Len())
	assert.Len(t, seq.Parameters(), 4)
	assert.Equal(t, tensor.Shape{5, 2}, seq.Forward(tensor.Ones(tensor.Shape{5, 4}), false).Shape())
	assert.Panics(t, func() { seq.Module(3) })
}

func TestStateDict_RoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewSequential(NewLinear("fc", 3, 2, backend, rand.New(rand.NewSource(1))), NewBatchNorm("bn", 2, backend))
	dst := NewSequential(NewLinear("fc", 3, 2, backend, rand.New(rand.NewSource(2))), NewBatchNorm("bn", 2, backend))

	src.Forward(tensor.Randn(tensor.Shape{4, 3}, 1, newRNG()), true) // move running stats

	state, err := StateDict(src)
	require.NoError(t, err)
	assert.Len(t, state, 6)
	require.NoError(t, LoadStateDict(dst, state))

	for i, p := range dst.Parameters() {
		assert.Equal(t, src.Parameters()[i].Tensor().Data(), p.Tensor().Data(), p.Name())
	}
}

func TestLoadStateDict_Errors(t *testing.T) {
	backend := cpu.New()
	model := NewLinear("fc", 3, 2, backend, newRNG())

	t.Run("missing", func(t *testing.T) {
		err := LoadStateDict(model, map[string]*tensor.Tensor{"fc.kernel": tensor.Zeros(tensor.Shape{3, 2})})
		assert.ErrorContains(t, err, "missing parameter \"fc.bias\"")
	})

	t.Run("shape", func(t *testing.T) {
		err := LoadStateDict(model, map[string]*tensor.Tensor{
			"fc.kernel": tensor.Zeros(tensor.Shape{2, 3}),
			"fc.bias":   tensor.Zeros(tensor.Shape{2}),
		})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("unexpected", func(t *testing.T) {
		err := LoadStateDict(model, map[string]*tensor.Tensor{
			"fc.kernel": tensor.Zeros(tensor.Shape{3, 2}),
			"fc.bias":   tensor.Zeros(tensor.Shape{2}),
			"other":     tensor.Zeros(tensor.Shape{1}),
		})
		assert.ErrorContains(t, err, "unexpected parameters [other]")
	})

	t.Run("duplicate names", func(t *testing.T) {
		dup := NewSequential(NewLinear("fc", 2, 2, backend, newRNG()), NewLinear("fc", 2, 2, backend, newRNG()))
		_, err := StateDict(dup)
		assert.ErrorContains(t, err, "duplicate")
	})
}

func TestCountParametersAndFreeze(t *testing.T) {
	backend := cpu.New()
	model := NewSequential(NewLinear("fc", 3, 2, backend, newRNG()), NewBatchNorm("bn", 2, backend))

	count := CountParameters(model)
	assert.Equal(t, 3*2+2+2+2, count.Trainable)
	assert.Equal(t, 4, count.NonTrainable)
	assert.Equal(t, 16, count.Total())

	Freeze(model)
	count = CountParameters(model)
	assert.Equal(t, 0, count.Trainable)
	assert.Equal(t, 16, count.NonTrainable)
	assert.Empty(t, Trainable(model.Parameters()))
	assert.Len(t, Buffers(model.Parameters()), 6)
}

func TestSnapshot_Restore(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm("bn", 2, backend)
	snap := TakeSnapshot(Buffers(bn.Parameters()))

	bn.Forward(tensor.Full(tensor.Shape{2, 2}, 5), true)
	assert.NotEqual(t, []float32{0, 0}, bn.movingMean.Tensor().Data())

	snap.Restore()
	assert.Equal(t, []float32{0, 0}, bn.movingMean.Tensor().Data())
	assert.Equal(t, []float32{1, 1}, bn.movingVar.Tensor().Data())
}

func TestLosses(t *testing.T) {
	backend := cpu.New()
	logits, err := tensor.FromSlice([]float32{2, 1, 0, 0, 1, 2}, tensor.Shape{2, 3})
	require.NoError(t, err)
	labels, err := tensor.OneHot([]int{0, 2}, 3)
	require.NoError(t, err)

	ce := NewCrossEntropyLoss(backend).Forward(logits, labels)
	assert.Greater(t, ce.Item(), float32(0))

	_, err = NewKLDivergenceLoss(0, backend)
	assert.ErrorIs(t, err, ErrConfiguration)

	kl, err := NewKLDivergenceLoss(10, backend)
	require.NoError(t, err)
	soft := Softmax(backend, logits, 10)
	assert.InDelta(t, 0, kl.Forward(soft, logits).Item(), 1e-6)

	probs := Softmax(backend, logits, 1)
	for r := 0; r < 2; r++ {
		var sum float32
		for _, p := range probs.Row(r) {
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-6)
	}

	assert.Panics(t, func() {
		NewCrossEntropyLoss(backend).Forward(logits, tensor.Zeros(tensor.Shape{2, 4}))
	})
}

func TestCheckShape(t *testing.T) {
	assert.NoError(t, CheckShape("images", tensor.Shape{-1, 16, 16, 3}, tensor.Shape{8, 16, 16, 3}))

	err := CheckShape("images", tensor.Shape{-1, 16, 16, 3}, tensor.Shape{8, 16, 16, 1})
	var shapeErr *ShapeMismatchError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "images", shapeErr.Tensor)
	assert.ErrorIs(t, CheckShape("x", tensor.Shape{2}, tensor.Shape{2, 1}), ErrShapeMismatch)
}
