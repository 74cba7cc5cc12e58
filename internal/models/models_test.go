package models

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/tensor"
)

var testInput = tensor.Shape{16, 16, 3}

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(7))
}

func smallStudentConfig() StudentConfig {
	return StudentConfig{Widths: []int{4, 8}, DenseUnits: 6, ReductionRatio: 2, DropoutRate: 0.5}
}

func smallTeacherConfig() TeacherConfig {
	return TeacherConfig{Backbone: BackboneConfig{Filters: []int{4, 8}}, HiddenUnits: 6}
}

func randomImages(n int, shape tensor.Shape, seed int64) *tensor.Tensor {
	return tensor.Uniform(tensor.Shape{n, shape[0], shape[1], shape[2]}, 0, 1, rand.New(rand.NewSource(seed)))
}

func assertProbabilities(t *testing.T, probs *tensor.Tensor, classes int) {
	t.Helper()
	s := probs.Shape()
	require.Len(t, s, 2)
	require.Equal(t, classes, s[1])
	for i := range s[0] {
		var sum float64
		for _, p := range probs.Row(i) {
			assert.GreaterOrEqual(t, p, float32(0))
			sum += float64(p)
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	for _, c := range tensor.ArgMax(probs) {
		assert.True(t, c >= 0 && c < classes)
	}
}

func TestStudent_DefaultArchitecture(t *testing.T) {
	backend := cpu.New()
	student, err := NewStudent(testInput, 3, DefaultStudentConfig(), backend, newRNG())
	require.NoError(t, err)

	x := randomImages(2, testInput, 1)
	logits := student.Forward(x, false)
	assert.Equal(t, tensor.Shape{2, 3}, logits.Shape())

	probs, err := Predict(student, x)
	require.NoError(t, err)
	assertProbabilities(t, probs, 3)

	state, err := nn.StateDict(student)
	require.NoError(t, err)
	for _, name := range []string{
		"stage1.depthwise.depthwise_kernel",
		"stage1.bn1.moving_mean",
		"stage1.pointwise.kernel",
		"stage4.se.squeeze.kernel",
		"stage5.pointwise.kernel",
		"head.dense.kernel",
		"head.logits.bias",
	} {
		assert.Contains(t, state, name)
	}
	assert.NotContains(t, state, "stage5.se.squeeze.kernel")
	assert.Equal(t, tensor.Shape{256, 512}, state["stage5.pointwise.kernel"].Shape())
	assert.Equal(t, tensor.Shape{512, 512}, state["head.dense.kernel"].Shape())
	// 32 / 16 = 2 bottleneck units in the first SE block.
	assert.Equal(t, tensor.Shape{32, 2}, state["stage1.se.squeeze.kernel"].Shape())
}

func TestStudent_ParameterCount(t *testing.T) {
	student, err := NewStudent(testInput, 3, smallStudentConfig(), cpu.New(), newRNG())
	require.NoError(t, err)

	// stage1: depthwise 30, bn1 6+6, pointwise 16, bn2 8+8, se 10+12
	// stage2: depthwise 40, bn1 8+8, pointwise 40, bn2 16+16
	// head:   dense 54, logits 21
	count := nn.CountParameters(student)
	assert.Equal(t, 261, count.Trainable)
	assert.Equal(t, 38, count.NonTrainable)
	assert.Equal(t, 299, count.Total())
}

func TestStudent_InferenceIsDeterministic(t *testing.T) {
	student, err := NewStudent(testInput, 3, smallStudentConfig(), cpu.New(), newRNG())
	require.NoError(t, err)

	x := randomImages(4, testInput, 2)
	a := student.Forward(x, false)
	b := student.Forward(x, false)
	assert.Equal(t, a.Data(), b.Data())
}

func TestStudent_ConfigurationErrors(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		name       string
		inputShape tensor.Shape
		classes    int
		mutate     func(*StudentConfig)
	}{
		{"ratio exceeds width", testInput, 3, func(c *StudentConfig) { c.ReductionRatio = 5 }},
		{"zero ratio", testInput, 3, func(c *StudentConfig) { c.ReductionRatio = 0 }},
		{"no stages", testInput, 3, func(c *StudentConfig) { c.Widths = nil }},
		{"bad dropout", testInput, 3, func(c *StudentConfig) { c.DropoutRate = 1 }},
		{"single class", testInput, 1, func(*StudentConfig) {}},
		{"image too small", tensor.Shape{1, 1, 3}, 3, func(*StudentConfig) {}},
		{"rank two input", tensor.Shape{16, 16}, 3, func(*StudentConfig) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallStudentConfig()
			tt.mutate(&cfg)
			_, err := NewStudent(tt.inputShape, tt.classes, cfg, backend, newRNG())
			assert.ErrorIs(t, err, nn.ErrConfiguration)
		})
	}
}

func TestStudent_RatioEqualToWidth(t *testing.T) {
	cfg := StudentConfig{Widths: []int{4, 8}, DenseUnits: 4, ReductionRatio: 4, DropoutRate: 0}
	student, err := NewStudent(testInput, 2, cfg, cpu.New(), newRNG())
	require.NoError(t, err)

	state, err := nn.StateDict(student)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 1}, state["stage1.se.squeeze.kernel"].Shape())
}

func TestTeacher_FrozenBackbone(t *testing.T) {
	backend := cpu.New()
	frozen, err := NewTeacher(testInput, 3, smallTeacherConfig(), backend, newRNG())
	require.NoError(t, err)

	for _, p := range frozen.Backbone().Parameters() {
		assert.False(t, p.Trainable(), p.Name())
	}
	// head.hidden 8*6+6, head.logits 6*3+3
	assert.Equal(t, 75, nn.CountParameters(frozen).Trainable)
	// block1 3*3*3*4+4, block2 3*3*4*8+8
	assert.Equal(t, 112+296, nn.CountParameters(frozen).NonTrainable)

	cfg := smallTeacherConfig()
	cfg.FineTuneBackbone = true
	tuned, err := NewTeacher(testInput, 3, cfg, backend, newRNG())
	require.NoError(t, err)
	assert.Zero(t, nn.CountParameters(tuned).NonTrainable)

	probs, err := Predict(tuned, randomImages(2, testInput, 3))
	require.NoError(t, err)
	assertProbabilities(t, probs, 3)
}

func TestTeacher_ConfigurationErrors(t *testing.T) {
	backend := cpu.New()

	cfg := smallTeacherConfig()
	cfg.HiddenUnits = 0
	_, err := NewTeacher(testInput, 3, cfg, backend, newRNG())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	cfg = smallTeacherConfig()
	cfg.Backbone.Filters = nil
	_, err = NewTeacher(testInput, 3, cfg, backend, newRNG())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	_, err = NewTeacher(tensor.Shape{2, 2, 3}, 3, smallTeacherConfig(), backend, newRNG())
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestPredict_ShapeMismatch(t *testing.T) {
	student, err := NewStudent(testInput, 3, smallStudentConfig(), cpu.New(), newRNG())
	require.NoError(t, err)

	_, err = Predict(student, randomImages(2, tensor.Shape{8, 8, 3}, 4))
	var mismatch *nn.ShapeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "images", mismatch.Tensor)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	backend := cpu.New()
	dir := t.TempDir()
	x := randomImages(3, testInput, 5)

	student, err := NewStudent(testInput, 3, smallStudentConfig(), backend, newRNG())
	require.NoError(t, err)
	// Move batch-norm running statistics away from their initial values.
	student.Forward(randomImages(4, testInput, 6), true)

	teacher, err := NewTeacher(testInput, 3, smallTeacherConfig(), backend, newRNG())
	require.NoError(t, err)

	for _, m := range []Model{student, teacher} {
		path := filepath.Join(dir, string(m.Spec().Kind)+".kdst")
		require.NoError(t, Save(path, m, SaveOptions{RunID: "run-42", Metadata: map[string]string{"epochs": "1"}}))

		loaded, header, err := Load(path, backend)
		require.NoError(t, err)
		assert.Equal(t, "run-42", header.RunID)
		assert.Equal(t, string(m.Spec().Kind), header.ModelType)
		assert.Equal(t, "1", header.Metadata["epochs"])
		assert.Equal(t, m.Spec(), loaded.Spec())
		assert.Equal(t, nn.CountParameters(m), nn.CountParameters(loaded))

		want, err := Predict(m, x)
		require.NoError(t, err)
		got, err := Predict(loaded, x)
		require.NoError(t, err)
		for i, v := range want.Data() {
			assert.InDelta(t, v, got.Data()[i], 1e-5)
		}
	}
}

func TestLoad_RejectsForeignFile(t *testing.T) {
	backend := cpu.New()
	path := filepath.Join(t.TempDir(), "backbone.kdst")

	backbone, err := NewConvBackbone(3, BackboneConfig{Filters: []int{4}}, backend, newRNG())
	require.NoError(t, err)
	require.NoError(t, backbone.SavePretrained(path))

	_, _, err = Load(path, backend)
	assert.Error(t, err)
}

func TestBackbone_PretrainedWeights(t *testing.T) {
	backend := cpu.New()
	dir := t.TempDir()

	source, err := NewTeacher(testInput, 3, smallTeacherConfig(), backend, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	fullPath := filepath.Join(dir, "teacher.kdst")
	require.NoError(t, Save(fullPath, source, SaveOptions{}))
	barePath := filepath.Join(dir, "backbone.kdst")
	require.NoError(t, source.Backbone().SavePretrained(barePath))

	for _, path := range []string{fullPath, barePath} {
		target, err := NewTeacher(testInput, 3, smallTeacherConfig(), backend, rand.New(rand.NewSource(2)))
		require.NoError(t, err)
		require.NoError(t, target.Backbone().LoadPretrained(path))

		want, err := nn.StateDict(source.Backbone())
		require.NoError(t, err)
		got, err := nn.StateDict(target.Backbone())
		require.NoError(t, err)
		for name, w := range want {
			assert.Equal(t, w.Data(), got[name].Data(), name)
		}
	}

	mismatched, err := NewConvBackbone(3, BackboneConfig{Filters: []int{4, 16}}, backend, newRNG())
	require.NoError(t, err)
	assert.ErrorIs(t, mismatched.LoadPretrained(barePath), nn.ErrShapeMismatch)
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build(Spec{Kind: "resnet", InputShape: testInput, NumClasses: 3}, cpu.New(), newRNG())
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestPredict_NoNaN(t *testing.T) {
	student, err := NewStudent(testInput, 4, smallStudentConfig(), cpu.New(), newRNG())
	require.NoError(t, err)
	probs, err := Predict(student, randomImages(2, testInput, 8))
	require.NoError(t, err)
	for _, p := range probs.Data() {
		assert.False(t, math.IsNaN(float64(p)))
	}
}
