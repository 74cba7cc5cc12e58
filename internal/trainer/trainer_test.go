package trainer

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/metrics"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/optim"
	"github.com/born-ml/distill/internal/tensor"
)

var inputShape = tensor.Shape{16, 16, 3}

type adBackend = autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() *adBackend {
	return autodiff.New(cpu.New())
}

func newStudent(t *testing.T, backend tensor.Backend, seed int64) *models.Student {
	t.Helper()
	cfg := models.StudentConfig{Widths: []int{8, 16}, DenseUnits: 16, ReductionRatio: 4, DropoutRate: 0}
	s, err := models.NewStudent(inputShape, 3, cfg, backend, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return s
}

func newTeacher(t *testing.T, backend tensor.Backend, classes int) *models.Teacher {
	t.Helper()
	cfg := models.TeacherConfig{Backbone: models.BackboneConfig{Filters: []int{8}}, HiddenUnits: 16, FineTuneBackbone: true}
	m, err := models.NewTeacher(inputShape, classes, cfg, backend, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	return m
}

func fixedBatch(t *testing.T) dataset.Batch {
	t.Helper()
	ds, err := dataset.Synthetic(3, 2, inputShape, 1)
	require.NoError(t, err)
	it := ds.Iterator(ds.Len())
	require.True(t, it.Next())
	return it.Batch()
}

func cloneState(t *testing.T, m nn.Module) map[string][]float32 {
	t.Helper()
	state, err := nn.StateDict(m)
	require.NoError(t, err)
	out := make(map[string][]float32, len(state))
	for name, v := range state {
		out[name] = append([]float32(nil), v.Data()...)
	}
	return out
}

func newDistiller(t *testing.T, student, teacher models.Model, lr float32, hp Hyperparameters) *Distiller {
	t.Helper()
	d, err := NewDistiller(student, teacher, optim.NewAdam(student.Parameters(), optim.AdamConfig{LR: lr}), hp)
	require.NoError(t, err)
	return d
}

func TestDistiller_LossDecreasesOnFixedBatch(t *testing.T) {
	backend := newBackend()
	d := newDistiller(t, newStudent(t, backend, 1), newTeacher(t, backend, 3), 1e-2,
		Hyperparameters{Temperature: 10, Alpha: 0.5})
	batch := fixedBatch(t)

	var first, last StepResult
	for step := 1; step <= 20; step++ {
		r, err := d.TrainStep(batch)
		require.NoError(t, err)
		if step == 1 {
			first = r
		}
		last = r
	}
	assert.Less(t, last.Loss, first.Loss)
	assert.InDelta(t, 0.5*first.StudentLoss+0.5*first.DistillationLoss, first.Loss, 1e-5)
	assert.Zero(t, backend.Tape().NumOps(), "tape is cleared after every step")
	assert.False(t, backend.Tape().IsRecording())
}

func TestDistiller_TeacherIsNeverModified(t *testing.T) {
	backend := newBackend()
	teacher := newTeacher(t, backend, 3)
	before := cloneState(t, teacher)

	d := newDistiller(t, newStudent(t, backend, 1), teacher, 1e-2, DefaultHyperparameters())
	batch := fixedBatch(t)
	for range 5 {
		_, err := d.TrainStep(batch)
		require.NoError(t, err)
	}

	assert.Equal(t, before, cloneState(t, teacher))
}

func TestDistiller_AlphaOneMatchesSupervised(t *testing.T) {
	backend := newBackend()
	teacher := newTeacher(t, backend, 3)
	batch := fixedBatch(t)

	distilled := newStudent(t, backend, 5)
	d := newDistiller(t, distilled, teacher, 1e-2, Hyperparameters{Temperature: 10, Alpha: 1})

	supervised := newStudent(t, backend, 5)
	s, err := NewSupervised(supervised, optim.NewAdam(supervised.Parameters(), optim.AdamConfig{LR: 1e-2}))
	require.NoError(t, err)

	for range 3 {
		rd, err := d.TrainStep(batch)
		require.NoError(t, err)
		rs, err := s.TrainStep(batch)
		require.NoError(t, err)
		assert.InDelta(t, rs.Loss, rd.Loss, 1e-6)
		assert.InDelta(t, rs.Loss, rd.StudentLoss, 1e-6)
	}

	want := cloneState(t, supervised)
	got := cloneState(t, distilled)
	for name, w := range want {
		require.Len(t, got[name], len(w))
		for i := range w {
			assert.InDelta(t, w[i], got[name][i], 1e-6, name)
		}
	}
}

func TestDistiller_AlphaZeroIgnoresHardLabels(t *testing.T) {
	backend := newBackend()
	teacher := newTeacher(t, backend, 3)
	batch := fixedBatch(t)

	shifted := make([]int, len(batch.Classes))
	for i, c := range batch.Classes {
		shifted[i] = (c + 1) % 3
	}
	relabelled, err := dataset.NewBatch(batch.Images, shifted, 3)
	require.NoError(t, err)

	hp := Hyperparameters{Temperature: 10, Alpha: 0}
	a := newStudent(t, backend, 3)
	b := newStudent(t, backend, 3)
	da := newDistiller(t, a, teacher, 1e-2, hp)
	db := newDistiller(t, b, teacher, 1e-2, hp)

	for range 3 {
		ra, err := da.TrainStep(batch)
		require.NoError(t, err)
		rb, err := db.TrainStep(relabelled)
		require.NoError(t, err)
		assert.Equal(t, ra.DistillationLoss, rb.DistillationLoss)
		assert.NotEqual(t, ra.StudentLoss, rb.StudentLoss)
	}
	assert.Equal(t, cloneState(t, a), cloneState(t, b))
}

func TestDistiller_NonFiniteLossIsAtomic(t *testing.T) {
	backend := newBackend()
	student := newStudent(t, backend, 1)
	adam := optim.NewAdam(student.Parameters(), optim.AdamConfig{})
	d, err := NewDistiller(student, newTeacher(t, backend, 3), adam, DefaultHyperparameters())
	require.NoError(t, err)

	batch := fixedBatch(t)
	poisoned := batch.Images.Clone()
	poisoned.Data()[0] = float32(math.NaN())
	before := cloneState(t, student)

	_, err = d.TrainStep(dataset.Batch{Images: poisoned, Labels: batch.Labels, Classes: batch.Classes})
	var numErr *nn.NumericalError
	require.ErrorAs(t, err, &numErr)
	assert.ErrorIs(t, err, nn.ErrNumerical)
	assert.Equal(t, "loss", numErr.Stage)

	assert.Equal(t, before, cloneState(t, student), "parameters and batch-norm statistics are untouched")
	assert.Zero(t, adam.Timestep())
	assert.Zero(t, backend.Tape().NumOps())

	_, err = d.TrainStep(batch)
	assert.NoError(t, err, "trainer stays usable after a failed step")
}

func TestDistiller_ShapeMismatch(t *testing.T) {
	backend := newBackend()
	student := newStudent(t, backend, 1)
	d := newDistiller(t, student, newTeacher(t, backend, 3), 1e-3, DefaultHyperparameters())
	batch := fixedBatch(t)
	before := cloneState(t, student)

	wrongImages := dataset.Batch{Images: tensor.Zeros(tensor.Shape{6, 8, 8, 3}), Labels: batch.Labels}
	wrongLabels := dataset.Batch{Images: batch.Images, Labels: tensor.Zeros(tensor.Shape{6, 4})}
	wrongCount := dataset.Batch{Images: batch.Images, Labels: tensor.Zeros(tensor.Shape{5, 3})}
	empty := dataset.Batch{Images: tensor.Zeros(tensor.Shape{0, 16, 16, 3}), Labels: tensor.Zeros(tensor.Shape{0, 3})}

	for _, b := range []dataset.Batch{wrongImages, wrongLabels, wrongCount, empty, {}} {
		_, err := d.TrainStep(b)
		assert.ErrorIs(t, err, nn.ErrShapeMismatch)
		_, err = d.EvalStep(b)
		assert.ErrorIs(t, err, nn.ErrShapeMismatch)
	}

	var mismatch *nn.ShapeMismatchError
	_, err := d.TrainStep(wrongLabels)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "labels", mismatch.Tensor)

	assert.Equal(t, before, cloneState(t, student))
}

func TestNewDistiller_ConfigurationErrors(t *testing.T) {
	backend := newBackend()
	student := newStudent(t, backend, 1)
	teacher := newTeacher(t, backend, 3)
	adam := optim.NewAdam(student.Parameters(), optim.AdamConfig{})

	tests := []struct {
		name    string
		student models.Model
		teacher models.Model
		hp      Hyperparameters
		field   string
	}{
		{"zero temperature", student, teacher, Hyperparameters{Temperature: 0, Alpha: 0.1}, "temperature"},
		{"negative temperature", student, teacher, Hyperparameters{Temperature: -1, Alpha: 0.1}, "temperature"},
		{"alpha below zero", student, teacher, Hyperparameters{Temperature: 10, Alpha: -0.1}, "alpha"},
		{"alpha above one", student, teacher, Hyperparameters{Temperature: 10, Alpha: 1.5}, "alpha"},
		{"nan alpha", student, teacher, Hyperparameters{Temperature: 10, Alpha: float32(math.NaN())}, "alpha"},
		{"class mismatch", student, newTeacher(t, backend, 4), DefaultHyperparameters(), "num_classes"},
		{"plain backend", newStudent(t, cpu.New(), 1), teacher, DefaultHyperparameters(), "student.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDistiller(tt.student, tt.teacher, adam, tt.hp)
			var cfgErr *nn.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	small, err := models.NewTeacher(tensor.Shape{8, 8, 3}, 3,
		models.TeacherConfig{Backbone: models.BackboneConfig{Filters: []int{4}}, HiddenUnits: 4}, backend, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = NewDistiller(student, small, adam, DefaultHyperparameters())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	_, err = NewSupervised(newStudent(t, cpu.New(), 1), adam)
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestDistiller_EvalStepDoesNotTrain(t *testing.T) {
	backend := newBackend()
	student := newStudent(t, backend, 1)
	d := newDistiller(t, student, newTeacher(t, backend, 3), 1e-2, DefaultHyperparameters())
	batch := fixedBatch(t)
	before := cloneState(t, student)

	r1, err := d.EvalStep(batch)
	require.NoError(t, err)
	r2, err := d.EvalStep(batch)
	require.NoError(t, err)

	assert.Equal(t, r1.Loss, r2.Loss, "inference mode is deterministic")
	assert.Equal(t, r1.Loss, r1.StudentLoss)
	assert.Zero(t, r1.DistillationLoss)
	assert.Equal(t, before, cloneState(t, student))
	assert.Zero(t, backend.Tape().NumOps())

	d.ResetMetrics()
	assert.Zero(t, d.Summary().Accuracy)
}

func TestDistiller_EvalStepRejectsNonFiniteLoss(t *testing.T) {
	backend := newBackend()
	d := newDistiller(t, newStudent(t, backend, 1), newTeacher(t, backend, 3), 1e-3, DefaultHyperparameters())
	batch := fixedBatch(t)

	_, err := d.EvalStep(batch)
	require.NoError(t, err)
	summary := d.Summary()

	poisoned := batch.Images.Clone()
	poisoned.Data()[0] = float32(math.NaN())
	_, err = d.EvalStep(dataset.Batch{Images: poisoned, Labels: batch.Labels, Classes: batch.Classes})
	var numErr *nn.NumericalError
	require.ErrorAs(t, err, &numErr)
	assert.ErrorIs(t, err, nn.ErrNumerical)
	assert.Equal(t, "loss", numErr.Stage)
	assert.Equal(t, summary, d.Summary(), "a rejected batch leaves the metrics alone")
	assert.Zero(t, backend.Tape().NumOps())
}

func TestDistiller_MetricsAccumulate(t *testing.T) {
	backend := newBackend()
	d := newDistiller(t, newStudent(t, backend, 1), newTeacher(t, backend, 3), 1e-2, DefaultHyperparameters())
	batch := fixedBatch(t)

	r1, err := d.TrainStep(batch)
	require.NoError(t, err)
	r2, err := d.TrainStep(batch)
	require.NoError(t, err)

	summary := d.Summary()
	assert.InDelta(t, (r1.Loss+r2.Loss)/2, summary.Loss, 1e-9)
	assert.InDelta(t, (r1.DistillationLoss+r2.DistillationLoss)/2, summary.DistillationLoss, 1e-9)
	assert.GreaterOrEqual(t, summary.Accuracy, 0.0)
	assert.LessOrEqual(t, summary.Accuracy, 1.0)
	assert.Equal(t, DefaultHyperparameters(), d.Hyperparameters())
}

func TestFit(t *testing.T) {
	backend := newBackend()
	train, err := dataset.Synthetic(3, 4, inputShape, 1)
	require.NoError(t, err)
	train.WithShuffle(1)
	val, err := dataset.Synthetic(3, 2, inputShape, 2)
	require.NoError(t, err)

	teacherModel := newTeacher(t, backend, 3)
	teacher, err := NewSupervised(teacherModel, optim.NewAdam(teacherModel.Parameters(), optim.AdamConfig{}))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	history, err := Fit(context.Background(), teacher, train, val, FitConfig{
		Name: "teacher", Epochs: 2, BatchSize: 5, Recorder: rec,
	})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 2)
	last, ok := history.Last()
	require.True(t, ok)
	assert.Equal(t, 2, last.Epoch)
	require.NotNil(t, last.Validation)
	assert.Greater(t, last.Train.Loss, 0.0)

	// 12 samples in batches of 5 → 3 steps per epoch.
	assert.Equal(t, 6.0, testutil.ToFloat64(rec.Steps.WithLabelValues("teacher", metrics.PhaseTrain)))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Epochs.WithLabelValues("teacher", metrics.PhaseValidation)))

	student := newStudent(t, backend, 2)
	d := newDistiller(t, student, teacherModel, 1e-3, DefaultHyperparameters())
	history, err = Fit(context.Background(), d, train, nil, FitConfig{Name: "student", Epochs: 1, BatchSize: 4})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 1)
	assert.Nil(t, history.Epochs[0].Validation)
	assert.NotZero(t, history.Epochs[0].Train.DistillationLoss)
}

func TestFit_Cancellation(t *testing.T) {
	backend := newBackend()
	train, err := dataset.Synthetic(3, 2, inputShape, 1)
	require.NoError(t, err)
	student := newStudent(t, backend, 1)
	before := cloneState(t, student)
	s, err := NewSupervised(student, optim.NewSGD(student.Parameters(), optim.SGDConfig{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err := Fit(ctx, s, train, nil, FitConfig{Name: "student", Epochs: 3, BatchSize: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history.Epochs)
	assert.Equal(t, before, cloneState(t, student))

	_, ok := history.Last()
	assert.False(t, ok)
}

func TestFit_InvalidConfig(t *testing.T) {
	backend := newBackend()
	train, err := dataset.Synthetic(3, 1, inputShape, 1)
	require.NoError(t, err)
	student := newStudent(t, backend, 1)
	s, err := NewSupervised(student, optim.NewSGD(student.Parameters(), optim.SGDConfig{}))
	require.NoError(t, err)

	_, err = Fit(context.Background(), s, train, nil, FitConfig{Epochs: 1})
	assert.Error(t, err)
	_, err = Fit(context.Background(), s, train, nil, FitConfig{Epochs: -1, BatchSize: 1})
	assert.Error(t, err)
}
