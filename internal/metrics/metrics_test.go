package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/tensor"
)

func TestCategoricalAccuracy(t *testing.T) {
	var acc CategoricalAccuracy
	assert.Zero(t, acc.Result())

	targets, err := tensor.OneHot([]int{0, 1, 2, 1}, 3)
	require.NoError(t, err)
	scores := tensor.New(tensor.Shape{4, 3}, []float32{
		0.9, 0.05, 0.05,
		0.1, 0.8, 0.1,
		0.7, 0.2, 0.1,
		0.2, 0.3, 0.5,
	})
	// Rows 0 and 1 are right, rows 2 and 3 are wrong.
	acc.Update(targets, scores)
	assert.InDelta(t, 0.5, acc.Result(), 1e-12)
	assert.Equal(t, 4, acc.Count())

	acc.Reset()
	assert.Zero(t, acc.Result())
	assert.Zero(t, acc.Count())

	assert.Panics(t, func() {
		acc.Update(targets, tensor.Zeros(tensor.Shape{4, 2}))
	})
}

func TestMean(t *testing.T) {
	var m Mean
	assert.Zero(t, m.Result())
	m.Update(1.0, 2)
	m.Update(4.0, 1)
	assert.InDelta(t, 2.0, m.Result(), 1e-12)
	m.Reset()
	assert.Zero(t, m.Result())
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheus(reg)
	require.NoError(t, err)

	rec.Step("student", PhaseTrain)
	rec.Step("student", PhaseTrain)
	rec.Epoch("student", PhaseValidation, 3, 0.25, 0.75)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Steps.WithLabelValues("student", PhaseTrain)))
	assert.Equal(t, 0.25, testutil.ToFloat64(rec.Loss.WithLabelValues("student", PhaseValidation)))
	assert.Equal(t, 0.75, testutil.ToFloat64(rec.Accuracy.WithLabelValues("student", PhaseValidation)))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.Epochs.WithLabelValues("student", PhaseValidation)))

	_, err = NewPrometheus(reg)
	assert.Error(t, err, "collectors must not register twice")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Step("teacher", PhaseTrain)
		Discard.Epoch("teacher", PhaseTrain, 1, 0, 0)
	})
}
