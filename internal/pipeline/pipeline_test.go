package pipeline

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/config"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/metrics"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/tensor"
)

func smallConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Height = 16
	cfg.Data.Width = 16
	cfg.Data.BatchSize = 4
	cfg.Data.Synthetic = &config.SyntheticConfig{Classes: 3, PerClass: 2, ValidationPerClass: 2}
	cfg.Teacher.Model = models.TeacherConfig{Backbone: models.BackboneConfig{Filters: []int{4}}, HiddenUnits: 8}
	cfg.Teacher.Epochs = 1
	cfg.Student.Model = models.StudentConfig{Widths: []int{4, 8}, DenseUnits: 8, ReductionRatio: 2, DropoutRate: 0.5}
	cfg.Student.Epochs = 1
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := smallConfig(t)
	reg := prometheus.NewRegistry()

	res, err := Run(context.Background(), cfg, Options{RunID: "e2e", Registerer: reg})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "e2e"), res.Dir)
	for _, name := range []string{TeacherFile, StudentFile, ReportFile, ConfigFile} {
		assert.FileExists(t, res.Path(name))
	}
	require.Len(t, res.Teacher.Epochs, 1)
	require.Len(t, res.Student.Epochs, 1)
	assert.NotNil(t, res.Student.Epochs[0].Validation)

	// 6 training samples in batches of 4.
	assert.Equal(t, 2.0, trainSteps(t, reg, "teacher"))
	assert.Equal(t, 2.0, trainSteps(t, reg, "student"))

	require.Len(t, res.Report.Models, 2)
	assert.Equal(t, "teacher", res.Report.Models[0].Name)
	assert.Equal(t, "student", res.Report.Models[1].Name)
	assert.Equal(t, 6, res.Report.Evaluation.Total)
	require.Len(t, res.Report.Evaluation.Classes, 3)

	report, err := os.ReadFile(res.Path(ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(report), "e2e")
	assert.Contains(t, string(report), "class_2")

	stored, err := config.Load(res.Path(ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, cfg, stored)

	// The persisted student yields valid probability distributions.
	student, header, err := models.Load(res.Path(StudentFile), cpu.New())
	require.NoError(t, err)
	assert.Equal(t, "e2e", header.RunID)

	val, err := dataset.Synthetic(3, 2, tensor.Shape{16, 16, 3}, cfg.Seed+1)
	require.NoError(t, err)
	it := val.Iterator(0)
	require.True(t, it.Next())
	probs, err := models.Predict(student, it.Batch().Images)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{6, 3}, probs.Shape())
	for i := range 6 {
		var sum float64
		for _, p := range probs.Row(i) {
			sum += float64(p)
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	for _, c := range tensor.ArgMax(probs) {
		assert.Contains(t, []int{0, 1, 2}, c)
	}
}

func trainSteps(t *testing.T, reg *prometheus.Registry, model string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "distill_steps_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["model"] == model && labels["phase"] == metrics.PhaseTrain {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no step counter for %s", model)
	return 0
}

func TestRun_PretrainedBackbone(t *testing.T) {
	cfg := smallConfig(t)
	backbone, err := models.NewConvBackbone(3, cfg.Teacher.Model.Backbone, cpu.New(), rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "backbone.kdst")
	require.NoError(t, backbone.SavePretrained(path))
	cfg.Teacher.PretrainedWeights = path

	res, err := Run(context.Background(), cfg, Options{RunID: "pretrained"})
	require.NoError(t, err)

	loaded, _, err := models.Load(res.Path(TeacherFile), autodiff.New(cpu.New()))
	require.NoError(t, err)
	teacher, ok := loaded.(*models.Teacher)
	require.True(t, ok)

	want, err := nn.StateDict(backbone)
	require.NoError(t, err)
	got, err := nn.StateDict(teacher.Backbone())
	require.NoError(t, err)
	for name, w := range want {
		assert.Equal(t, w.Data(), got[name].Data(), "frozen backbone %s keeps its pretrained weights", name)
	}
}

func TestRun_MissingPretrainedWeights(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Teacher.PretrainedWeights = filepath.Join(t.TempDir(), "missing.kdst")
	_, err := Run(context.Background(), cfg, Options{RunID: "missing"})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, smallConfig(t), Options{RunID: "cancelled"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Distillation.Alpha = 2
	_, err := Run(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	cfg = smallConfig(t)
	cfg.Student.Model.ReductionRatio = 16
	_, err = Run(context.Background(), cfg, Options{RunID: "bad-student"})
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestRun_GeneratesRunID(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Teacher.Epochs = 0
	cfg.Student.Epochs = 0

	res, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36)
	assert.DirExists(t, res.Dir)
	assert.Empty(t, res.Teacher.Epochs)
}

func TestMaxAbsDiff(t *testing.T) {
	assert.InDelta(t, 0.5, maxAbsDiff([]float32{1, 2}, []float32{1, 2.5}), 1e-9)
	assert.Zero(t, maxAbsDiff(nil, nil))
	assert.Greater(t, maxAbsDiff([]float32{1}, nil), 1e9)
}
