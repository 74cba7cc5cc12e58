// Package pipeline runs a complete distillation experiment: it trains a
// teacher, distills it into a student and reports how both perform.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/backend/cpu"
	"github.com/born-ml/distill/internal/config"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/metrics"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/optim"
	"github.com/born-ml/distill/internal/report"
	"github.com/born-ml/distill/internal/tensor"
	"github.com/born-ml/distill/internal/trainer"
)

// Files written to the run directory.
const (
	TeacherFile = "teacher.kdst"
	StudentFile = "student.kdst"
	ReportFile  = "report.txt"
	ConfigFile  = "config.yaml"
)

// ReloadTolerance bounds the prediction drift allowed between a model and
// its reloaded copy.
const ReloadTolerance = 1e-5

// Options carries dependencies that are not part of the run configuration.
type Options struct {
	// RunID names the run directory. Empty generates a random UUID.
	RunID string
	// Registerer receives training metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Dir     string
	Teacher trainer.History
	Student trainer.History
	Report  report.Run
}

// Path returns the location of a run file.
func (r Result) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// Run executes the whole experiment:
//
//	build teacher → fit → save → reload → build student → distill → save → reload → evaluate
//
// Every model is reloaded from disk after saving and compared with the
// in-memory copy before it is used further.
func Run(ctx context.Context, cfg config.Config, opts Options) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid config: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	res := Result{RunID: runID, Dir: filepath.Join(cfg.OutputDir, runID)}
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create run directory: %w", err)
	}
	if err := writeConfig(res.Path(ConfigFile), cfg); err != nil {
		return res, err
	}

	var rec metrics.Recorder = metrics.Discard
	if opts.Registerer != nil {
		p, err := metrics.NewPrometheus(opts.Registerer)
		if err != nil {
			return res, fmt.Errorf("register metrics: %w", err)
		}
		rec = p
	}

	logger := log.With().Str("run", runID).Logger()
	logger.Info().Str("dir", res.Dir).Msg("starting distillation run")

	train, validation, err := loadData(ctx, cfg.Data, cfg.Seed)
	if err != nil {
		return res, err
	}
	probe, err := probeBatch(validation, cfg.Data.BatchSize)
	if err != nil {
		return res, err
	}

	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(cfg.Seed))
	inputShape := train.InputShape()
	numClasses := train.NumClasses()

	// Teacher.
	teacher, err := models.NewTeacher(inputShape, numClasses, cfg.Teacher.Model, backend, rng)
	if err != nil {
		return res, fmt.Errorf("build teacher: %w", err)
	}
	if path := cfg.Teacher.PretrainedWeights; path != "" {
		if err := teacher.Backbone().LoadPretrained(path); err != nil {
			return res, err
		}
		logger.Info().Str("path", path).Msg("loaded pretrained backbone")
	} else {
		logger.Warn().Msg("no pretrained backbone weights configured, teacher backbone starts from random initialization")
	}
	logParameters(logger.Info(), "teacher", teacher).Msg("built teacher")

	supervised, err := trainer.NewSupervised(teacher, optim.NewAdam(teacher.Parameters(), optim.AdamConfig{LR: cfg.Teacher.LearningRate}))
	if err != nil {
		return res, err
	}
	res.Teacher, err = trainer.Fit(ctx, supervised, train, validation, trainer.FitConfig{
		Name:      string(models.KindTeacher),
		Epochs:    cfg.Teacher.Epochs,
		BatchSize: cfg.Data.BatchSize,
		Recorder:  rec,
	})
	if err != nil {
		return res, fmt.Errorf("train teacher: %w", err)
	}

	reloadedTeacher, err := saveAndReload(res.Path(TeacherFile), teacher, backend, probe, runID)
	if err != nil {
		return res, err
	}

	// Student.
	student, err := models.NewStudent(inputShape, numClasses, cfg.Student.Model, backend, rng)
	if err != nil {
		return res, fmt.Errorf("build student: %w", err)
	}
	logParameters(logger.Info(), "student", student).Msg("built student")

	distiller, err := trainer.NewDistiller(student, reloadedTeacher,
		optim.NewAdam(student.Parameters(), optim.AdamConfig{LR: cfg.Student.LearningRate}), cfg.Distillation)
	if err != nil {
		return res, err
	}
	res.Student, err = trainer.Fit(ctx, distiller, train, validation, trainer.FitConfig{
		Name:      string(models.KindStudent),
		Epochs:    cfg.Student.Epochs,
		BatchSize: cfg.Data.BatchSize,
		Recorder:  rec,
	})
	if err != nil {
		return res, fmt.Errorf("distill student: %w", err)
	}

	reloadedStudent, err := saveAndReload(res.Path(StudentFile), student, backend, probe, runID)
	if err != nil {
		return res, err
	}

	// Evaluation.
	teacherEval, err := evaluate(ctx, reloadedTeacher, validation, cfg.Data.BatchSize)
	if err != nil {
		return res, fmt.Errorf("evaluate teacher: %w", err)
	}
	studentEval, err := evaluate(ctx, reloadedStudent, validation, cfg.Data.BatchSize)
	if err != nil {
		return res, fmt.Errorf("evaluate student: %w", err)
	}
	res.Report = report.Run{
		ID:       runID,
		Finished: time.Now(),
		Models: []report.ModelSummary{
			summarize("teacher", reloadedTeacher, teacherEval),
			summarize("student", reloadedStudent, studentEval),
		},
		Evaluation: studentEval,
		Evaluated:  "student",
	}
	if err := writeReport(res.Path(ReportFile), res.Report); err != nil {
		return res, err
	}

	logger.Info().
		Float64("teacher_accuracy", teacherEval.Accuracy).
		Float64("student_accuracy", studentEval.Accuracy).
		Float64("compression", res.Report.Compression(res.Report.Models[1])).
		Str("report", res.Path(ReportFile)).
		Msg("distillation run finished")
	return res, nil
}

// saveAndReload persists m to path, loads it back and checks the copy
// matches: same parameter counts and predictions on probe within
// ReloadTolerance.
func saveAndReload(path string, m models.Model, backend tensor.Backend, probe *tensor.Tensor, runID string) (models.Model, error) {
	kind := m.Spec().Kind
	if err := models.Save(path, m, models.SaveOptions{RunID: runID}); err != nil {
		return nil, err
	}
	reloaded, _, err := models.Load(path, backend)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", kind, err)
	}

	want, got := nn.CountParameters(m), nn.CountParameters(reloaded)
	if want != got {
		return nil, fmt.Errorf("reload %s: parameter counts differ: saved %+v, loaded %+v", kind, want, got)
	}
	before, err := models.Predict(m, probe)
	if err != nil {
		return nil, err
	}
	after, err := models.Predict(reloaded, probe)
	if err != nil {
		return nil, err
	}
	if d := maxAbsDiff(before.Data(), after.Data()); d > ReloadTolerance {
		return nil, fmt.Errorf("reload %s: predictions drift by %g", kind, d)
	}

	log.Debug().Str("model", string(kind)).Str("path", path).Msg("round trip verified")
	return reloaded, nil
}

// evaluate predicts every sample of src and scores the predictions.
func evaluate(ctx context.Context, m models.Model, src dataset.Source, batchSize int) (report.Classification, error) {
	var truth, predicted []int
	it := src.Iterator(batchSize)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return report.Classification{}, err
		}
		batch := it.Batch()
		probs, err := models.Predict(m, batch.Images)
		if err != nil {
			return report.Classification{}, err
		}
		truth = append(truth, batch.Classes...)
		predicted = append(predicted, tensor.ArgMax(probs)...)
	}
	return report.Classify(truth, predicted, src.ClassNames())
}

func summarize(name string, m models.Model, eval report.Classification) report.ModelSummary {
	count := nn.CountParameters(m)
	return report.ModelSummary{
		Name:         name,
		Trainable:    count.Trainable,
		NonTrainable: count.NonTrainable,
		Accuracy:     eval.Accuracy,
	}
}

func logParameters(e *zerolog.Event, name string, m models.Model) *zerolog.Event {
	count := nn.CountParameters(m)
	return e.Str("model", name).Int("trainable", count.Trainable).Int("non_trainable", count.NonTrainable)
}

func probeBatch(src dataset.Source, batchSize int) (*tensor.Tensor, error) {
	it := src.Iterator(batchSize)
	if !it.Next() {
		return nil, fmt.Errorf("validation data is empty")
	}
	return it.Batch().Images, nil
}

func writeConfig(path string, cfg config.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func writeReport(path string, r report.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func maxAbsDiff(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var d float64
	for i := range a {
		d = max(d, math.Abs(float64(a[i])-float64(b[i])))
	}
	return d
}
