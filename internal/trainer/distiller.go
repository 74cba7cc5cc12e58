package trainer

import (
	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/optim"
	"github.com/born-ml/distill/internal/tensor"
)

// Default distillation hyperparameters.
const (
	DefaultTemperature = 10
	DefaultAlpha       = 0.1
)

// Hyperparameters weight the two distillation objectives.
type Hyperparameters struct {
	// Temperature softens both teacher and student distributions; must be > 0.
	Temperature float32 `yaml:"temperature"`
	// Alpha weights the hard-label loss; 1 - Alpha weights the distillation
	// loss. Must lie in [0, 1].
	Alpha float32 `yaml:"alpha"`
}

// DefaultHyperparameters returns T = 10 and alpha = 0.1.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{Temperature: DefaultTemperature, Alpha: DefaultAlpha}
}

// Validate checks the ranges of T and alpha.
func (h Hyperparameters) Validate() error {
	if !(h.Temperature > 0) {
		return &nn.ConfigurationError{Field: "temperature", Value: h.Temperature, Details: "must be positive"}
	}
	if !(h.Alpha >= 0 && h.Alpha <= 1) {
		return &nn.ConfigurationError{Field: "alpha", Value: h.Alpha, Details: "must lie in [0, 1]"}
	}
	return nil
}

// Distiller trains a student to match both the hard labels and the
// temperature-softened predictions of a frozen teacher:
//
//	loss = α · CE(y, student) + (1 − α) · KL(softmax(teacher/T) ‖ softmax(student/T))
//
// The teacher runs in inference mode with recording suspended, so it never
// receives gradients and its parameters never change.
type Distiller struct {
	student   models.Model
	teacher   models.Model
	optimizer optim.Optimizer
	hp        Hyperparameters
	backend   autodiff.BackwardCapable
	hardLoss  *nn.CrossEntropyLoss
	softLoss  *nn.KLDivergenceLoss
	metrics   runningMetrics
}

// NewDistiller validates the pairing of student and teacher and returns a
// Distiller. The optimizer must have been built over student.Parameters().
func NewDistiller(student, teacher models.Model, optimizer optim.Optimizer, hp Hyperparameters) (*Distiller, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	if student.NumClasses() != teacher.NumClasses() {
		return nil, &nn.ConfigurationError{
			Field:   "num_classes",
			Value:   student.NumClasses(),
			Details: "student and teacher disagree on the class count",
		}
	}
	if !student.InputShape().Equal(teacher.InputShape()) {
		return nil, &nn.ConfigurationError{
			Field:   "input_shape",
			Value:   student.InputShape(),
			Details: "teacher expects " + teacher.InputShape().String(),
		}
	}
	ad, err := autodiffBackend(student, "student")
	if err != nil {
		return nil, err
	}
	softLoss, err := nn.NewKLDivergenceLoss(hp.Temperature, ad)
	if err != nil {
		return nil, err
	}
	return &Distiller{
		student:   student,
		teacher:   teacher,
		optimizer: optimizer,
		hp:        hp,
		backend:   ad,
		hardLoss:  nn.NewCrossEntropyLoss(ad),
		softLoss:  softLoss,
	}, nil
}

// TrainStep performs one distillation update on batch.
func (d *Distiller) TrainStep(batch dataset.Batch) (StepResult, error) {
	if err := validateBatch(d.student, batch); err != nil {
		return StepResult{}, err
	}

	params := d.student.Parameters()
	trainable := nn.Trainable(params)
	snapshot := nn.TakeSnapshot(nn.Buffers(params))

	// Soft targets are constants: computed without recording and detached.
	var softTargets *tensor.Tensor
	d.backend.NoGrad(func() {
		teacherLogits := d.teacher.Forward(batch.Images, false)
		softTargets = nn.Softmax(d.backend, teacherLogits, d.hp.Temperature).Detach()
	})

	tape := d.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	logits := d.student.Forward(batch.Images, true)
	hard := d.hardLoss.Forward(logits, batch.Labels)
	soft := d.softLoss.Forward(softTargets, logits)
	loss := d.backend.Add(
		d.backend.MulScalar(hard, d.hp.Alpha),
		d.backend.MulScalar(soft, 1-d.hp.Alpha),
	)

	if err := applyGradients(d.backend, loss, trainable, d.optimizer, snapshot); err != nil {
		return StepResult{}, err
	}

	return d.metrics.update(batch.Labels, logits, StepResult{
		Loss:             float64(loss.Item()),
		StudentLoss:      float64(hard.Item()),
		DistillationLoss: float64(soft.Item()),
	}), nil
}

// EvalStep scores the student alone in inference mode.
func (d *Distiller) EvalStep(batch dataset.Batch) (StepResult, error) {
	return evalStep(d.student, d.backend, d.hardLoss, &d.metrics, batch)
}

// ResetMetrics clears the running metrics.
func (d *Distiller) ResetMetrics() {
	d.metrics.reset()
}

// Summary returns the mean losses and accuracy since the last reset.
func (d *Distiller) Summary() StepResult {
	return d.metrics.summary()
}

// Model returns the student.
func (d *Distiller) Model() models.Model {
	return d.student
}

// Hyperparameters returns T and alpha.
func (d *Distiller) Hyperparameters() Hyperparameters {
	return d.hp
}

// evalStep computes the hard-label loss of m on batch without recording.
func evalStep(m models.Model, ad autodiff.BackwardCapable, ce *nn.CrossEntropyLoss, rm *runningMetrics, batch dataset.Batch) (StepResult, error) {
	if err := validateBatch(m, batch); err != nil {
		return StepResult{}, err
	}
	var logits, loss *tensor.Tensor
	ad.NoGrad(func() {
		logits = m.Forward(batch.Images, false)
		loss = ce.Forward(logits, batch.Labels)
	})
	if !loss.IsFinite() {
		return StepResult{}, &nn.NumericalError{Stage: "loss", Details: "evaluation loss is not finite"}
	}
	value := float64(loss.Item())
	return rm.update(batch.Labels, logits, StepResult{Loss: value, StudentLoss: value}), nil
}
