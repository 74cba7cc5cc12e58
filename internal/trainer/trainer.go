// Package trainer runs training and evaluation steps for the classifiers in
// package models: plain supervised training for the teacher and
// knowledge distillation for the student.
//
// A step is atomic. When it fails, with a shape, numerical or optimizer
// error, no parameter or batch-norm statistic of the trained model has
// changed.
package trainer

import (
	"fmt"

	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/metrics"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/optim"
	"github.com/born-ml/distill/internal/tensor"
)

// StepResult reports the losses of one step and the running accuracy since
// the last ResetMetrics.
type StepResult struct {
	Loss             float64 // Objective that was minimized
	StudentLoss      float64 // Cross-entropy against the hard labels
	DistillationLoss float64 // KL divergence against the teacher; zero for supervised steps
	Accuracy         float64 // Running categorical accuracy
}

// Stepper trains one model batch by batch.
type Stepper interface {
	// TrainStep runs forward and backward passes and applies one optimizer update.
	TrainStep(batch dataset.Batch) (StepResult, error)
	// EvalStep runs the model in inference mode and updates the metrics.
	EvalStep(batch dataset.Batch) (StepResult, error)
	// ResetMetrics clears the running metrics, typically at epoch boundaries.
	ResetMetrics()
	// Summary returns the sample-weighted mean losses and the accuracy
	// since the last ResetMetrics.
	Summary() StepResult
	// Model returns the model being trained.
	Model() models.Model
}

// runningMetrics tracks losses and accuracy across steps.
type runningMetrics struct {
	accuracy    metrics.CategoricalAccuracy
	loss        metrics.Mean
	studentLoss metrics.Mean
	distillLoss metrics.Mean
}

func (m *runningMetrics) update(labels, logits *tensor.Tensor, r StepResult) StepResult {
	n := labels.Shape()[0]
	m.accuracy.Update(labels, logits)
	m.loss.Update(r.Loss, n)
	m.studentLoss.Update(r.StudentLoss, n)
	m.distillLoss.Update(r.DistillationLoss, n)
	r.Accuracy = m.accuracy.Result()
	return r
}

// summary returns the sample-weighted means since the last reset.
func (m *runningMetrics) summary() StepResult {
	return StepResult{
		Loss:             m.loss.Result(),
		StudentLoss:      m.studentLoss.Result(),
		DistillationLoss: m.distillLoss.Result(),
		Accuracy:         m.accuracy.Result(),
	}
}

func (m *runningMetrics) reset() {
	m.accuracy.Reset()
	m.loss.Reset()
	m.studentLoss.Reset()
	m.distillLoss.Reset()
}

// autodiffBackend returns the tape-recording backend of m.
func autodiffBackend(m models.Model, role string) (autodiff.BackwardCapable, error) {
	ad, ok := m.Backend().(autodiff.BackwardCapable)
	if !ok {
		return nil, &nn.ConfigurationError{
			Field:   role + ".backend",
			Value:   m.Backend().Name(),
			Details: "training needs an autodiff backend",
		}
	}
	return ad, nil
}

// validateBatch checks images against the model input and labels against
// its class count.
func validateBatch(m models.Model, batch dataset.Batch) error {
	if batch.Images == nil || batch.Labels == nil {
		return fmt.Errorf("batch: %w: images and labels are required", nn.ErrShapeMismatch)
	}
	if err := models.CheckInput(m, batch.Images); err != nil {
		return err
	}
	n := batch.Images.Shape()[0]
	if n == 0 {
		return fmt.Errorf("batch: %w: no samples", nn.ErrShapeMismatch)
	}
	return nn.CheckShape("labels", tensor.Shape{n, m.NumClasses()}, batch.Labels.Shape())
}

// applyGradients checks the loss and gradients and, when every value is
// finite, hands the gradients to the optimizer. On failure it restores the
// buffer snapshot so the step leaves no trace.
func applyGradients(
	ad autodiff.BackwardCapable,
	loss *tensor.Tensor,
	trainable []*nn.Parameter,
	opt optim.Optimizer,
	snapshot *nn.Snapshot,
) error {
	if !loss.IsFinite() {
		snapshot.Restore()
		return &nn.NumericalError{Stage: "loss", Details: fmt.Sprintf("loss is %v", loss.Item())}
	}
	grads, err := ad.Backward(loss)
	if err != nil {
		snapshot.Restore()
		return fmt.Errorf("backward: %w", err)
	}
	for _, p := range trainable {
		if g := grads.Of(p.Tensor()); g != nil && !g.IsFinite() {
			snapshot.Restore()
			return &nn.NumericalError{Stage: "gradient", Details: "parameter " + p.Name()}
		}
	}
	if err := opt.Step(grads); err != nil {
		snapshot.Restore()
		return fmt.Errorf("optimizer step: %w", err)
	}
	return nil
}
