package trainer

import (
	"github.com/born-ml/distill/internal/autodiff"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/optim"
)

// Supervised trains a model on hard labels with cross-entropy. It is used
// for the teacher and as the reference a Distiller with alpha = 1 matches.
type Supervised struct {
	model     models.Model
	optimizer optim.Optimizer
	backend   autodiff.BackwardCapable
	loss      *nn.CrossEntropyLoss
	metrics   runningMetrics
}

// NewSupervised creates a supervised trainer for model.
func NewSupervised(model models.Model, optimizer optim.Optimizer) (*Supervised, error) {
	ad, err := autodiffBackend(model, "model")
	if err != nil {
		return nil, err
	}
	return &Supervised{
		model:     model,
		optimizer: optimizer,
		backend:   ad,
		loss:      nn.NewCrossEntropyLoss(ad),
	}, nil
}

// TrainStep performs one cross-entropy update on batch.
func (s *Supervised) TrainStep(batch dataset.Batch) (StepResult, error) {
	if err := validateBatch(s.model, batch); err != nil {
		return StepResult{}, err
	}

	params := s.model.Parameters()
	trainable := nn.Trainable(params)
	snapshot := nn.TakeSnapshot(nn.Buffers(params))

	tape := s.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	logits := s.model.Forward(batch.Images, true)
	loss := s.loss.Forward(logits, batch.Labels)

	if err := applyGradients(s.backend, loss, trainable, s.optimizer, snapshot); err != nil {
		return StepResult{}, err
	}

	value := float64(loss.Item())
	return s.metrics.update(batch.Labels, logits, StepResult{Loss: value, StudentLoss: value}), nil
}

// EvalStep scores the model in inference mode.
func (s *Supervised) EvalStep(batch dataset.Batch) (StepResult, error) {
	return evalStep(s.model, s.backend, s.loss, &s.metrics, batch)
}

// ResetMetrics clears the running metrics.
func (s *Supervised) ResetMetrics() {
	s.metrics.reset()
}

// Summary returns the mean losses and accuracy since the last reset.
func (s *Supervised) Summary() StepResult {
	return s.metrics.summary()
}

// Model returns the trained model.
func (s *Supervised) Model() models.Model {
	return s.model
}
