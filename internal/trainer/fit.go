package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/metrics"
)

// FitConfig controls the epoch loop.
type FitConfig struct {
	Name      string           // Model label for logs and metrics (e.g., "teacher")
	Epochs    int              // Number of passes over the training data
	BatchSize int              // Samples per step
	Recorder  metrics.Recorder // Progress sink; nil means metrics.Discard
}

// EpochResult summarizes one epoch.
type EpochResult struct {
	Epoch      int
	Train      StepResult
	Validation *StepResult // nil without a validation source
	Duration   time.Duration
}

// History is the per-epoch record of a Fit call.
type History struct {
	Epochs []EpochResult
}

// Last returns the final epoch, or false if no epoch completed.
func (h History) Last() (EpochResult, bool) {
	if len(h.Epochs) == 0 {
		return EpochResult{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// Fit trains s for cfg.Epochs passes over train, evaluating on validation
// after every epoch when it is non-nil.
//
// ctx is checked between batches. On cancellation Fit returns the epochs
// completed so far together with the context error.
func Fit(ctx context.Context, s Stepper, train, validation dataset.Source, cfg FitConfig) (History, error) {
	if cfg.Epochs < 0 {
		return History{}, fmt.Errorf("fit %s: negative epoch count %d", cfg.Name, cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return History{}, fmt.Errorf("fit %s: batch size must be positive, got %d", cfg.Name, cfg.BatchSize)
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = metrics.Discard
	}

	var history History
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()

		s.ResetMetrics()
		it := train.Iterator(cfg.BatchSize)
		step := 0
		for it.Next() {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			step++
			if _, err := s.TrainStep(it.Batch()); err != nil {
				return history, fmt.Errorf("%s epoch %d step %d: %w", cfg.Name, epoch, step, err)
			}
			rec.Step(cfg.Name, metrics.PhaseTrain)
		}
		result := EpochResult{Epoch: epoch, Train: s.Summary()}
		rec.Epoch(cfg.Name, metrics.PhaseTrain, epoch, result.Train.Loss, result.Train.Accuracy)

		if validation != nil {
			val, err := Evaluate(ctx, s, validation, cfg.BatchSize)
			if err != nil {
				return history, fmt.Errorf("%s epoch %d validation: %w", cfg.Name, epoch, err)
			}
			result.Validation = &val
			rec.Epoch(cfg.Name, metrics.PhaseValidation, epoch, val.Loss, val.Accuracy)
		}
		result.Duration = time.Since(start)
		history.Epochs = append(history.Epochs, result)

		event := log.Info().
			Str("model", cfg.Name).
			Int("epoch", epoch).
			Int("steps", step).
			Float64("loss", result.Train.Loss).
			Float64("accuracy", result.Train.Accuracy).
			Dur("duration", result.Duration)
		if result.Train.DistillationLoss != 0 {
			event = event.
				Float64("student_loss", result.Train.StudentLoss).
				Float64("distillation_loss", result.Train.DistillationLoss)
		}
		if result.Validation != nil {
			event = event.
				Float64("val_loss", result.Validation.Loss).
				Float64("val_accuracy", result.Validation.Accuracy)
		}
		event.Msg("epoch finished")
	}
	return history, nil
}

// Evaluate runs EvalStep over every batch of src and returns the summary.
// The running metrics of s are reset first.
func Evaluate(ctx context.Context, s Stepper, src dataset.Source, batchSize int) (StepResult, error) {
	s.ResetMetrics()
	it := src.Iterator(batchSize)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		if _, err := s.EvalStep(it.Batch()); err != nil {
			return StepResult{}, err
		}
	}
	return s.Summary(), nil
}
