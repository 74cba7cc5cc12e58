package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Phase labels.
const (
	PhaseTrain      = "train"
	PhaseValidation = "validation"
)

// Recorder receives training progress.
type Recorder interface {
	// Step counts one optimizer update (or evaluation batch) for model.
	Step(model, phase string)
	// Epoch publishes the summary of a finished epoch.
	Epoch(model, phase string, epoch int, loss, accuracy float64)
}

// Prometheus exports training progress as Prometheus metrics.
type Prometheus struct {
	Steps    *prometheus.CounterVec
	Loss     *prometheus.GaugeVec
	Accuracy *prometheus.GaugeVec
	Epochs   *prometheus.GaugeVec
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	labels := []string{"model", "phase"}
	p := &Prometheus{
		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "distill",
				Name:      "steps_total",
				Help:      "Training or evaluation steps processed.",
			}, labels),
		Loss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "distill",
				Name:      "epoch_loss",
				Help:      "Mean loss of the last finished epoch.",
			}, labels),
		Accuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "distill",
				Name:      "epoch_accuracy",
				Help:      "Categorical accuracy of the last finished epoch.",
			}, labels),
		Epochs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "distill",
				Name:      "epoch",
				Help:      "Index of the last finished epoch.",
			}, labels),
	}
	for _, c := range []prometheus.Collector{p.Steps, p.Loss, p.Accuracy, p.Epochs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Step implements Recorder.
func (p *Prometheus) Step(model, phase string) {
	p.Steps.WithLabelValues(model, phase).Inc()
}

// Epoch implements Recorder.
func (p *Prometheus) Epoch(model, phase string, epoch int, loss, accuracy float64) {
	p.Loss.WithLabelValues(model, phase).Set(loss)
	p.Accuracy.WithLabelValues(model, phase).Set(accuracy)
	p.Epochs.WithLabelValues(model, phase).Set(float64(epoch))
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Step(string, string) {}
func (discard) Epoch(string, string, int, float64, float64) {}
