// Package metrics accumulates training metrics and exports them to Prometheus.
package metrics

import (
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// CategoricalAccuracy tracks the fraction of samples whose predicted class
// (argmax of the scores) matches the target class.
type CategoricalAccuracy struct {
	correct int
	total   int
}

// Update adds a batch. targets are one-hot [N, K]; scores are logits or
// probabilities [N, K].
func (a *CategoricalAccuracy) Update(targets, scores *tensor.Tensor) {
	if !targets.Shape().Equal(scores.Shape()) {
		panic(fmt.Sprintf("accuracy: targets %v and scores %v differ", targets.Shape(), scores.Shape()))
	}
	want := tensor.ArgMax(targets)
	for i, got := range tensor.ArgMax(scores) {
		if got == want[i] {
			a.correct++
		}
	}
	a.total += len(want)
}

// Result returns the running accuracy, or 0 before any update.
func (a *CategoricalAccuracy) Result() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// Count returns the number of samples seen.
func (a *CategoricalAccuracy) Count() int {
	return a.total
}

// Reset clears the accumulated state.
func (a *CategoricalAccuracy) Reset() {
	a.correct, a.total = 0, 0
}

// Mean tracks a sample-weighted running mean.
type Mean struct {
	sum    float64
	weight float64
}

// Update adds value observed over n samples.
func (m *Mean) Update(value float64, n int) {
	m.sum += value * float64(n)
	m.weight += float64(n)
}

// Result returns the running mean, or 0 before any update.
func (m *Mean) Result() float64 {
	if m.weight == 0 {
		return 0
	}
	return m.sum / m.weight
}

// Reset clears the accumulated state.
func (m *Mean) Reset() {
	m.sum, m.weight = 0, 0
}
