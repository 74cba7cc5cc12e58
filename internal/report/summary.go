package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ModelSummary describes one evaluated model.
type ModelSummary struct {
	Name         string
	Trainable    int
	NonTrainable int
	Accuracy     float64
}

// Total returns the number of stored parameters.
func (m ModelSummary) Total() int {
	return m.Trainable + m.NonTrainable
}

// Run is everything a finished distillation run reports.
type Run struct {
	ID         string
	Finished   time.Time
	Models     []ModelSummary // Reference model first, typically the teacher
	Evaluation Classification // Per-class scores of the distilled model
	Evaluated  string         // Name of the model Evaluation belongs to
}

// Compression returns the parameter ratio of the first model to m.
func (r Run) Compression(m ModelSummary) float64 {
	if len(r.Models) == 0 || m.Total() == 0 {
		return 0
	}
	return float64(r.Models[0].Total()) / float64(m.Total())
}

// RenderModels writes the parameter-count table.
func (r Run) RenderModels(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"model", "trainable", "non-trainable", "total", "compression", "accuracy"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, m := range r.Models {
		table.Append([]string{
			m.Name,
			strconv.Itoa(m.Trainable),
			strconv.Itoa(m.NonTrainable),
			strconv.Itoa(m.Total()),
			fmt.Sprintf("%.2fx", r.Compression(m)),
			score(m.Accuracy),
		})
	}
	table.Render()
}

// Write renders the full run report.
func (r Run) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s (%s)\n\n", r.ID, r.Finished.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	r.RenderModels(w)
	if r.Evaluated != "" {
		if _, err := fmt.Fprintf(w, "\n%s classification report\n", r.Evaluated); err != nil {
			return err
		}
	}
	r.Evaluation.Render(w)
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	r.Evaluation.RenderConfusion(w)
	return nil
}
