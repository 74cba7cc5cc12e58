// Package report turns evaluation results into per-class scores and
// human-readable tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/sjwhitworth/golearn/evaluation"
)

// ClassScores holds the one-vs-rest scores of a single class.
type ClassScores struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int // Samples whose true class is this one
}

// Classification is a per-class breakdown of a classifier's predictions.
type Classification struct {
	Classes        []ClassScores
	Accuracy       float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	Total          int

	// Confusion is keyed by true class name, then predicted class name.
	Confusion evaluation.ConfusionMatrix
}

// Classify scores predicted against trueLabels. Both hold class indices
// into classNames. Scores of classes with no support or no predictions are 0.
func Classify(trueLabels, predicted []int, classNames []string) (Classification, error) {
	if len(trueLabels) != len(predicted) {
		return Classification{}, fmt.Errorf("report: %d labels but %d predictions", len(trueLabels), len(predicted))
	}
	if len(trueLabels) == 0 {
		return Classification{}, fmt.Errorf("report: no samples")
	}
	if len(classNames) == 0 {
		return Classification{}, fmt.Errorf("report: no classes")
	}

	cm := make(evaluation.ConfusionMatrix, len(classNames))
	for _, name := range classNames {
		cm[name] = make(map[string]int, len(classNames))
	}
	support := make([]int, len(classNames))
	for i, t := range trueLabels {
		p := predicted[i]
		if t < 0 || t >= len(classNames) || p < 0 || p >= len(classNames) {
			return Classification{}, fmt.Errorf("report: sample %d: class out of range (true %d, predicted %d)", i, t, p)
		}
		cm[classNames[t]][classNames[p]]++
		support[t]++
	}

	c := Classification{
		Classes:   make([]ClassScores, len(classNames)),
		Accuracy:  finite(evaluation.GetAccuracy(cm)),
		Total:     len(trueLabels),
		Confusion: cm,
	}
	for k, name := range classNames {
		s := ClassScores{
			Name:      name,
			Precision: finite(evaluation.GetPrecision(name, cm)),
			Recall:    finite(evaluation.GetRecall(name, cm)),
			F1:        finite(evaluation.GetF1Score(name, cm)),
			Support:   support[k],
		}
		c.Classes[k] = s
		c.MacroPrecision += s.Precision
		c.MacroRecall += s.Recall
		c.MacroF1 += s.F1
	}
	n := float64(len(classNames))
	c.MacroPrecision /= n
	c.MacroRecall /= n
	c.MacroF1 /= n
	return c, nil
}

// Render writes the classification table to w.
func (c Classification) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"class", "precision", "recall", "f1-score", "support"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range c.Classes {
		table.Append([]string{s.Name, score(s.Precision), score(s.Recall), score(s.F1), strconv.Itoa(s.Support)})
	}
	table.Append([]string{"macro avg", score(c.MacroPrecision), score(c.MacroRecall), score(c.MacroF1), strconv.Itoa(c.Total)})
	table.SetFooter([]string{"accuracy", "", "", score(c.Accuracy), strconv.Itoa(c.Total)})
	table.Render()
}

// RenderConfusion writes the confusion matrix with true classes as rows.
func (c Classification) RenderConfusion(w io.Writer) {
	header := make([]string, 0, len(c.Classes)+1)
	header = append(header, "true \\ predicted")
	for _, s := range c.Classes {
		header = append(header, s.Name)
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	for _, row := range c.Classes {
		line := []string{row.Name}
		for _, col := range c.Classes {
			line = append(line, strconv.Itoa(c.Confusion[row.Name][col.Name]))
		}
		table.Append(line)
	}
	table.Render()
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// finite maps the NaN of an empty denominator to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
