package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	names := []string{"cat", "dog", "fox"}
	c, err := Classify([]int{0, 0, 1, 1, 2, 2}, []int{0, 1, 1, 1, 2, 0}, names)
	require.NoError(t, err)

	require.Len(t, c.Classes, 3)
	assert.Equal(t, 6, c.Total)
	assert.InDelta(t, 4.0/6, c.Accuracy, 1e-9)

	tests := []struct {
		name              string
		precision, recall float64
		f1                float64
	}{
		{"cat", 0.5, 0.5, 0.5},
		{"dog", 2.0 / 3, 1, 0.8},
		{"fox", 1, 0.5, 2.0 / 3},
	}
	for i, tt := range tests {
		s := c.Classes[i]
		assert.Equal(t, tt.name, s.Name)
		assert.InDelta(t, tt.precision, s.Precision, 1e-9, tt.name)
		assert.InDelta(t, tt.recall, s.Recall, 1e-9, tt.name)
		assert.InDelta(t, tt.f1, s.F1, 1e-9, tt.name)
		assert.Equal(t, 2, s.Support)
	}

	assert.InDelta(t, (0.5+2.0/3+1)/3, c.MacroPrecision, 1e-9)
	assert.InDelta(t, 2.0/3, c.MacroRecall, 1e-9)
	assert.InDelta(t, (0.5+0.8+2.0/3)/3, c.MacroF1, 1e-9)
	assert.Equal(t, 1, c.Confusion["cat"]["dog"])
	assert.Equal(t, 1, c.Confusion["fox"]["cat"])
}

func TestClassify_EmptyClassScoresZero(t *testing.T) {
	c, err := Classify([]int{0, 1}, []int{0, 1}, []string{"a", "b", "c"})
	require.NoError(t, err)

	empty := c.Classes[2]
	assert.Zero(t, empty.Precision)
	assert.Zero(t, empty.Recall)
	assert.Zero(t, empty.F1)
	assert.Zero(t, empty.Support)
	assert.Equal(t, 1.0, c.Accuracy)
}

func TestClassify_Errors(t *testing.T) {
	_, err := Classify([]int{0}, []int{0, 1}, []string{"a", "b"})
	assert.Error(t, err)
	_, err = Classify(nil, nil, []string{"a", "b"})
	assert.Error(t, err)
	_, err = Classify([]int{0}, []int{2}, []string{"a", "b"})
	assert.Error(t, err)
	_, err = Classify([]int{0}, []int{0}, nil)
	assert.Error(t, err)
}

func TestRun_Write(t *testing.T) {
	eval, err := Classify([]int{0, 1, 1}, []int{0, 1, 0}, []string{"left", "right"})
	require.NoError(t, err)

	run := Run{
		ID:       "run-1",
		Finished: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Models: []ModelSummary{
			{Name: "teacher", Trainable: 900, NonTrainable: 100, Accuracy: 0.9},
			{Name: "student", Trainable: 240, NonTrainable: 10, Accuracy: 0.75},
		},
		Evaluation: eval,
		Evaluated:  "student",
	}
	assert.InDelta(t, 4.0, run.Compression(run.Models[1]), 1e-9)
	assert.InDelta(t, 1.0, run.Compression(run.Models[0]), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, run.Write(&buf))
	out := buf.String()
	for _, want := range []string{"run-1", "2024-01-02T03:04:05Z", "teacher", "student", "1000", "4.00x", "left", "right", "0.6667", "macro avg"} {
		assert.Contains(t, out, want)
	}
}

func TestCompression_Empty(t *testing.T) {
	assert.Zero(t, Run{}.Compression(ModelSummary{Trainable: 1}))
	assert.Zero(t, Run{Models: []ModelSummary{{Trainable: 1}}}.Compression(ModelSummary{}))
}
