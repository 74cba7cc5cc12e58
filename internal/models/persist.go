package models

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/nn"
	"github.com/born-ml/distill/internal/serialization"
	"github.com/born-ml/distill/internal/tensor"
)

// SaveOptions carries optional provenance stored alongside the weights.
type SaveOptions struct {
	RunID    string
	Metadata map[string]string
}

// Save writes the architecture and every parameter of m (buffers included)
// to path.
func Save(path string, m Model, opts SaveOptions) error {
	state, err := nn.StateDict(m)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	spec, err := json.Marshal(m.Spec())
	if err != nil {
		return fmt.Errorf("save %s: encode spec: %w", path, err)
	}
	header := serialization.Header{
		ModelType: string(m.Spec().Kind),
		RunID:     opts.RunID,
		ModelSpec: spec,
		Metadata:  opts.Metadata,
	}
	if err := serialization.WriteFile(path, state, header); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Load rebuilds the model stored at path on backend and restores its weights.
func Load(path string, backend tensor.Backend) (Model, serialization.Header, error) {
	r, err := serialization.Open(path)
	if err != nil {
		return nil, serialization.Header{}, err
	}
	defer r.Close()

	header := r.Header()
	if !r.HasModelSpec() {
		return nil, header, fmt.Errorf("load %s: file has no model spec", path)
	}
	var spec Spec
	if err := json.Unmarshal(header.ModelSpec, &spec); err != nil {
		return nil, header, fmt.Errorf("load %s: decode spec: %w", path, err)
	}

	// Weights are overwritten below, the seed only shapes throwaway values.
	m, err := Build(spec, backend, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, header, fmt.Errorf("load %s: %w", path, err)
	}
	state, err := r.StateDict()
	if err != nil {
		return nil, header, fmt.Errorf("load %s: %w", path, err)
	}
	if err := nn.LoadStateDict(m, state); err != nil {
		return nil, header, fmt.Errorf("load %s: %w", path, err)
	}
	return m, header, nil
}
