package nn

import (
	"fmt"
	"sort"

	"github.com/born-ml/distill/internal/tensor"
)

// StateDict returns a map of parameter names to tensors for every parameter
// of m, trainable or not. The tensors are shared, not copied.
//
// Returns an error if two parameters share a name.
func StateDict(m Module) (map[string]*tensor.Tensor, error) {
	params := m.Parameters()
	state := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		if _, dup := state[p.Name()]; dup {
			return nil, fmt.Errorf("state dict: duplicate parameter name %q", p.Name())
		}
		state[p.Name()] = p.Tensor()
	}
	return state, nil
}

// LoadStateDict copies tensors from state into the parameters of m.
//
// Every parameter of m must be present with an identical shape; extra
// entries in state are rejected so that architecture drift is caught.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	params := m.Parameters()
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		src, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("load state dict: missing parameter %q", p.Name())
		}
		if err := CheckShape(p.Name(), p.Tensor().Shape(), src.Shape()); err != nil {
			return fmt.Errorf("load state dict: %w", err)
		}
		if err := p.Tensor().CopyFrom(src); err != nil {
			return fmt.Errorf("load state dict: %s: %w", p.Name(), err)
		}
		seen[p.Name()] = true
	}
	if len(seen) != len(state) {
		var extra []string
		for name := range state {
			if !seen[name] {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("load state dict: unexpected parameters %v", extra)
	}
	return nil
}

// ParameterCount summarizes the size of a model.
type ParameterCount struct {
	Trainable    int
	NonTrainable int
}

// Total returns the number of scalar values across all parameters.
func (c ParameterCount) Total() int {
	return c.Trainable + c.NonTrainable
}

// CountParameters counts scalar values in m, split by trainability.
func CountParameters(m Module) ParameterCount {
	var c ParameterCount
	for _, p := range m.Parameters() {
		if p.Trainable() {
			c.Trainable += p.NumElements()
		} else {
			c.NonTrainable += p.NumElements()
		}
	}
	return c
}

// Snapshot deep-copies the given parameters so they can be restored later.
type Snapshot struct {
	params []*Parameter
	data   []*tensor.Tensor
}

// TakeSnapshot copies the current values of params.
func TakeSnapshot(params []*Parameter) *Snapshot {
	s := &Snapshot{params: params, data: make([]*tensor.Tensor, len(params))}
	for i, p := range params {
		s.data[i] = p.Tensor().Clone()
	}
	return s
}

// Restore writes the captured values back into the parameters.
func (s *Snapshot) Restore() {
	for i, p := range s.params {
		copy(p.Tensor().Data(), s.data[i].Data())
	}
}
