package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/distill/internal/tensor"
)

// Error categories. The typed errors below unwrap to these, so callers can
// match a category with errors.Is and inspect details with errors.As.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrNumerical     = errors.New("numerical error")
)

// ConfigurationError reports an invalid hyperparameter or incompatible
// component wiring, raised at construction time.
type ConfigurationError struct {
	Field   string // Offending setting (e.g., "reduction_ratio")
	Value   any    // Value that was rejected
	Details string // Why the value is invalid
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %s", e.Field, e.Value, e.Details)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ShapeMismatchError reports a tensor whose shape is incompatible with the
// model it is fed to.
type ShapeMismatchError struct {
	Tensor   string       // Which input was rejected (e.g., "images")
	Expected tensor.Shape // Expected shape; -1 marks a free dimension
	Got      tensor.Shape
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s: expected %v, got %v", e.Tensor, e.Expected, e.Got)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// NumericalError reports a non-finite loss or gradient during a training step.
type NumericalError struct {
	Stage   string // "loss" or "gradient"
	Details string
}

// Error implements the error interface.
func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error: non-finite %s: %s", e.Stage, e.Details)
}

// Unwrap returns ErrNumerical.
func (e *NumericalError) Unwrap() error {
	return ErrNumerical
}

// CheckShape returns a ShapeMismatchError unless got matches expected.
// A negative expected dimension matches any size.
func CheckShape(name string, expected, got tensor.Shape) error {
	if len(expected) != len(got) {
		return &ShapeMismatchError{Tensor: name, Expected: expected, Got: got}
	}
	for i, d := range expected {
		if d >= 0 && got[i] != d {
			return &ShapeMismatchError{Tensor: name, Expected: expected, Got: got}
		}
	}
	return nil
}
