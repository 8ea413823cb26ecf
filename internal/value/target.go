package value

import (
	"errors"
	"fmt"
)

// ErrNonNumericTarget is returned when a target value is not a number.
var ErrNonNumericTarget = errors.New("target is not a number")

// TargetFloat extracts the number of a target value.
func TargetFloat(v Value) (float64, error) {
	n, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("%w: got %s %v", ErrNonNumericTarget, v.Kind(), v)
	}
	return n, nil
}

// TargetFloats converts a whole target column, reporting the first offending
// row.
func TargetFloats(targets []Value) ([]float64, error) {
	out := make([]float64, len(targets))
	for i, t := range targets {
		n, err := TargetFloat(t)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}
