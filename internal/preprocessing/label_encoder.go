package preprocessing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opfromthestart/loan-mining/internal/value"
)

var ErrUnknownLabel = errors.New("unknown target label")

// TargetEncoder maps textual outcome labels onto the 0/1 targets the
// predictor averages. Labels are matched case-insensitively after trimming.
type TargetEncoder struct {
	ClassToInt map[string]int
	IntToClass map[int]string
}

// NewTargetEncoder builds an encoder where positive maps to 1 and negative to
// 0. An empty negative accepts every other non-empty label as 0.
func NewTargetEncoder(positive, negative string) (*TargetEncoder, error) {
	positive = normalizeLabel(positive)
	negative = normalizeLabel(negative)
	if positive == "" {
		return nil, fmt.Errorf("%w: positive label is empty", ErrUnknownLabel)
	}
	if positive == negative {
		return nil, fmt.Errorf("positive and negative labels are both %q", positive)
	}
	le := &TargetEncoder{
		ClassToInt: map[string]int{positive: 1},
		IntToClass: map[int]string{1: positive},
	}
	if negative != "" {
		le.ClassToInt[negative] = 0
		le.IntToClass[0] = negative
	}
	return le, nil
}

// Encode converts one raw target cell. Empty cells stay Missing so they
// surface as non-numeric targets when selected as neighbors.
func (le *TargetEncoder) Encode(raw string) (value.Value, error) {
	label := normalizeLabel(raw)
	if label == "" {
		return value.Missing(), nil
	}
	if v, ok := le.ClassToInt[label]; ok {
		return value.Number(float64(v)), nil
	}
	if _, strict := le.IntToClass[0]; strict {
		return value.Value{}, fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
	}
	return value.Number(0), nil
}

func (le *TargetEncoder) Transform(labels []string) ([]value.Value, error) {
	result := make([]value.Value, len(labels))
	for i, label := range labels {
		v, err := le.Encode(label)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		result[i] = v
	}
	return result, nil
}

// InverseTransform renders a 0/1 class back to its label; other classes are
// reported as unknown.
func (le *TargetEncoder) InverseTransform(class int) (string, error) {
	if label, ok := le.IntToClass[class]; ok {
		return label, nil
	}
	if class == 0 {
		return "other", nil
	}
	return "", fmt.Errorf("unknown encoding: %d", class)
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
