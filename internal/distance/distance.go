// Package distance implements the weighted, early-terminating record distance
// used to rank population records against a query.
package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/opfromthestart/loan-mining/internal/value"
)

var (
	// ErrTypeMismatch is returned when one record holds a number and the other
	// a category in the same column.
	ErrTypeMismatch = errors.New("number compared with category")
	// ErrWeightCount is returned when weights and column types disagree in
	// length.
	ErrWeightCount = errors.New("weight count does not match column count")
	// ErrRecordWidth is returned when a record is narrower than the schema.
	ErrRecordWidth = errors.New("record width does not match column count")
	// ErrBadOrder is returned when a check order names a column that does
	// not exist.
	ErrBadOrder = errors.New("check order references unknown column")
)

// NoThreshold disables early termination.
var NoThreshold = math.Inf(1)

// Metric computes weighted distances between records of one schema. It holds
// no mutable state and is safe for concurrent use.
type Metric struct {
	schema  *preprocessing.Schema
	weights []float64
}

func NewMetric(schema *preprocessing.Schema, weights []float64) (*Metric, error) {
	if len(weights) != schema.Width() {
		return nil, fmt.Errorf("%w: %d weights, %d columns", ErrWeightCount, len(weights), schema.Width())
	}
	return &Metric{schema: schema, weights: weights}, nil
}

// Measurement is the outcome of one distance computation.
type Measurement struct {
	// Distance is the accumulated weighted distance. When Pruned is set it
	// is only a lower bound on the full distance, but already exceeds the
	// threshold.
	Distance float64
	Pruned   bool
	Checked  int
}

// ValidateOrder checks that order is a list of valid column indices.
func (m *Metric) ValidateOrder(order []int) error {
	for _, c := range order {
		if c < 0 || c >= m.schema.Width() {
			return fmt.Errorf("%w: %d", ErrBadOrder, c)
		}
	}
	return nil
}

// Measure walks the columns of a and b in order (natural column order when
// order is nil), inspecting at most maxCheck columns (all when maxCheck <= 0).
// It stops as soon as the running sum exceeds threshold.
func (m *Metric) Measure(a, b value.Record, threshold float64, order []int, maxCheck int) (Measurement, error) {
	width := m.schema.Width()
	if len(a) < width || len(b) < width {
		return Measurement{}, fmt.Errorf("%w: %d and %d fields, %d columns", ErrRecordWidth, len(a), len(b), width)
	}

	n := width
	if order != nil {
		n = len(order)
	}
	if maxCheck > 0 && maxCheck < n {
		n = maxCheck
	}

	var dist float64
	for i := 0; i < n; i++ {
		c := i
		if order != nil {
			c = order[i]
		}
		contrib, err := m.contribution(a[c], b[c], c)
		if err != nil {
			return Measurement{Distance: dist, Checked: i}, err
		}
		dist += contrib * m.weights[c]
		if dist > threshold {
			return Measurement{Distance: dist, Pruned: true, Checked: i + 1}, nil
		}
	}
	return Measurement{Distance: dist, Checked: n}, nil
}

// Distance is Measure without the bookkeeping.
func (m *Metric) Distance(a, b value.Record, threshold float64, order []int, maxCheck int) (float64, error) {
	res, err := m.Measure(a, b, threshold, order, maxCheck)
	return res.Distance, err
}

// contribution is the unweighted distance of one column. Missing on either
// side contributes nothing.
func (m *Metric) contribution(av, bv value.Value, c int) (float64, error) {
	switch av.Kind() {
	case value.KindMissing:
		return 0, nil
	case value.KindNumber:
		switch bv.Kind() {
		case value.KindMissing:
			return 0, nil
		case value.KindNumber:
			sd := m.schema.Columns[c].SD
			if sd == 0 {
				return 0, nil
			}
			an, _ := av.Float()
			bn, _ := bv.Float()
			return math.Abs(an-bn) / sd, nil
		case value.KindCategory:
			return 0, m.mismatch(c)
		}
	case value.KindCategory:
		switch bv.Kind() {
		case value.KindMissing:
			return 0, nil
		case value.KindCategory:
			al, _ := av.Label()
			bl, _ := bv.Label()
			if al == bl {
				return 0, nil
			}
			return 1, nil
		case value.KindNumber:
			return 0, m.mismatch(c)
		}
	}
	return 0, nil
}

func (m *Metric) mismatch(c int) error {
	return &value.ColumnError{Op: "distance", Column: c, Name: m.schema.Name(c), Row: -1, Err: ErrTypeMismatch}
}
