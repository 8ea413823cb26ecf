// Package association scores how strongly each predictor column moves with a
// binary target. Numeric columns use the Pearson correlation, categorical
// columns a normalized chi-square statistic; both end on the same
// non-negative scale so the scores can weight a single distance metric.
package association

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/opfromthestart/loan-mining/internal/value"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrCategoryCountMismatch = errors.New("contingency table category count does not match column type")
	ErrTargetLength          = errors.New("target count does not match row count")
)

// Weights holds one non-negative association score per predictor column.
type Weights []float64

// Rank returns the column indices ordered by descending weight. Equal weights
// keep their column order.
func (w Weights) Rank() []int {
	order := make([]int, len(w))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case w[a] > w[b]:
			return -1
		case w[a] < w[b]:
			return 1
		}
		return 0
	})
	return order
}

// Engine computes Weights for a population.
type Engine struct {
	// Workers bounds how many columns are scored concurrently; <= 1 scores
	// columns sequentially.
	Workers int
	Logger  *slog.Logger
}

func NewEngine(workers int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Workers: workers, Logger: logger}
}

type targetStats struct {
	values []float64
	mean   float64
	sd     float64
	yes    float64
}

func newTargetStats(targets []value.Value) (*targetStats, error) {
	vals, err := value.TargetFloats(targets)
	if err != nil {
		return nil, err
	}
	ts := &targetStats{values: vals, mean: stat.Mean(vals, nil)}
	ts.sd = math.Sqrt(ts.mean * (1 - ts.mean))
	for _, t := range vals {
		if t == 1 {
			ts.yes++
		}
	}
	return ts, nil
}

// Compute scores every column of rows against targets. rows and targets must
// be the same population the schema was inferred from.
func (e *Engine) Compute(ctx context.Context, targets []value.Value, rows []value.Record, schema *preprocessing.Schema) (Weights, error) {
	if len(targets) != len(rows) {
		return nil, fmt.Errorf("%w: %d targets, %d rows", ErrTargetLength, len(targets), len(rows))
	}
	if len(rows) == 0 {
		return nil, preprocessing.ErrEmptyPopulation
	}
	ts, err := newTargetStats(targets)
	if err != nil {
		return nil, err
	}

	weights := make(Weights, schema.Width())
	g, ctx := errgroup.WithContext(ctx)
	if e.Workers > 1 {
		g.SetLimit(e.Workers)
	} else {
		g.SetLimit(1)
	}
	for j := range schema.Columns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, err := e.column(ts, rows, schema, j)
			if err != nil {
				return err
			}
			weights[j] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.Logger.Info("computed association weights",
		"columns", len(weights),
		"target_rate", ts.mean,
	)
	return weights, nil
}

func (e *Engine) column(ts *targetStats, rows []value.Record, schema *preprocessing.Schema, j int) (float64, error) {
	col := schema.Columns[j]
	var (
		w   float64
		err error
	)
	if col.Kind == preprocessing.Numeric {
		w, err = numericWeight(ts, rows, col, j)
	} else {
		w, err = categoricalWeight(ts, rows, col, j)
	}
	if err != nil {
		var colErr *value.ColumnError
		if errors.As(err, &colErr) {
			return 0, colErr.WithName(schema.Name(j))
		}
		return 0, err
	}
	return finite(w), nil
}

// numericWeight is |r| between the column, with missing values imputed to the
// column mean, and the target.
func numericWeight(ts *targetStats, rows []value.Record, col preprocessing.ColumnType, j int) (float64, error) {
	if col.SD == 0 || ts.sd == 0 {
		return 0, nil
	}
	var xy float64
	for i, row := range rows {
		x := col.Mean
		switch v := row[j]; v.Kind() {
		case value.KindNumber:
			x, _ = v.Float()
		case value.KindCategory:
			return 0, &value.ColumnError{Op: "associate", Column: j, Row: i, Err: preprocessing.ErrMixedColumnType}
		case value.KindMissing:
		}
		xy += (ts.values[i] - ts.mean) * (x - col.Mean)
	}
	xy /= float64(len(rows))
	r := xy / (col.SD * ts.sd)
	return math.Sqrt(r * r), nil
}

type bucket struct {
	label   string
	missing bool
	count   [2]float64
}

// categoricalWeight is the square root of Cramér's V over the 2×n table of
// target against category, with missing values as their own category.
func categoricalWeight(ts *targetStats, rows []value.Record, col preprocessing.ColumnType, j int) (float64, error) {
	index := make(map[string]*bucket, col.Distinct)
	var missing *bucket
	for i, row := range rows {
		var b *bucket
		switch v := row[j]; v.Kind() {
		case value.KindCategory:
			label, _ := v.Label()
			b = index[label]
			if b == nil {
				b = &bucket{label: label}
				index[label] = b
			}
		case value.KindMissing:
			if missing == nil {
				missing = &bucket{missing: true}
			}
			b = missing
		case value.KindNumber:
			return 0, &value.ColumnError{Op: "associate", Column: j, Row: i, Err: preprocessing.ErrMixedColumnType}
		}
		if ts.values[i] == 1 {
			b.count[1]++
		} else {
			b.count[0]++
		}
	}

	if len(index) != col.Distinct {
		return 0, value.NewColumnError("associate", j,
			fmt.Errorf("%w: observed %d, declared %d", ErrCategoryCountMismatch, len(index), col.Distinct))
	}

	buckets := make([]*bucket, 0, len(index)+1)
	for _, label := range col.Categories {
		b, ok := index[label]
		if !ok {
			return 0, value.NewColumnError("associate", j,
				fmt.Errorf("%w: category %q never observed", ErrCategoryCountMismatch, label))
		}
		buckets = append(buckets, b)
	}
	if missing != nil {
		buckets = append(buckets, missing)
	}

	n := len(buckets)
	if n < 2 {
		return 0, nil
	}

	total := float64(len(rows))
	rate := [2]float64{(total - ts.yes) / total, ts.yes / total}
	obs := make([]float64, 0, 2*n)
	exp := make([]float64, 0, 2*n)
	for _, b := range buckets {
		catTotal := b.count[0] + b.count[1]
		for t := 0; t < 2; t++ {
			expected := catTotal * rate[t]
			if expected == 0 {
				continue
			}
			obs = append(obs, b.count[t])
			exp = append(exp, expected)
		}
	}
	if len(exp) == 0 {
		return 0, nil
	}

	chi := stat.ChiSquare(obs, exp)
	return math.Sqrt(math.Sqrt(chi / total / float64(n-1))), nil
}

func finite(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}
