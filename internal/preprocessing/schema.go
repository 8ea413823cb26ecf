package preprocessing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrMixedColumnType = errors.New("column holds both numbers and categories")
	ErrEmptyPopulation = errors.New("population is empty")
	ErrWidthMismatch   = errors.New("record width does not match column count")
)

type ColumnKind uint8

const (
	Numeric ColumnKind = iota
	Categorical
)

func (k ColumnKind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// ColumnType is the inferred type of one predictor column together with the
// statistics the distance metric and association engine need.
type ColumnType struct {
	Kind ColumnKind
	// Numeric columns: mean and population standard deviation over the
	// non-missing values.
	Mean float64
	SD   float64
	// Categorical columns: number of distinct non-missing labels, in
	// lexical order in Categories.
	Distinct   int
	Categories []string
	// Observed counts.
	Present    int
	HasMissing bool
}

// Degenerate reports whether the column cannot separate records: a numeric
// column with zero spread or a categorical column with no labels.
func (c ColumnType) Degenerate() bool {
	if c.Kind == Numeric {
		return c.SD == 0
	}
	return c.Distinct == 0
}

func (c ColumnType) String() string {
	if c.Kind == Numeric {
		return fmt.Sprintf("Numeric{mean: %g, sd: %g}", c.Mean, c.SD)
	}
	return fmt.Sprintf("Categorical{%d}", c.Distinct)
}

// Schema is the per-column typing of a population.
type Schema struct {
	Names   []string
	Columns []ColumnType
}

func (s *Schema) Width() int { return len(s.Columns) }

// Name returns the header of column i, or "" when headers are unknown.
func (s *Schema) Name(i int) string {
	if i < 0 || i >= len(s.Names) {
		return ""
	}
	return s.Names[i]
}

func (s *Schema) columnError(op string, i, row int, err error) error {
	return &value.ColumnError{Op: op, Column: i, Name: s.Name(i), Row: row, Err: err}
}

// Counts returns the number of numeric and categorical columns.
func (s *Schema) Counts() (numeric, categorical int) {
	for _, c := range s.Columns {
		if c.Kind == Numeric {
			numeric++
		} else {
			categorical++
		}
	}
	return numeric, categorical
}

// TypeInferer classifies population columns. Names is optional and only used
// to label errors and diagnostics.
type TypeInferer struct {
	Logger *slog.Logger
}

func NewTypeInferer(logger *slog.Logger) *TypeInferer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypeInferer{Logger: logger}
}

// Infer scans the population once per column. A column whose non-missing
// values mix numbers and categories fails with ErrMixedColumnType. A column
// holding only missing values is reported as Categorical with zero labels.
func (ti *TypeInferer) Infer(rows []value.Record, names []string) (*Schema, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyPopulation
	}

	width := len(rows[0])
	schema := &Schema{Names: names, Columns: make([]ColumnType, width)}
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d fields, expected %d", ErrWidthMismatch, i, len(row), width)
		}
	}

	nums := make([]float64, 0, len(rows))
	for j := 0; j < width; j++ {
		distinct := btree.NewBTreeG[value.Value](value.Value.Less)
		nums = nums[:0]
		firstNum, firstCat := -1, -1
		missing := false

		for i, row := range rows {
			v := row[j]
			switch v.Kind() {
			case value.KindNumber:
				n, _ := v.Float()
				nums = append(nums, n)
				if firstNum < 0 {
					firstNum = i
				}
			case value.KindCategory:
				distinct.Set(v)
				if firstCat < 0 {
					firstCat = i
				}
			case value.KindMissing:
				missing = true
			}
			if firstNum >= 0 && firstCat >= 0 {
				return nil, schema.columnError("infer", j, i, ErrMixedColumnType)
			}
		}

		col := ColumnType{HasMissing: missing}
		if len(nums) > 0 {
			col.Kind = Numeric
			col.Present = len(nums)
			col.Mean, col.SD = stat.PopMeanStdDev(nums, nil)
		} else {
			col.Kind = Categorical
			col.Distinct = distinct.Len()
			col.Categories = make([]string, 0, col.Distinct)
			distinct.Scan(func(v value.Value) bool {
				label, _ := v.Label()
				col.Categories = append(col.Categories, label)
				return true
			})
			for _, row := range rows {
				if row[j].Kind() == value.KindCategory {
					col.Present++
				}
			}
		}
		schema.Columns[j] = col
	}

	numeric, categorical := schema.Counts()
	ti.Logger.Info("identified column types",
		"columns", width,
		"numeric", numeric,
		"categorical", categorical,
		"rows", len(rows),
	)
	return schema, nil
}

// InferTypes is a convenience wrapper around a TypeInferer using the default
// logger.
func InferTypes(rows []value.Record, names []string) (*Schema, error) {
	return NewTypeInferer(nil).Infer(rows, names)
}
