package data

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/opfromthestart/loan-mining/internal/value"
)

var (
	ErrUnknownColumn = errors.New("column not found in header")
	ErrNoPredictors  = errors.New("no predictor columns left")
)

// Dataset is the parsed table: predictor records with parallel targets.
// Names are the predictor column names, positionally aligned with each
// record. IDs holds the joined id column values of every row, if any.
type Dataset struct {
	Names   []string
	Records []value.Record
	Targets []value.Value
	IDs     []string
}

func (ds *Dataset) Len() int { return len(ds.Records) }

// Width returns the number of predictor columns.
func (ds *Dataset) Width() int { return len(ds.Names) }

// Index returns the predictor column position of name, or -1.
func (ds *Dataset) Index(name string) int {
	return slices.Index(ds.Names, name)
}

// Slice returns the rows [lo, hi) sharing the underlying storage.
func (ds *Dataset) Slice(lo, hi int) *Dataset {
	out := &Dataset{
		Names:   ds.Names,
		Records: ds.Records[lo:hi],
		Targets: ds.Targets[lo:hi],
	}
	if ds.IDs != nil {
		out.IDs = ds.IDs[lo:hi]
	}
	return out
}

type DatasetOptions struct {
	TargetColumn string
	// IDColumns are dropped from the predictors and kept as row labels.
	IDColumns []string
	// Encoder, when set, maps raw target labels to 0/1 instead of parsing
	// them as numbers.
	Encoder *preprocessing.TargetEncoder
}

// BuildDataset splits table columns into target, id and predictor columns
// and parses every predictor cell.
func BuildDataset(table *Table, opts DatasetOptions) (*Dataset, error) {
	target := table.Column(opts.TargetColumn)
	if target < 0 {
		return nil, fmt.Errorf("%w: target %q", ErrUnknownColumn, opts.TargetColumn)
	}

	skip := map[int]bool{target: true}
	var idCols []int
	for _, name := range opts.IDColumns {
		i := table.Column(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: id %q", ErrUnknownColumn, name)
		}
		skip[i] = true
		idCols = append(idCols, i)
	}

	var predictors []int
	ds := &Dataset{}
	for i, name := range table.Header {
		if !skip[i] {
			predictors = append(predictors, i)
			ds.Names = append(ds.Names, name)
		}
	}
	if len(predictors) == 0 {
		return nil, ErrNoPredictors
	}

	ds.Records = make([]value.Record, len(table.Rows))
	ds.Targets = make([]value.Value, len(table.Rows))
	if len(idCols) > 0 {
		ds.IDs = make([]string, len(table.Rows))
	}
	for r, row := range table.Rows {
		rec := make(value.Record, len(predictors))
		for j, c := range predictors {
			rec[j] = value.Parse(row[c])
		}
		ds.Records[r] = rec

		if opts.Encoder != nil {
			t, err := opts.Encoder.Encode(row[target])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			ds.Targets[r] = t
		} else {
			ds.Targets[r] = value.Parse(row[target])
		}

		if ds.IDs != nil {
			ds.IDs[r] = joinID(row, idCols)
		}
	}
	return ds, nil
}

func joinID(row []string, cols []int) string {
	parts := make([]string, len(cols))
	for k, c := range cols {
		parts[k] = row[c]
	}
	return strings.Join(parts, "/")
}

// QueryBuilder turns named field answers into partial records for a dataset
// layout. Unnamed columns are Missing.
type QueryBuilder struct {
	names []string
	index map[string]int
}

func NewQueryBuilder(names []string) *QueryBuilder {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	return &QueryBuilder{names: names, index: index}
}

// Build parses each answer with value.ParseInput. Unknown field names are an
// error.
func (qb *QueryBuilder) Build(fields map[string]string) (value.Record, error) {
	rec := value.MissingRecord(len(qb.names))
	for name, raw := range fields {
		i, ok := qb.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		rec[i] = value.ParseInput(raw)
	}
	return rec, nil
}

// Has reports whether name is a predictor column.
func (qb *QueryBuilder) Has(name string) bool {
	_, ok := qb.index[name]
	return ok
}
