// Package diagnostics renders the fitted column statistics as text dumps:
// column types, association weights, the weight ranking and the label sets
// of categorical columns.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/opfromthestart/loan-mining/internal/association"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/shopspring/decimal"
)

const (
	ColumnTypesFile       = "column_types.txt"
	ColumnWeightsFile     = "column_weights.txt"
	WeightsRankFile       = "weights_rank.txt"
	CategoricalValuesFile = "categorical_values.txt"
)

var ErrWeightCount = errors.New("weights do not match schema width")

// Report is the read-only view of a fitted model that gets dumped.
type Report struct {
	Schema  *preprocessing.Schema
	Weights association.Weights
	Order   []int
}

func (r *Report) validate() error {
	if len(r.Weights) != r.Schema.Width() {
		return fmt.Errorf("%w: %d weights, %d columns", ErrWeightCount, len(r.Weights), r.Schema.Width())
	}
	return nil
}

func num(f float64) string {
	// decimal cannot represent these; an overflowing sd is +Inf.
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return decimal.NewFromFloat(f).Round(6).String()
}

func (r *Report) name(i int) string {
	if n := r.Schema.Name(i); n != "" {
		return n
	}
	return fmt.Sprintf("col%d", i)
}

// WriteColumnTypes writes one line per column: index, name, kind and its
// statistics.
func (r *Report) WriteColumnTypes(w io.Writer) error {
	for i, c := range r.Schema.Columns {
		var line string
		if c.Kind == preprocessing.Numeric {
			line = fmt.Sprintf("%d\t%s\tnumeric\tmean=%s\tsd=%s\tpresent=%d", i, r.name(i), num(c.Mean), num(c.SD), c.Present)
		} else {
			line = fmt.Sprintf("%d\t%s\tcategorical\tdistinct=%d\tpresent=%d", i, r.name(i), c.Distinct, c.Present)
		}
		if c.HasMissing {
			line += "\tmissing"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteWeights writes the weights in column order.
func (r *Report) WriteWeights(w io.Writer) error {
	for i, wt := range r.Weights {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", i, r.name(i), num(wt)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRank writes (index, weight, header) in check order.
func (r *Report) WriteRank(w io.Writer) error {
	order := r.Order
	if order == nil {
		order = r.Weights.Rank()
	}
	for _, i := range order {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", i, num(r.Weights[i]), r.name(i)); err != nil {
			return err
		}
	}
	return nil
}

// WriteCategories writes the label set of every categorical column.
func (r *Report) WriteCategories(w io.Writer) error {
	for i, c := range r.Schema.Columns {
		if c.Kind != preprocessing.Categorical {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t[%s]\n", i, r.name(i), strings.Join(c.Categories, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// Writer dumps reports into a directory.
type Writer struct {
	Dir      string
	Compress bool
	Logger   *slog.Logger
}

func NewWriter(dir string, compress bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Dir: dir, Compress: compress, Logger: logger}
}

// Write creates the four dump files and returns their paths. With Compress
// set each file is zstd-compressed and gets a .zst suffix.
func (dw *Writer) Write(r *Report) ([]string, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dw.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}

	dumps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ColumnTypesFile, r.WriteColumnTypes},
		{ColumnWeightsFile, r.WriteWeights},
		{WeightsRankFile, r.WriteRank},
		{CategoricalValuesFile, r.WriteCategories},
	}
	paths := make([]string, 0, len(dumps))
	for _, d := range dumps {
		path := filepath.Join(dw.Dir, d.name)
		if dw.Compress {
			path += ".zst"
		}
		if err := dw.writeFile(path, d.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	dw.Logger.Info("diagnostics written", "dir", dw.Dir, "files", len(paths), "compressed", dw.Compress)
	return paths, nil
}

func (dw *Writer) writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	if !dw.Compress {
		return write(file)
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := write(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
