package commander

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/opfromthestart/loan-mining/internal/config"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/shopspring/decimal"
)

var ErrNoFields = errors.New("no prompt fields configured")

// Commander runs the interactive borrower prompt against a fitted predictor.
type Commander struct {
	predictor models.Predictor
	queries   *data.QueryBuilder
	fields    []config.Field

	in  *bufio.Scanner
	out io.Writer

	// status receives batch progress lines so out can carry pure CSV.
	status io.Writer

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
}

// NewCommander checks that every field names a predictor column. names are
// the predictor columns in record order.
func NewCommander(predictor models.Predictor, names []string, fields []config.Field, in io.Reader, out io.Writer) (*Commander, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	if len(names) != predictor.Width() {
		return nil, fmt.Errorf("%d column names for a predictor of width %d", len(names), predictor.Width())
	}
	queries := data.NewQueryBuilder(names)
	for _, f := range fields {
		if !queries.Has(f.Column) {
			return nil, fmt.Errorf("prompt field: %w: %q", data.ErrUnknownColumn, f.Column)
		}
	}
	return &Commander{
		predictor: predictor,
		queries:   queries,
		fields:    fields,
		in:        bufio.NewScanner(in),
		out:       out,
		status:    out,
		green:     color.New(color.FgGreen).SprintFunc(),
		red:       color.New(color.FgRed).SprintFunc(),
		yellow:    color.New(color.FgYellow).SprintFunc(),
		cyan:      color.New(color.FgCyan).SprintFunc(),
	}, nil
}

// Start prompts for borrowers until the input ends or the user types quit.
// Only a failure to read input is returned; scoring errors are printed and
// the loop continues.
func (c *Commander) Start(ctx context.Context) error {
	c.printWelcome()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprintln(c.out, c.cyan("\nInput borrower data"))
		answers, ok := c.promptRecord()
		if !ok {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		c.score(ctx, answers)
	}
}

func (c *Commander) printWelcome() {
	fmt.Fprintln(c.out, c.cyan("╔══════════════════════════════════════════╗"))
	fmt.Fprintln(c.out, c.cyan("║        Loan Default Risk Predictor       ║"))
	fmt.Fprintln(c.out, c.cyan("╚══════════════════════════════════════════╝"))
	fmt.Fprintln(c.out, "Leave an answer empty to skip it. Type 'quit' to exit.")
}

// promptRecord asks every field once. ok is false when the session should end.
func (c *Commander) promptRecord() (answers map[string]string, ok bool) {
	answers = make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		prompt := f.Prompt
		if prompt == "" {
			prompt = f.Column
		}
		fmt.Fprint(c.out, c.yellow(prompt+" > "))
		if !c.in.Scan() {
			return nil, false
		}
		line := strings.TrimSpace(c.in.Text())
		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			return nil, false
		case "":
			continue
		}
		answers[f.Column] = line
	}
	return answers, true
}

func (c *Commander) score(ctx context.Context, answers map[string]string) {
	query, err := c.queries.Build(answers)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	if len(answers) == 0 {
		fmt.Fprintf(c.out, "%s No answers given, every column is missing\n", c.yellow("⚠"))
	}

	pred, err := c.predictor.Predict(ctx, query)
	if err != nil {
		fmt.Fprintf(c.out, "%s Scoring failed: %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "Prediction for borrower default is %g\n", pred.Score)
	fmt.Fprintf(c.out, "%s %d neighbors, %d distances evaluated (%d pruned) in %s\n",
		c.green("✓"), len(pred.Neighbors), pred.Evaluated, pred.Pruned, pred.Duration)
}

// SetStatusOutput redirects batch warnings and the final summary line.
func (c *Commander) SetStatusOutput(w io.Writer) {
	c.status = w
}

type batchPredictor interface {
	PredictBatch(ctx context.Context, queries []value.Record) ([]*models.Prediction, error)
}

// BatchPredict scores every row of table and writes Row,Prediction,Neighbors
// CSV to w. Table columns that are not predictor columns are ignored with a
// warning on the status output.
func (c *Commander) BatchPredict(ctx context.Context, table *data.Table, batchSize int, w io.Writer) (int, error) {
	var used []int
	for i, name := range table.Header {
		if c.queries.Has(name) {
			used = append(used, i)
		} else {
			fmt.Fprintf(c.status, "%s Ignoring column %q\n", c.yellow("⚠"), name)
		}
	}
	if len(used) == 0 {
		return 0, fmt.Errorf("%w: query file shares no columns with the dataset", data.ErrUnknownColumn)
	}

	queries := make([]value.Record, len(table.Rows))
	for r, row := range table.Rows {
		answers := make(map[string]string, len(used))
		for _, i := range used {
			answers[table.Header[i]] = row[i]
		}
		q, err := c.queries.Build(answers)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", r, err)
		}
		queries[r] = q
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Row", "Prediction", "Neighbors"}); err != nil {
		return 0, err
	}
	written := 0
	err := data.NewBatchProcessor(batchSize).ProcessBatches(ctx, queries, func(offset int, batch []value.Record) error {
		preds, err := c.predictBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("rows %d-%d: %w", offset, offset+len(batch)-1, err)
		}
		for i, p := range preds {
			if err := writer.Write([]string{
				strconv.Itoa(offset + i),
				decimal.NewFromFloat(p.Score).StringFixed(6),
				strconv.Itoa(len(p.Neighbors)),
			}); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return written, err
	}
	fmt.Fprintf(c.status, "%s Scored %d borrowers\n", c.green("✓"), written)
	return written, nil
}

func (c *Commander) predictBatch(ctx context.Context, batch []value.Record) ([]*models.Prediction, error) {
	if bp, ok := c.predictor.(batchPredictor); ok {
		return bp.PredictBatch(ctx, batch)
	}
	preds := make([]*models.Prediction, len(batch))
	for i, q := range batch {
		p, err := c.predictor.Predict(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		preds[i] = p
	}
	return preds, nil
}

// Columns lists the prompted columns in prompt order.
func (c *Commander) Columns() []string {
	cols := make([]string, len(c.fields))
	for i, f := range c.fields {
		cols[i] = f.Column
	}
	return cols
}
