package commander

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/evaluation"
	"github.com/opfromthestart/loan-mining/internal/experiment"
	"github.com/shopspring/decimal"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

func pct(f float64) string {
	return decimal.NewFromFloat(100*f).Round(2).String() + "%"
}

// PrintDatasetStats summarises a loaded dataset and lists its columns with
// the most missing values.
func PrintDatasetStats(w io.Writer, ds *data.Dataset, stats data.DatasetStats) {
	fmt.Fprintln(w, blue("\nDataset Summary:"))
	fmt.Fprintln(w, strings.Repeat("═", 60))
	fmt.Fprintf(w, "Records:        %d\n", stats.Samples)
	fmt.Fprintf(w, "Predictors:     %d\n", stats.Features)
	fmt.Fprintf(w, "Defaults:       %d (%s)\n", stats.Positives, pct(stats.PositiveRate()))
	fmt.Fprintf(w, "Repaid:         %d\n", stats.Negatives)
	if stats.InvalidTarget > 0 {
		fmt.Fprintf(w, "%s %d records have a non-binary target\n", red("✗"), stats.InvalidTarget)
	}

	type sparse struct {
		name    string
		missing int
	}
	var worst []sparse
	for i, n := range stats.MissingCells {
		if n > 0 {
			worst = append(worst, sparse{name: ds.Names[i], missing: n})
		}
	}
	if len(worst) == 0 {
		fmt.Fprintf(w, "%s No missing values\n", green("✓"))
		return
	}
	// Most missing first, then by column order.
	slices.SortStableFunc(worst, func(a, b sparse) int { return b.missing - a.missing })
	if len(worst) > 10 {
		worst = worst[:10]
	}
	fmt.Fprintf(w, "%s Columns with missing values (top %d):\n", yellow("⚠"), len(worst))
	for _, s := range worst {
		fmt.Fprintf(w, "  %-32s %8d (%s)\n", s.name, s.missing, pct(float64(s.missing)/float64(max(stats.Samples, 1))))
	}
}

// PrintHoldout renders a holdout evaluation.
func PrintHoldout(w io.Writer, res *evaluation.HoldoutResult) {
	m := res.Metrics
	fmt.Fprintln(w, blue("\nHoldout Evaluation:"))
	fmt.Fprintln(w, strings.Repeat("═", 60))
	fmt.Fprint(w, m.FormatMetrics())

	fmt.Fprintln(w, "\nConfusion Matrix (rows = actual, columns = predicted):")
	fmt.Fprintf(w, "%-12s%-10s%-10s\n", "", "repaid", "default")
	for actual, label := range []string{"repaid", "default"} {
		fmt.Fprintf(w, "%-12s", label)
		for predicted := range 2 {
			cell := fmt.Sprintf("%-10d", m.ConfusionMatrix[actual][predicted])
			if actual == predicted {
				cell = green(cell)
			} else if m.ConfusionMatrix[actual][predicted] > 0 {
				cell = red(cell)
			}
			fmt.Fprint(w, cell)
		}
		fmt.Fprintln(w)
	}

	if m.Improvement() > 0 {
		fmt.Fprintf(w, "%s Beats the constant baseline\n", green("✓"))
	} else {
		fmt.Fprintf(w, "%s Does not beat the constant baseline\n", yellow("⚠"))
	}
	fmt.Fprintf(w, "Scored in %s\n", res.Elapsed)
}

// PrintExperiments lists sweep results and highlights the lowest RMSE.
func PrintExperiments(w io.Writer, results []experiment.ExperimentResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No experiment results")
		return
	}
	best := 0
	for i, r := range results {
		if r.RMSE < results[best].RMSE {
			best = i
		}
	}

	fmt.Fprintln(w, blue("\nExperiment Results:"))
	fmt.Fprintln(w, strings.Repeat("-", 78))
	fmt.Fprintf(w, "%-8s %-5s %-9s %-10s %-8s %-10s %-10s %s\n",
		"Split", "K", "MaxCheck", "Divisor", "Queries", "RMSE", "Baseline", "Eval")
	fmt.Fprintln(w, strings.Repeat("-", 78))
	for i, r := range results {
		line := fmt.Sprintf("%-8s %-5d %-9d %-10s %-8d %-10s %-10s %dms",
			r.Split, r.K, r.MaxCheck, r.Divisor, r.Queries,
			decimal.NewFromFloat(r.RMSE).StringFixed(4),
			decimal.NewFromFloat(r.Baseline).StringFixed(4),
			r.EvalTimeMs)
		if i == best {
			line = green(line)
		}
		fmt.Fprintln(w, line)
	}
	b := results[best]
	fmt.Fprintf(w, "%s Best: k=%d max_check=%d divisor=%s (RMSE %s)\n",
		green("✓"), b.K, b.MaxCheck, b.Divisor, decimal.NewFromFloat(b.RMSE).StringFixed(4))
}
