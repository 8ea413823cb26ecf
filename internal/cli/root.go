package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opfromthestart/loan-mining/internal/config"
	"github.com/opfromthestart/loan-mining/internal/logging"
	"github.com/spf13/cobra"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	// Global flags (override config if set)
	cfgFile    string
	dataPath   string
	k          int
	maxCheck   int
	divisor    string
	workers    int
	partitions int
	logLevel   string
	logFormat  string

	// Loaded configuration
	cfg    *config.Global
	logger *slog.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCmd builds the command tree reading from in and writing results to
// out and logs to errOut.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "loanmining",
		Short: "Predict loan default risk from similar past borrowers",
		Long: `loanmining scores a borrower by averaging the outcomes of the most similar
past borrowers. Similarity weights each column by how strongly it is
associated with default in the population.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./loanmining.yaml or ~/.loanmining/config.yaml)")
	pf.StringVar(&a.dataPath, "data", "", "dataset path, .gz/.zst file or s3://bucket/key (overrides config)")
	pf.IntVar(&a.k, "k", 0, "number of neighbors (overrides config)")
	pf.IntVar(&a.maxCheck, "max-check", 0, "columns inspected per distance, 0 for all (overrides config)")
	pf.StringVar(&a.divisor, "divisor", "", "divide the neighbor sum by k or neighbors (overrides config)")
	pf.IntVar(&a.workers, "workers", 0, "concurrent queries and fitting columns (overrides config)")
	pf.IntVar(&a.partitions, "partitions", 0, "population scan partitions per query (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "text or json (overrides config)")

	rootCmd.AddCommand(
		a.validateCmd(),
		a.evaluateCmd(),
		a.predictCmd(),
		a.serveCmd(),
		a.dumpCmd(),
		a.experimentCmd(),
		a.configCmd(),
	)
	return rootCmd
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	c, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = c

	// Apply CLI overrides if provided
	f := cmd.Flags()
	if f.Changed("data") {
		c.Data.Path = a.dataPath
	}
	if f.Changed("k") {
		c.Model.K = a.k
	}
	if f.Changed("max-check") {
		c.Model.MaxCheck = a.maxCheck
	}
	if f.Changed("divisor") {
		c.Model.Divisor = a.divisor
	}
	if f.Changed("workers") && a.workers > 0 {
		c.Model.Workers = a.workers
	}
	if f.Changed("partitions") && a.partitions > 0 {
		c.Model.Partitions = a.partitions
	}
	if f.Changed("log-level") {
		c.Log.Level = a.logLevel
	}
	if f.Changed("log-format") {
		c.Log.Format = a.logFormat
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(c.Log.Level, c.Log.Format, a.errOut)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}
