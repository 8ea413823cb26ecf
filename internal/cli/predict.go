package cli

import (
	"fmt"
	"os"

	"github.com/opfromthestart/loan-mining/internal/commander"
	"github.com/opfromthestart/loan-mining/internal/config"
	"github.com/spf13/cobra"
)

func (a *app) predictCmd() *cobra.Command {
	var (
		queryFile string
		output    string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score borrowers interactively or from a CSV file",
		Long: `Without --query-file, predict asks for the configured prompt fields and
prints the predicted default probability until input ends or you type quit.
With --query-file every row of the CSV is scored; its header must use the
dataset's column names.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			knn, population, _, err := a.fitPopulation(ctx)
			if err != nil {
				return err
			}

			fields := a.cfg.Prompt.Fields
			if queryFile != "" {
				// Batch scoring never prompts, so any column may be answered.
				fields = make([]config.Field, len(population.Names))
				for i, name := range population.Names {
					fields[i] = config.Field{Column: name}
				}
			}
			c, err := commander.NewCommander(knn, population.Names, fields, a.in, a.out)
			if err != nil {
				return err
			}
			if queryFile == "" {
				return c.Start(ctx)
			}

			// stdout may be the CSV itself.
			c.SetStatusOutput(a.errOut)
			table, err := a.loadTable(ctx, queryFile)
			if err != nil {
				return err
			}
			w := a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if _, err := c.BatchPredict(ctx, table, batchSize, w); err != nil {
				return fmt.Errorf("%s: %w", queryFile, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queryFile, "query-file", "", "CSV of borrowers to score instead of prompting")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write batch predictions here instead of stdout")
	cmd.Flags().IntVar(&batchSize, "batch-size", 256, "borrowers scored concurrently per batch")
	return cmd
}
