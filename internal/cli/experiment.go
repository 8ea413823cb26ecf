package cli

import (
	"fmt"

	"github.com/opfromthestart/loan-mining/internal/commander"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/experiment"
	"github.com/spf13/cobra"
)

func (a *app) experimentCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "experiment <grid.yaml>",
		Short: "Evaluate a grid of k, max-check and divisor settings on the holdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := experiment.NewRunner(args[0], a.logger)
			if err != nil {
				return err
			}
			ds, err := a.loadDataset(cmd.Context())
			if err != nil {
				return err
			}
			if err := data.NewDataValidator().ValidateDataset(ds); err != nil {
				return err
			}

			results, err := runner.RunAllExperiments(cmd.Context(), ds)
			if err != nil {
				return err
			}
			commander.PrintExperiments(a.out, results)
			if output != "" {
				if err := runner.ExportResults(results, output); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Results saved to %s\n", green("✓"), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the results as CSV")
	return cmd
}
