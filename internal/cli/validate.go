package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/opfromthestart/loan-mining/internal/commander"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/spf13/cobra"
)

var green = color.New(color.FgGreen).SprintFunc()

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the dataset and summarise its columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.loadDataset(cmd.Context())
			if err != nil {
				return err
			}
			validator := data.NewDataValidator()
			commander.PrintDatasetStats(a.out, ds, validator.GetDatasetStats(ds))
			if err := validator.ValidateDataset(ds); err != nil {
				return err
			}
			population, holdout, err := a.split(ds)
			if err != nil {
				return err
			}

			schema, err := preprocessing.NewTypeInferer(a.logger).Infer(population.Records, population.Names)
			if err != nil {
				return err
			}
			numeric, categorical := schema.Counts()
			fmt.Fprintf(a.out, "Column types:   %d numeric, %d categorical\n", numeric, categorical)
			fmt.Fprintf(a.out, "%s Dataset is valid: population %d, holdout %d\n", green("✓"), population.Len(), holdout.Len())
			return nil
		},
	}
}
