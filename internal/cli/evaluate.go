package cli

import (
	"github.com/opfromthestart/loan-mining/internal/commander"
	"github.com/opfromthestart/loan-mining/internal/evaluation"
	"github.com/spf13/cobra"
)

func (a *app) evaluateCmd() *cobra.Command {
	var (
		maxQueries int
		cutoff     float64
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the holdout rows against the population and report RMSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			knn, _, holdout, err := a.fitPopulation(cmd.Context())
			if err != nil {
				return err
			}
			if maxQueries > 0 && holdout.Len() > maxQueries {
				holdout = holdout.Slice(0, maxQueries)
			}

			evaluator := evaluation.NewHoldoutEvaluator(a.cfg.Model.Workers)
			evaluator.Cutoff = cutoff
			evaluator.Logger = a.logger
			evaluator.ProgressEvery = max(holdout.Len()/10, 1)
			evaluator.Progress = func(done, total int) {
				a.logger.Info("holdout progress", "done", done, "total", total)
			}
			res, err := evaluator.Evaluate(cmd.Context(), knn, holdout)
			if err != nil {
				return err
			}
			commander.PrintHoldout(a.out, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxQueries, "max-queries", 0, "score only the first n holdout rows (0 for all)")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 0.5, "score at or above which a borrower counts as predicted to default")
	return cmd
}
