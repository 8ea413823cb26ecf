package cli

import (
	"fmt"

	"github.com/opfromthestart/loan-mining/internal/diagnostics"
	"github.com/spf13/cobra"
)

func (a *app) dumpCmd() *cobra.Command {
	var (
		dir      string
		compress bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write column types, weights, the weight ranking and category labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dir") {
				a.cfg.Diagnostics.Dir = dir
			}
			if cmd.Flags().Changed("compress") {
				a.cfg.Diagnostics.Compress = compress
			}
			knn, _, _, err := a.fitPopulation(cmd.Context())
			if err != nil {
				return err
			}

			w := diagnostics.NewWriter(a.cfg.Diagnostics.Dir, a.cfg.Diagnostics.Compress, a.logger)
			paths, err := w.Write(&diagnostics.Report{
				Schema:  knn.Schema(),
				Weights: knn.Weights(),
				Order:   knn.Order(),
			})
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(a.out, "%s Wrote %s\n", green("✓"), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (overrides diagnostics.dir)")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the dumps (overrides diagnostics.compress)")
	return cmd
}
