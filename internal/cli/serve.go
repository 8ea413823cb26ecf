package cli

import (
	"github.com/opfromthestart/loan-mining/internal/server"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Fit the predictor and serve scoring jobs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			knn, population, _, err := a.fitPopulation(cmd.Context())
			if err != nil {
				return err
			}
			opts := server.Options{
				Addr:       a.cfg.Server.Addr,
				RateLimit:  a.cfg.Server.RateLimit,
				Burst:      a.cfg.Server.Burst,
				JobTimeout: a.cfg.Server.JobTimeout,
				JobTTL:     a.cfg.Server.JobTTL,
				Fields:     a.cfg.Prompt.Fields,
			}
			if cmd.Flags().Changed("addr") {
				opts.Addr = addr
			}
			srv, err := server.New(knn, population.Names, opts, a.logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
