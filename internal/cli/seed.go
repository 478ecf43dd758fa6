package cli

import (
	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/seed"
)

func newSeedCmd(a *app) *cobra.Command {
	cfg := seed.DefaultConfig()
	var out string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic event feed",
		Example: `  webshop seed --customers 1000 --out events.ndjson
  webshop seed --customers 50 --malformed 3 | webshop load --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := stdoutOr(out)
			if err != nil {
				return err
			}
			stats, err := seed.Write(w, cfg)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			a.log.InfoContext(cmd.Context(), "feed written",
				"events", stats.Events, "customers", stats.Customers, "orders", stats.Orders,
				"anonymous", stats.Anonymous, "malformed", stats.Malformed)
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.Customers, "customers", cfg.Customers, "number of customers")
	cmd.Flags().StringVar(&out, "out", "-", "output file, - for stdout")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	cmd.Flags().Float64Var(&cfg.OrderRate, "order-rate", cfg.OrderRate, "share of customers that order")
	cmd.Flags().IntVar(&cfg.MalformedLines, "malformed", cfg.MalformedLines, "number of broken lines to mix in")
	return cmd
}
