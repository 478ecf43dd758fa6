package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/service"
	"example.com/webshopsessions/internal/sessionize"
)

type metricsFlags struct {
	mode   string
	verify bool
	file   string
}

func newMetricsCmd(a *app) *cobra.Command {
	var f metricsFlags
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the median visits and minutes before a first order",
		Long: `metrics reads the stored events and prints the two medians.

With --verify every computation path runs and the command fails when
they disagree. With --file a local feed is sessionized and measured in
memory, no store needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.file != "" {
				return a.metricsFromFile(cmd, f)
			}
			return a.metricsFromStore(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", string(service.ModeStore), "store or memory")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "compute by every path and compare")
	cmd.Flags().StringVar(&f.file, "file", "", "measure a local feed file instead of the store")
	return cmd
}

func (a *app) metricsFromStore(cmd *cobra.Command, f metricsFlags) error {
	ctx := cmd.Context()
	mode, err := service.ParseMode(f.mode)
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	// the CLI always reads fresh, so no cache here
	svc := service.NewOrderMetrics(st, nil, service.Options{Logger: a.log})
	if f.verify {
		v, err := svc.Verify(ctx)
		if perr := printJSON(cmd.OutOrStdout(), v); perr != nil {
			return perr
		}
		return err
	}
	m, err := svc.Get(ctx, mode)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), m)
}

func (a *app) metricsFromFile(cmd *cobra.Command, f metricsFlags) error {
	if _, err := service.ParseMode(f.mode); err != nil {
		return err
	}
	events, err := a.readLocalFeed(cmd, f.file)
	if err != nil {
		return err
	}
	events = sessionize.Sessionize(events, a.cfg.Session.Timeout)

	m := analytics.Compute(events)
	if f.verify {
		rel := analytics.ComputeRelational(events)
		if perr := printJSON(cmd.OutOrStdout(), map[string]analytics.Metrics{"memory": m, "relational": rel}); perr != nil {
			return perr
		}
		if !m.Equal(rel) {
			return fmt.Errorf("%w: in-process paths", service.ErrPathMismatch)
		}
		return nil
	}
	return printJSON(cmd.OutOrStdout(), m)
}
