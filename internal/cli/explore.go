package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/feed"
	"example.com/webshopsessions/internal/service"
)

var errBadRange = errors.New("require 1 <= --min <= --max")

type exploreFlags struct {
	file     string
	min, max int
}

func newExploreCmd(a *app) *cobra.Command {
	var f exploreFlags
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Histogram inter-event gaps and session durations per timeout",
		Example: `  webshop explore --min 5 --max 10
  webshop explore --file events.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.min < 1 || f.max < f.min {
				return errBadRange
			}
			var (
				ex  analytics.Exploration
				err error
			)
			if f.file != "" {
				var events []domain.NormalizedEvent
				if events, err = a.readLocalFeed(cmd, f.file); err != nil {
					return err
				}
				ex, err = analytics.Explore(events, f.min, f.max, analytics.DefaultHistogram)
			} else {
				ex, err = a.exploreStore(cmd, f)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ex)
		},
	}
	cmd.Flags().StringVar(&f.file, "file", "", "explore a local feed file instead of the store")
	cmd.Flags().IntVar(&f.min, "min", 5, "smallest timeout in minutes")
	cmd.Flags().IntVar(&f.max, "max", 10, "largest timeout in minutes")
	return cmd
}

func (a *app) exploreStore(cmd *cobra.Command, f exploreFlags) (analytics.Exploration, error) {
	ctx := cmd.Context()
	st, err := a.openStore(ctx, false)
	if err != nil {
		return analytics.Exploration{}, err
	}
	defer st.Close()
	return service.NewOrderMetrics(st, nil, service.Options{Logger: a.log}).Distributions(ctx, f.min, f.max)
}

// readLocalFeed parses a feed file into accepted events.
func (a *app) readLocalFeed(cmd *cobra.Command, path string) ([]domain.NormalizedEvent, error) {
	r, err := feed.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	res, err := feed.Read(cmd.Context(), r, feed.Options{MaxLineBytes: a.cfg.Feed.MaxLineBytes, Logger: a.log})
	if err != nil {
		return nil, err
	}
	a.log.InfoContext(cmd.Context(), "feed read",
		"lines", res.Stats.Lines, "accepted", res.Stats.Accepted, "excluded", res.Stats.Excluded,
		"parse_faults", res.Stats.ParseFaults, "duplicates", res.Stats.Duplicates)
	return res.Events, nil
}
