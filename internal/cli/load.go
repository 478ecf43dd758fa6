package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/feed"
	"example.com/webshopsessions/internal/ingest"
)

var errNoFeed = errors.New("no feed: pass --feed URL, --file PATH or set feed.url")

type loadFlags struct {
	url       string
	file      string
	timeout   time.Duration
	replace   bool
	workers   int
	batchSize int
}

func newLoadCmd(a *app) *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch the event feed, sessionize it and store it",
		Example: `  webshop load --feed https://shop.example.com/events.ndjson --replace
  webshop load --file events.ndjson --timeout 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.url, "feed", "", "feed URL (default: feed.url)")
	cmd.Flags().StringVar(&f.file, "file", "", "read the feed from a file, - for stdin")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "session inactivity timeout (default: session.timeout)")
	cmd.Flags().BoolVar(&f.replace, "replace", false, "empty the table before loading")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "sessionizer workers (default: pipeline.workers)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "rows per insert batch (default: pipeline.batch_size)")
	cmd.MarkFlagsMutuallyExclusive("feed", "file")
	return cmd
}

func (a *app) openFeed(ctx context.Context, f loadFlags) (io.ReadCloser, error) {
	if f.file != "" {
		return feed.Open(f.file)
	}
	url := f.url
	if url == "" {
		url = a.cfg.Feed.URL
	}
	if url == "" {
		return nil, errNoFeed
	}
	return feed.Fetch(ctx, &http.Client{Timeout: a.cfg.Feed.Timeout}, url)
}

func (a *app) load(cmd *cobra.Command, f loadFlags) error {
	ctx := cmd.Context()
	if f.timeout <= 0 {
		f.timeout = a.cfg.Session.Timeout
	}
	if f.workers <= 0 {
		f.workers = a.cfg.Pipeline.Workers
	}
	if f.batchSize <= 0 {
		f.batchSize = a.cfg.Pipeline.BatchSize
	}

	src, err := a.openFeed(ctx, f)
	if err != nil {
		return err
	}
	defer src.Close()

	st, err := a.openStore(ctx, a.cfg.Database.MigrateOnStart)
	if err != nil {
		return err
	}
	defer st.Close()

	c, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	p := &ingest.Pipeline{
		Loader:  ingest.NewLoader(st, f.batchSize, ingest.WithReplace(f.replace), ingest.WithLogger(a.log)),
		Timeout: f.timeout,
		Workers: f.workers,
		Feed:    feed.Options{MaxLineBytes: a.cfg.Feed.MaxLineBytes, Logger: a.log},
		Cache:   c,
		Log:     a.log,
	}
	rep, err := p.Run(ctx, src)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}
