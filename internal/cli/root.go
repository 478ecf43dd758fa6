// Package cli is the webshop command line: serve the API, load feeds and
// inspect the order metrics.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/config"
	"example.com/webshopsessions/internal/logging"
)

// app carries state shared by every subcommand once the root has run.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *logging.Logger
}

// NewRootCommand builds the command tree. Each call returns fresh flag state.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "webshop",
		Short: "Web-shop session analytics",
		Long: `webshop sessionizes the shop's event feed, stores it and answers
how many visits (and how many minutes) customers spend before their first order.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./webshop.yaml or /etc/webshop/webshop.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newLoadCmd(a),
		newMetricsCmd(a),
		newExploreCmd(a),
		newSeedCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.NewWithWriter(logOut, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(a.log)
	return nil
}

// Execute runs the root command against os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdoutOr(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
