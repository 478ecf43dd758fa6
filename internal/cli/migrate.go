package cli

import (
	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/config"
	"example.com/webshopsessions/internal/storage/clickhouse"
	"example.com/webshopsessions/internal/storage/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Create or drop the webshop_events schema",
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := postgres.Direction(args[0])
			if a.cfg.Store.Backend != config.BackendClickHouse {
				if err := postgres.Migrate(a.cfg.Database.URL, dir); err != nil {
					return err
				}
				a.log.InfoContext(cmd.Context(), "migrated", "backend", a.cfg.Store.Backend, "direction", dir)
				return nil
			}

			ctx := cmd.Context()
			st, err := clickhouse.Connect(ctx, a.clickhouseOptions())
			if err != nil {
				return err
			}
			defer st.Close()
			if dir == postgres.Up {
				err = st.EnsureSchema(ctx)
			} else {
				err = st.DropSchema(ctx)
			}
			if err != nil {
				return err
			}
			a.log.InfoContext(cmd.Context(), "migrated", "backend", a.cfg.Store.Backend, "direction", dir)
			return nil
		},
	}
}
