package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/webshopsessions/internal/logging"
	"example.com/webshopsessions/internal/service"
	transport "example.com/webshopsessions/internal/transport/http"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	log := a.log.With(logging.Component("server"))

	st, err := a.openStore(ctx, a.cfg.Database.MigrateOnStart)
	if err != nil {
		return err
	}
	defer st.Close()
	log.InfoContext(ctx, "store connected", "backend", a.cfg.Store.Backend)

	c, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	deps := &transport.ServerDeps{
		Metrics:         service.NewOrderMetrics(st, c, service.Options{Logger: a.log}),
		APIKeys:         a.cfg.HTTP.APIKeySet(),
		RateLimitPerMin: a.cfg.HTTP.RateLimitPerMinute,
		MaxPreviewRows:  a.cfg.HTTP.MaxPreviewRows,
		Log:             a.log,
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           deps.Router(),
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		IdleTimeout:       a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "listening", "addr", srv.Addr, "cache", c.IsEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.InfoContext(ctx, "shutting down")
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel2()
	return srv.Shutdown(shutdownCtx)
}
