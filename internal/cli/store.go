package cli

import (
	"context"
	"fmt"

	"example.com/webshopsessions/internal/cache"
	"example.com/webshopsessions/internal/config"
	"example.com/webshopsessions/internal/ingest"
	"example.com/webshopsessions/internal/service"
	"example.com/webshopsessions/internal/storage/clickhouse"
	"example.com/webshopsessions/internal/storage/postgres"
)

// eventStore is what both backends offer: the load side and the read side.
type eventStore interface {
	ingest.Writer
	service.Store
	Close()
}

// openStore connects to the configured backend and, when migrate is set,
// brings the schema up to date first.
func (a *app) openStore(ctx context.Context, migrate bool) (eventStore, error) {
	switch a.cfg.Store.Backend {
	case config.BackendClickHouse:
		st, err := clickhouse.Connect(ctx, a.clickhouseOptions())
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := st.EnsureSchema(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		return st, nil
	default:
		if migrate {
			if err := postgres.Migrate(a.cfg.Database.URL, postgres.Up); err != nil {
				return nil, err
			}
		}
		db, err := postgres.Connect(ctx, a.cfg.Database.URL, a.cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		return db, nil
	}
}

// openCache returns a cache that is a no-op when redis.url is empty, plus
// a cleanup func.
func (a *app) openCache(ctx context.Context) (*cache.Cache, func(), error) {
	if a.cfg.Redis.URL == "" {
		return cache.New(nil, a.cfg.Redis.TTL), func() {}, nil
	}
	client, err := cache.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return cache.New(client, a.cfg.Redis.TTL), func() { _ = client.Close() }, nil
}

func (a *app) clickhouseOptions() clickhouse.Options {
	return clickhouse.Options{
		Addr:     a.cfg.ClickHouse.Addr,
		Database: a.cfg.ClickHouse.Database,
		Username: a.cfg.ClickHouse.Username,
		Password: a.cfg.ClickHouse.Password,
	}
}
