package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/student-map/internal/store"
)

const defaultSQLitePath = "student-map.db"

// initStore opens the configured store. It returns nil when persistence is
// disabled.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore is initStore plus migration.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil || st == nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// requireStore is openStore for commands that cannot run without one.
func requireStore(ctx context.Context, why string) (store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.Errorf("%s needs a store (set store.driver to sqlite or postgres)", why)
	}
	return st, nil
}
