package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/store"
)

// initStore opens and migrates the configured run history store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sprawl.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "":
		return nil, eris.New("no run store configured (SPRAWL_STORE_DRIVER)")
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// recordingEnabled reports whether a store driver is configured.
func recordingEnabled() bool {
	return cfg != nil && cfg.Store.Driver != ""
}

// optionalStore opens the run store when one is configured.
func optionalStore(ctx context.Context) (store.Store, error) {
	if !recordingEnabled() {
		return nil, nil
	}
	return initStore(ctx)
}
