package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/config"
	"github.com/sells-group/goalflow/internal/store"
)

// initStore opens the configured database and brings its schema up to date.
func initStore(ctx context.Context, c *config.Config) (*store.Store, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  *store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
