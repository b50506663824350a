package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRunner struct {
	q pgxQuerier
}

func (r pgxRunner) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.q.Exec(ctx, Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r pgxRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := r.q.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r pgxRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return r.q.QueryRow(ctx, Rebind(query), args...)
}

// PgxConn adapts a pgx pool to Conn.
type PgxConn struct {
	pgxRunner
	pool    Pool
	closeFn func()
}

// FromPgx wraps pool. closeFn may be nil when the caller owns the pool.
func FromPgx(pool Pool, closeFn func()) *PgxConn {
	return &PgxConn{pgxRunner: pgxRunner{q: pool}, pool: pool, closeFn: closeFn}
}

// Pool returns the wrapped pool.
func (c *PgxConn) Pool() Pool { return c.pool }

func (c *PgxConn) Dialect() Dialect { return Postgres }

func (c *PgxConn) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *PgxConn) Close() error {
	if c.closeFn != nil {
		c.closeFn()
	}
	return nil
}

func (c *PgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "db: begin")
	}
	return &pgxTx{pgxRunner: pgxRunner{q: tx}, tx: tx}, nil
}

type pgxTx struct {
	pgxRunner
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
