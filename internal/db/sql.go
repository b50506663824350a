package db

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlRunner struct {
	q sqlQuerier
}

func (r sqlRunner) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r sqlRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (r sqlRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return r.q.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

// SQLConn adapts a database/sql handle to Conn. Statements run unchanged,
// so the driver must accept ? placeholders.
type SQLConn struct {
	sqlRunner
	db      *sql.DB
	dialect Dialect
}

// FromSQL wraps an open *sql.DB.
func FromSQL(db *sql.DB, dialect Dialect) *SQLConn {
	return &SQLConn{sqlRunner: sqlRunner{q: db}, db: db, dialect: dialect}
}

// DB returns the wrapped handle.
func (c *SQLConn) DB() *sql.DB { return c.db }

func (c *SQLConn) Dialect() Dialect { return c.dialect }

func (c *SQLConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *SQLConn) Close() error { return c.db.Close() }

func (c *SQLConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "db: begin")
	}
	return &sqlTx{sqlRunner: sqlRunner{q: tx}, tx: tx}, nil
}

type sqlTx struct {
	sqlRunner
	tx *sql.Tx
}

func (t *sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }
