// Package store persists goals, analysis batches and everything hanging off
// them. The same SQL runs against Postgres (pgx) and SQLite (modernc).
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// ErrStatusChanged is returned when a compare-and-set status update finds
// the batch in another status than the caller expected.
var ErrStatusChanged = eris.New("store: batch status changed concurrently")

// queries holds every data method. Store runs them on the connection and Tx
// runs them inside a transaction.
type queries struct {
	q       db.Querier
	dialect db.Dialect
}

// Store is the goalflow persistence layer.
type Store struct {
	queries
	conn db.Conn
}

// Tx exposes the store's data methods inside one transaction.
type Tx struct {
	queries
}

// New wraps an open connection.
func New(conn db.Conn) *Store {
	return &Store{queries: queries{q: conn, dialect: conn.Dialect()}, conn: conn}
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() db.Dialect {
	return s.dialect
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.conn.Ping(ctx), "store: ping")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := postgresMigration
	if s.dialect == db.SQLite {
		ddl = sqliteMigration
	}
	_, err := s.conn.Exec(ctx, ddl)
	return eris.Wrapf(err, "%s: migrate", s.dialect)
}

// InTx runs fn in a transaction, committing when fn returns nil. Errors from
// fn are returned unchanged so callers can inspect their kind.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&Tx{queries: queries{q: tx, dialect: s.dialect}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit")
	}
	committed = true
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// amount converts an Amount into the driver's NUMERIC parameter.
func (q queries) amount(a model.Amount) any {
	if q.dialect == db.Postgres {
		return pgtype.Numeric{Int: a.BigInt(), Exp: 0, Valid: true}
	}
	return a.String()
}

func (q queries) optAmount(a *model.Amount) any {
	if a == nil {
		return nil
	}
	return q.amount(*a)
}

func scanAmount(s string) (model.Amount, error) {
	a, err := model.ParseAmount(s)
	return a, eris.Wrapf(err, "store: stored amount %q", s)
}

func scanOptAmount(s *string) (*model.Amount, error) {
	if s == nil {
		return nil, nil
	}
	a, err := scanAmount(*s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// notFound wraps ErrNotFound for the given entity.
func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// count runs a COUNT query and returns the result.
func (q queries) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := q.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// stringArgs widens ids for use as variadic query arguments.
func stringArgs(ids []string, extra ...any) []any {
	args := make([]any, 0, len(ids)+len(extra))
	args = append(args, extra...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
