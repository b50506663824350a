package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"UPDATE t SET note = 'why?' WHERE id = ?", "UPDATE t SET note = 'why?' WHERE id = $1"},
		{"DELETE FROM t WHERE id IN (?, ?, ?)", "DELETE FROM t WHERE id IN ($1, $2, $3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rebind(tt.in))
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestIsNoRows(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.False(t, IsNoRows(nil))
	assert.False(t, IsNoRows(context.Canceled))
}

func TestPgxConn_RebindsAndCountsRows(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	conn := FromPgx(mock, nil)
	assert.Equal(t, Postgres, conn.Dialect())

	mock.ExpectExec(`UPDATE batches SET status = \$1 WHERE id = \$2`).
		WithArgs("Active", "b1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := conn.Exec(context.Background(), "UPDATE batches SET status = ? WHERE id = ?", "Active", "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxConn_TxCommit(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	conn := FromPgx(mock, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM roles WHERE batch_id = \$1`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("r1").AddRow("r2"))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	rows, err := tx.Query(ctx, "SELECT id FROM roles WHERE batch_id = ?", "b1")
	require.NoError(t, err)
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	rows.Close()
	require.NoError(t, rows.Err())
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, []string{"r1", "r2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConn_RoundTrip(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	conn := FromSQL(sqlDB, SQLite)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	_, err = conn.Exec(ctx, "CREATE TABLE t (id TEXT PRIMARY KEY, n INTEGER)")
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Exec(ctx, "INSERT INTO t (id, n) VALUES (?, ?), (?, ?)", "a", 1, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, tx.Rollback(ctx))

	var count int
	require.NoError(t, conn.QueryRow(ctx, "SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 0, count)

	err = conn.QueryRow(ctx, "SELECT n FROM t WHERE id = ?", "a").Scan(&count)
	assert.True(t, IsNoRows(err))
}
