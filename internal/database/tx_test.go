package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// setupSQLite はテストごとに独立したインメモリSQLiteを用意する。
// WithTxはドライバ非依存のため、PostgreSQLなしで検証できる。
func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS lock_events (id INTEGER PRIMARY KEY, matricula TEXT)`)
	require.NoError(t, err)
	return db
}

func countEvents(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM lock_events`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupSQLite(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO lock_events(matricula) VALUES ('A1')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countEvents(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupSQLite(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO lock_events(matricula) VALUES ('A1')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 0, countEvents(t, db))
}

func TestWithTx_RollsBackAndRethrowsOnPanic(t *testing.T) {
	db := setupSQLite(t)

	defer func() {
		require.NotNil(t, recover(), "panic should propagate")
		require.Equal(t, 0, countEvents(t, db))
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO lock_events(matricula) VALUES ('A1')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginErrorOnClosedDB(t *testing.T) {
	db := setupSQLite(t)
	require.NoError(t, db.Close())

	called := false
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}
