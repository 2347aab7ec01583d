package database

import (
	"context"
	"database/sql"
)

// DBTX は*sql.DBと*sql.Txの両方が満たす最小インターフェース。
// リポジトリはこれを受け取り、トランザクション内外で同じクエリを実行できる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx はトランザクションを開始してfnを実行する。
// fnがエラーを返した場合やpanicした場合はロールバックし、それ以外はコミットする。
// panicはロールバック後に再送出する。
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
