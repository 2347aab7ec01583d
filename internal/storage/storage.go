// Package storage は提出書類ファイルの保存先を抽象化する。
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound は指定キーのファイルが存在しない場合のエラー。
var ErrObjectNotFound = errors.New("object not found")

// FileStore はキーで識別されるファイルの保存先。
type FileStore interface {
	// Put はrの内容をkeyに保存する。既存のファイルは上書きする。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open はkeyのファイルを開く。存在しない場合はErrObjectNotFoundを返す。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete はkeyのファイルを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}
