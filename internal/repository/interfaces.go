// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/estadias/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しない場合のエラー。
// 取得系メソッドは見つからない場合にnilを返し、このエラーは使わない。
var ErrNotFound = errors.New("record not found")

// ErrStateChanged は条件付き更新の前提が読み取り後に崩れていた場合のエラー。
var ErrStateChanged = errors.New("record state changed")

// LockUpdateFunc は行ロック中の最新のロック状態を受け取り、保存する次の状態を返す。
type LockUpdateFunc func(current model.LockState) (model.LockState, error)

// StudentRepository は学生データの永続化インターフェース。
// matriculaの検索はすべて前後の空白を除いた大文字小文字を区別しない完全一致で行う。
type StudentRepository interface {
	// FindByMatricula は学生を取得する。見つからない場合はnilを返す。
	FindByMatricula(ctx context.Context, matricula string) (*model.Student, error)

	// List は条件に一致する学生をmatricula順で返す。
	List(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error)

	// SaveVerificationCode はメールアドレスと認証コードを保存し、email_verifiedをfalseに戻す。
	// 以前のコードは上書きされ無効になる。
	SaveVerificationCode(ctx context.Context, matricula, email, code string, expires time.Time) error

	// ClearVerificationCode は認証コードと有効期限を削除する。
	ClearVerificationCode(ctx context.Context, matricula string) error

	// MarkEmailVerified はemail_verifiedをtrueにし、認証コードを削除する。
	MarkEmailVerified(ctx context.Context, matricula string) error

	// SetPassword はパスワードハッシュを保存し、初回ログインフラグとロック状態をクリアする。
	// メール確認済みかつ未有効化の学生のみ更新し、該当しない場合はErrStateChangedを返す。
	SetPassword(ctx context.Context, matricula, passwordHash string) error

	// UpdateLockState は行をFOR UPDATEでロックした上でfnを適用し、結果を保存する。
	UpdateLockState(ctx context.Context, matricula string, fn LockUpdateFunc) error

	// ResetLockState はログイン失敗回数とロック期限をクリアする。
	ResetLockState(ctx context.Context, matricula string) error

	// AssignCompany は企業を割り当てる。
	// overwriteがfalseの場合は未割り当てのときのみ更新し、更新できたかどうかを返す。
	// ステータスがPendienteの場合はEmpresa Seleccionada / upload_1へ進める。
	AssignCompany(ctx context.Context, matricula string, companyID int64, overwrite bool) (bool, error)

	// UpdateProgress はステータスとステージを更新する。
	UpdateProgress(ctx context.Context, matricula string, status model.Status, stage string) error

	// UpdateNotes は管理者メモを更新する。
	UpdateNotes(ctx context.Context, matricula, notes string) error

	// UpsertAcademic は学籍情報を一括登録する。既存の学生は学籍項目のみ更新し、
	// 認証・進捗の項目は変更しない。新規作成数と更新数を返す。
	UpsertAcademic(ctx context.Context, rows []model.StudentImport) (created, updated int, err error)

	// DeleteAll は全学生を削除する。提出書類はCASCADE削除される。
	DeleteAll(ctx context.Context) (int64, error)

	// ClearExpiredVerificationCodes は有効期限がbeforeより前の認証コードを削除し、件数を返す。
	ClearExpiredVerificationCodes(ctx context.Context, before time.Time) (int64, error)
}

// AdminRepository は管理者データの永続化インターフェース。
type AdminRepository interface {
	// FindByID は管理者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Admin, error)

	// FindActiveByUsername は有効な管理者をユーザー名で取得する。見つからない場合はnilを返す。
	FindActiveByUsername(ctx context.Context, username string) (*model.Admin, error)

	// List は全管理者をID順で返す。
	List(ctx context.Context) ([]*model.Admin, error)

	// Create は管理者を作成し、採番されたIDを設定する。
	// ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, admin *model.Admin) error

	// SetActive は有効・無効を切り替える。
	SetActive(ctx context.Context, id int64, active bool) error

	// UpdateLockState は行をFOR UPDATEでロックした上でfnを適用し、結果を保存する。
	UpdateLockState(ctx context.Context, id int64, fn LockUpdateFunc) error

	// ResetLockState はログイン失敗回数とロック期限をクリアする。
	ResetLockState(ctx context.Context, id int64) error
}

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate record")

// CompanyRepository は企業カタログの永続化インターフェース。
type CompanyRepository interface {
	// FindByID は企業を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Company, error)

	// List は全企業を名前順で返す。
	List(ctx context.Context) ([]*model.Company, error)

	// Create は企業を作成し、採番されたIDを設定する。
	// 名前が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, company *model.Company) error

	// BulkInsertIgnoreDuplicates は名前が重複しない企業のみを登録し、登録件数を返す。
	BulkInsertIgnoreDuplicates(ctx context.Context, companies []*model.Company) (int, error)

	// DeleteAll は全企業を削除する。学生の割り当てはNULLに戻る。
	DeleteAll(ctx context.Context) (int64, error)
}

// DocumentRepository は提出書類メタデータの永続化インターフェース。
type DocumentRepository interface {
	// FindByID は書類を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// FindBySlot は学生・ステージ・書類名で書類を取得する。見つからない場合はnilを返す。
	FindBySlot(ctx context.Context, matricula, stage, documentName string) (*model.Document, error)

	// ListByStudent は学生の書類をステージ・書類名順で返す。stageが空の場合は全ステージ。
	ListByStudent(ctx context.Context, matricula, stage string) ([]*model.Document, error)

	// Upsert は同一スロットの書類があれば置き換え、なければ作成する。
	// 置き換え時は審査状態をPendienteに戻し、審査コメントを消去する。
	Upsert(ctx context.Context, doc *model.Document) error

	// UpdateReview は審査結果を保存する。
	UpdateReview(ctx context.Context, id int64, status model.DocumentStatus, note string) error
}
