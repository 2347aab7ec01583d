package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/estadias/internal/database"
	"github.com/hitoshi/estadias/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

const adminColumns = `id, username, password_hash, email, role, is_active,
	login_attempts, lock_until, created_at, updated_at`

func scanAdmin(row scanner) (*model.Admin, error) {
	a := &model.Admin{}
	var lockUntil sql.NullTime
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.Role, &a.IsActive,
		&a.LoginAttempts, &lockUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockUntil.Valid {
		a.LockUntil = &lockUntil.Time
	}
	return a, nil
}

// FindByID は管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByID(ctx context.Context, id int64) (*model.Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by ID: %w", err)
	}
	return a, nil
}

// FindActiveByUsername は有効な管理者をユーザー名で取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindActiveByUsername(ctx context.Context, username string) (*model.Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE lower(username) = lower($1) AND is_active`,
		strings.TrimSpace(username)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by username: %w", err)
	}
	return a, nil
}

// List は全管理者をID順で返す。
func (r *PostgresAdminRepo) List(ctx context.Context) ([]*model.Admin, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*model.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admins: %w", err)
	}
	return admins, nil
}

// Create は管理者を作成し、採番されたIDとタイムスタンプを設定する。
func (r *PostgresAdminRepo) Create(ctx context.Context, admin *model.Admin) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO admins (username, password_hash, email, role, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		admin.Username, admin.PasswordHash, admin.Email, string(admin.Role), admin.IsActive,
	).Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

// SetActive は有効・無効を切り替える。
func (r *PostgresAdminRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, "set admin active",
		`UPDATE admins SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

// UpdateLockState は行をFOR UPDATEでロックした上でfnを適用し、結果を保存する。
func (r *PostgresAdminRepo) UpdateLockState(ctx context.Context, id int64, fn LockUpdateFunc) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		var current model.LockState
		var lockUntil sql.NullTime

		err := tx.QueryRowContext(ctx,
			`SELECT login_attempts, lock_until FROM admins WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current.Attempts, &lockUntil)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock admin row: %w", err)
		}
		if lockUntil.Valid {
			current.LockUntil = &lockUntil.Time
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE admins SET login_attempts = $2, lock_until = $3, updated_at = now() WHERE id = $1`,
			id, next.Attempts, next.LockUntil,
		); err != nil {
			return fmt.Errorf("failed to update lock state: %w", err)
		}
		return nil
	})
}

// ResetLockState はログイン失敗回数とロック期限をクリアする。
func (r *PostgresAdminRepo) ResetLockState(ctx context.Context, id int64) error {
	return r.exec(ctx, "reset admin lock state",
		`UPDATE admins SET login_attempts = 0, lock_until = NULL, updated_at = now() WHERE id = $1`, id)
}

func (r *PostgresAdminRepo) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
