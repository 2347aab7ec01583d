package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/estadias/internal/database"
	"github.com/hitoshi/estadias/internal/model"
)

// PostgresStudentRepo はPostgreSQLを使用した学生リポジトリ。
type PostgresStudentRepo struct {
	db *sql.DB
}

// NewPostgresStudentRepo はPostgresStudentRepoを生成する。
func NewPostgresStudentRepo(db *sql.DB) *PostgresStudentRepo {
	return &PostgresStudentRepo{db: db}
}

const studentColumns = `matricula, name, career_name, grade, student_group, shift, generation, director,
	company_id, status, current_stage, admin_notes,
	COALESCE(email, ''), COALESCE(password_hash, ''), is_first_login, email_verified,
	COALESCE(verification_code, ''), verification_code_expires,
	login_attempts, lock_until, created_at, updated_at`

func scanStudent(row scanner) (*model.Student, error) {
	s := &model.Student{}
	var companyID sql.NullInt64
	var codeExpires, lockUntil sql.NullTime

	err := row.Scan(
		&s.Matricula, &s.Name, &s.CareerName, &s.Grade, &s.Group, &s.Shift, &s.Generation, &s.Director,
		&companyID, &s.Status, &s.CurrentStage, &s.AdminNotes,
		&s.Email, &s.PasswordHash, &s.IsFirstLogin, &s.EmailVerified,
		&s.VerificationCode, &codeExpires,
		&s.LoginAttempts, &lockUntil, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if companyID.Valid {
		s.CompanyID = &companyID.Int64
	}
	if codeExpires.Valid {
		s.VerificationCodeExpires = &codeExpires.Time
	}
	if lockUntil.Valid {
		s.LockUntil = &lockUntil.Time
	}
	return s, nil
}

// FindByMatricula は学生を取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByMatricula(ctx context.Context, matricula string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE lower(matricula) = lower($1)`,
		strings.TrimSpace(matricula),
	)
	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	return s, nil
}

// List は条件に一致する学生をmatricula順で返す。
func (r *PostgresStudentRepo) List(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE 1 = 1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, likePattern(q))
		query += fmt.Sprintf(` AND (matricula ILIKE $%d OR name ILIKE $%d)`, len(args), len(args))
	}
	query += ` ORDER BY matricula`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}
	return students, nil
}

// SaveVerificationCode はメールアドレスと認証コードを保存し、email_verifiedをfalseに戻す。
func (r *PostgresStudentRepo) SaveVerificationCode(ctx context.Context, matricula, email, code string, expires time.Time) error {
	return r.exec(ctx, "save verification code",
		`UPDATE students
		 SET email = $2, verification_code = $3, verification_code_expires = $4,
		     email_verified = false, updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula, email, code, expires,
	)
}

// ClearVerificationCode は認証コードと有効期限を削除する。
func (r *PostgresStudentRepo) ClearVerificationCode(ctx context.Context, matricula string) error {
	return r.exec(ctx, "clear verification code",
		`UPDATE students
		 SET verification_code = NULL, verification_code_expires = NULL, updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula,
	)
}

// MarkEmailVerified はemail_verifiedをtrueにし、認証コードを削除する。
func (r *PostgresStudentRepo) MarkEmailVerified(ctx context.Context, matricula string) error {
	return r.exec(ctx, "mark email verified",
		`UPDATE students
		 SET email_verified = true, verification_code = NULL, verification_code_expires = NULL,
		     updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula,
	)
}

// SetPassword はパスワードハッシュを保存し、初回ログインフラグとロック状態をクリアする。
// 前提条件はWHERE句で判定するため、確認後に認証コードが再送された場合は更新しない。
func (r *PostgresStudentRepo) SetPassword(ctx context.Context, matricula, passwordHash string) error {
	err := r.exec(ctx, "set password",
		`UPDATE students
		 SET password_hash = $2, is_first_login = false, login_attempts = 0, lock_until = NULL,
		     updated_at = now()
		 WHERE lower(matricula) = lower($1)
		   AND email_verified
		   AND (coalesce(password_hash, '') = '' OR is_first_login)`,
		matricula, passwordHash,
	)
	if errors.Is(err, ErrNotFound) {
		return ErrStateChanged
	}
	return err
}

// UpdateLockState は行をFOR UPDATEでロックした上でfnを適用し、結果を保存する。
func (r *PostgresStudentRepo) UpdateLockState(ctx context.Context, matricula string, fn LockUpdateFunc) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		var key string
		var current model.LockState
		var lockUntil sql.NullTime

		err := tx.QueryRowContext(ctx,
			`SELECT matricula, login_attempts, lock_until FROM students
			 WHERE lower(matricula) = lower($1) FOR UPDATE`,
			matricula,
		).Scan(&key, &current.Attempts, &lockUntil)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock student row: %w", err)
		}
		if lockUntil.Valid {
			current.LockUntil = &lockUntil.Time
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE students SET login_attempts = $2, lock_until = $3, updated_at = now()
			 WHERE matricula = $1`,
			key, next.Attempts, next.LockUntil,
		); err != nil {
			return fmt.Errorf("failed to update lock state: %w", err)
		}
		return nil
	})
}

// ResetLockState はログイン失敗回数とロック期限をクリアする。
func (r *PostgresStudentRepo) ResetLockState(ctx context.Context, matricula string) error {
	return r.exec(ctx, "reset lock state",
		`UPDATE students SET login_attempts = 0, lock_until = NULL, updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula,
	)
}

// AssignCompany は企業を割り当てる。overwriteがfalseの場合は未割り当てのときのみ更新する。
// 同時に2件の選択が来ても条件付きUPDATEにより一方のみが成功する。
func (r *PostgresStudentRepo) AssignCompany(ctx context.Context, matricula string, companyID int64, overwrite bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE students
		 SET company_id = $2,
		     status = CASE WHEN status = $4 THEN $5 ELSE status END,
		     current_stage = CASE WHEN status = $4 THEN $6 ELSE current_stage END,
		     updated_at = now()
		 WHERE lower(matricula) = lower($1) AND ($3::boolean OR company_id IS NULL)`,
		matricula, companyID, overwrite,
		string(model.StatusPending), string(model.StatusCompanySelected), model.StageUpload1,
	)
	if err != nil {
		return false, fmt.Errorf("failed to assign company: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateProgress はステータスとステージを更新する。
func (r *PostgresStudentRepo) UpdateProgress(ctx context.Context, matricula string, status model.Status, stage string) error {
	return r.exec(ctx, "update progress",
		`UPDATE students SET status = $2, current_stage = $3, updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula, string(status), stage,
	)
}

// UpdateNotes は管理者メモを更新する。
func (r *PostgresStudentRepo) UpdateNotes(ctx context.Context, matricula, notes string) error {
	return r.exec(ctx, "update notes",
		`UPDATE students SET admin_notes = $2, updated_at = now()
		 WHERE lower(matricula) = lower($1)`,
		matricula, notes,
	)
}

// UpsertAcademic は学籍情報を一括登録する。既存の学生は学籍項目のみ更新する。
func (r *PostgresStudentRepo) UpsertAcademic(ctx context.Context, rows []model.StudentImport) (created, updated int, err error) {
	err = database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		for _, row := range rows {
			var inserted bool
			err := tx.QueryRowContext(ctx,
				`INSERT INTO students
				   (matricula, name, career_name, grade, student_group, shift, generation, director)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT ((lower(matricula))) DO UPDATE SET
				   name = EXCLUDED.name,
				   career_name = EXCLUDED.career_name,
				   grade = EXCLUDED.grade,
				   student_group = EXCLUDED.student_group,
				   shift = EXCLUDED.shift,
				   generation = EXCLUDED.generation,
				   director = EXCLUDED.director,
				   updated_at = now()
				 RETURNING (xmax = 0)`,
				row.Matricula, row.Name, row.CareerName, row.Grade, row.Group, row.Shift, row.Generation, row.Director,
			).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("failed to upsert student %s: %w", row.Matricula, err)
			}
			if inserted {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// DeleteAll は全学生を削除する。提出書類はCASCADE削除される。
func (r *PostgresStudentRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM students`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete students: %w", err)
	}
	return result.RowsAffected()
}

// ClearExpiredVerificationCodes は有効期限がbeforeより前の認証コードを削除する。
func (r *PostgresStudentRepo) ClearExpiredVerificationCodes(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE students
		 SET verification_code = NULL, verification_code_expires = NULL, updated_at = now()
		 WHERE verification_code IS NOT NULL AND verification_code_expires < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired verification codes: %w", err)
	}
	return result.RowsAffected()
}

// exec は1行を更新するクエリを実行する。対象がない場合はErrNotFoundを返す。
func (r *PostgresStudentRepo) exec(ctx context.Context, op, query string, args ...any) error {
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
var _ StudentRepository = (*PostgresStudentRepo)(nil)
