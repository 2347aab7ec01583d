package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estadias/internal/model"
)

// PostgresDocumentRepo はPostgreSQLを使用した提出書類リポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

const documentColumns = `id, student_matricula, stage, document_name, filename, storage_key,
	mime_type, file_size, status, review_note, created_at, updated_at`

func scanDocument(row scanner) (*model.Document, error) {
	d := &model.Document{}
	err := row.Scan(&d.ID, &d.StudentMatricula, &d.Stage, &d.DocumentName, &d.Filename, &d.StorageKey,
		&d.MimeType, &d.FileSize, &d.Status, &d.ReviewNote, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// FindByID は書類を取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return d, nil
}

// FindBySlot は学生・ステージ・書類名で書類を取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindBySlot(ctx context.Context, matricula, stage, documentName string) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE student_matricula = $1 AND stage = $2 AND document_name = $3`,
		matricula, stage, documentName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by slot: %w", err)
	}
	return d, nil
}

// ListByStudent は学生の書類をステージ・書類名順で返す。stageが空の場合は全ステージ。
func (r *PostgresDocumentRepo) ListByStudent(ctx context.Context, matricula, stage string) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE student_matricula = $1 AND ($2::text = '' OR stage = $2)
		 ORDER BY stage, document_name`,
		matricula, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// Upsert は同一スロットの書類があれば置き換え、なければ作成する。
// 置き換え時は審査状態をPendienteに戻し、審査コメントを消去する。
func (r *PostgresDocumentRepo) Upsert(ctx context.Context, d *model.Document) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO documents
		   (student_matricula, stage, document_name, filename, storage_key, mime_type, file_size)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (student_matricula, stage, document_name) DO UPDATE SET
		   filename = EXCLUDED.filename,
		   storage_key = EXCLUDED.storage_key,
		   mime_type = EXCLUDED.mime_type,
		   file_size = EXCLUDED.file_size,
		   status = 'Pendiente',
		   review_note = '',
		   updated_at = now()
		 RETURNING id, status, review_note, created_at, updated_at`,
		d.StudentMatricula, d.Stage, d.DocumentName, d.Filename, d.StorageKey, d.MimeType, d.FileSize,
	).Scan(&d.ID, &d.Status, &d.ReviewNote, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// UpdateReview は審査結果を保存する。
func (r *PostgresDocumentRepo) UpdateReview(ctx context.Context, id int64, status model.DocumentStatus, note string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $2, review_note = $3, updated_at = now() WHERE id = $1`,
		id, string(status), note)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
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
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
