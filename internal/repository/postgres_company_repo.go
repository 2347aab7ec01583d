package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estadias/internal/database"
	"github.com/hitoshi/estadias/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した企業カタログリポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

const companyColumns = `id, name, address, contact, business_line, email, phone, created_at, updated_at`

func scanCompany(row scanner) (*model.Company, error) {
	c := &model.Company{}
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Contact, &c.BusinessLine, &c.Email, &c.Phone,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id int64) (*model.Company, error) {
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find company: %w", err)
	}
	return c, nil
}

// List は全企業を名前順で返す。
func (r *PostgresCompanyRepo) List(ctx context.Context) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

// Create は企業を作成し、採番されたIDとタイムスタンプを設定する。
func (r *PostgresCompanyRepo) Create(ctx context.Context, c *model.Company) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO companies (name, address, contact, business_line, email, phone)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		c.Name, c.Address, c.Contact, c.BusinessLine, c.Email, c.Phone,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// BulkInsertIgnoreDuplicates は名前が重複しない企業のみを1トランザクションで登録する。
func (r *PostgresCompanyRepo) BulkInsertIgnoreDuplicates(ctx context.Context, companies []*model.Company) (int, error) {
	inserted := 0
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		for _, c := range companies {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO companies (name, address, contact, business_line, email, phone)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT ((lower(name))) DO NOTHING`,
				c.Name, c.Address, c.Contact, c.BusinessLine, c.Email, c.Phone,
			)
			if err != nil {
				return fmt.Errorf("failed to insert company %q: %w", c.Name, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DeleteAll は全企業を削除する。学生の割り当てはNULLに戻る。
func (r *PostgresCompanyRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM companies`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete companies: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
