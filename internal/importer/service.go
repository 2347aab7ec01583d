// Package importer はExcelファイルから学生名簿と企業カタログを取り込む。
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
)

// Result は取込結果。
type Result struct {
	Count   int `json:"count"`   // 取り込んだ行数
	Created int `json:"created"` // 新規作成数
	Updated int `json:"updated"` // 既存レコードの更新数
	Skipped int `json:"skipped"` // 必須項目がなく読み飛ばした行数
}

// Service はExcel取込とデータ一括削除を提供する。
type Service struct {
	students  repository.StudentRepository
	companies repository.CompanyRepository
	metrics   metrics.MetricsCollector
	maxSize   int64
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(students repository.StudentRepository, companies repository.CompanyRepository, maxSize int64, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{students: students, companies: companies, metrics: mc, maxSize: maxSize}
}

// ImportStudents は学生名簿を取り込む。既存の学生は学籍項目のみ更新し、
// 認証情報や進捗は変更しない。
func (s *Service) ImportStudents(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	rows, err := s.readRows(filename, r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var imports []model.StudentImport
	if len(rows) > 0 {
		index := headerIndex(rows[0], studentColumns)
		if _, ok := index["matricula"]; !ok {
			return nil, model.NewInvalidFileError("no se encontró la columna Matrícula")
		}
		for _, cells := range rows[1:] {
			rec := record{cells: cells, index: index}
			matricula := rec.get("matricula")
			name := rec.get("name")
			if matricula == "" || name == "" || matchesAlias(matricula, studentColumns[0].aliases) {
				result.Skipped++
				continue
			}
			imports = append(imports, model.StudentImport{
				Matricula:  matricula,
				Name:       name,
				CareerName: rec.get("career"),
				Grade:      rec.get("grade"),
				Group:      rec.get("group"),
				Shift:      rec.get("shift"),
				Generation: rec.get("generation"),
				Director:   rec.get("director"),
			})
		}
	}

	if len(imports) > 0 {
		created, updated, err := s.students.UpsertAcademic(ctx, imports)
		if err != nil {
			return nil, fmt.Errorf("failed to import students: %w", err)
		}
		result.Created = created
		result.Updated = updated
	}
	result.Count = len(imports)

	s.metrics.RecordImportedRows("students", result.Count)
	slog.Info("students imported",
		slog.Int("count", result.Count),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ImportCompanies は企業カタログを取り込む。名前が既存の企業と重複する行は無視する。
func (s *Service) ImportCompanies(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	rows, err := s.readRows(filename, r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var companies []*model.Company
	if len(rows) > 0 {
		index := headerIndex(rows[0], companyColumns)
		if _, ok := index["name"]; !ok {
			return nil, model.NewInvalidFileError("no se encontró la columna Empresa")
		}
		for _, cells := range rows[1:] {
			rec := record{cells: cells, index: index}
			name := rec.get("name")
			if name == "" {
				result.Skipped++
				continue
			}
			companies = append(companies, &model.Company{
				Name:         name,
				Address:      rec.get("address"),
				Contact:      rec.get("contact"),
				BusinessLine: rec.get("business_line"),
				Email:        rec.get("email"),
				Phone:        rec.get("phone"),
			})
		}
	}

	if len(companies) > 0 {
		inserted, err := s.companies.BulkInsertIgnoreDuplicates(ctx, companies)
		if err != nil {
			return nil, fmt.Errorf("failed to import companies: %w", err)
		}
		result.Created = inserted
	}
	result.Count = len(companies)

	s.metrics.RecordImportedRows("companies", result.Count)
	slog.Info("companies imported",
		slog.Int("count", result.Count),
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ClearStudents は全学生を削除する。ROOTのみ実行できる。
func (s *Service) ClearStudents(ctx context.Context, caller model.Principal) (int64, error) {
	if caller.Role != model.RoleRoot {
		return 0, model.NewForbiddenError()
	}
	n, err := s.students.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	slog.Warn("students table cleared", slog.String("user_id", caller.ID), slog.Int64("deleted", n))
	return n, nil
}

// ClearCompanies は全企業を削除する。ROOTのみ実行できる。
func (s *Service) ClearCompanies(ctx context.Context, caller model.Principal) (int64, error) {
	if caller.Role != model.RoleRoot {
		return 0, model.NewForbiddenError()
	}
	n, err := s.companies.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	slog.Warn("companies table cleared", slog.String("user_id", caller.ID), slog.Int64("deleted", n))
	return n, nil
}

// readRows はxlsxファイルの最初のシートを読み込む。
func (s *Service) readRows(filename string, r io.Reader) ([][]string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, model.NewInvalidFileError("solo se aceptan archivos .xlsx")
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 20 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, model.NewInvalidFileError(fmt.Sprintf("el archivo supera el tamaño máximo de %d bytes", limit))
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, model.NewInvalidFileError("no es un archivo Excel válido")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, model.NewInvalidFileError("no se pudo leer la hoja de cálculo")
	}
	return rows, nil
}
