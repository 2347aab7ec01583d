// Package progress は学生のインターンシップ進捗（企業選択・ステータス・ステージ）を管理する。
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
	"github.com/hitoshi/estadias/internal/security"
)

// defaultStages はステータスごとの既定ステージ。Rechazadoは現在のステージを維持する。
var defaultStages = map[model.Status]string{
	model.StatusPending:          model.StageCompanyCatalog,
	model.StatusCompanySelected:  model.StageUpload1,
	model.StatusInitialSubmitted: model.StageInitialReview,
	model.StatusInitialReview:    model.StageInitialReview,
	model.StatusDocsGenerated:    model.StageDocsGenerated,
	model.StatusFinalSubmitted:   model.StageFinalReview,
	model.StatusFinalReview:      model.StageFinalReview,
	model.StatusFinished:         model.StageFinished,
	model.StatusRejected:         "",
}

// ValidStatus は定義済みのステータスかどうかを返す。
func ValidStatus(s model.Status) bool {
	_, ok := defaultStages[s]
	return ok
}

// DefaultStage はステータスに対応する既定ステージを返す。維持すべき場合は空文字列。
func DefaultStage(s model.Status) string {
	return defaultStages[s]
}

// Progress は学生と割り当て済み企業の組。
type Progress struct {
	Student *model.Student
	Company *model.Company
}

// Service は進捗管理のビジネスロジックを提供する。
// ステータス間の遷移順序は強制せず、定義済みの値であれば任意に設定できる。
type Service struct {
	students  repository.StudentRepository
	companies repository.CompanyRepository
	sanitizer security.NoteSanitizer
}

// NewService はServiceを生成する。
func NewService(students repository.StudentRepository, companies repository.CompanyRepository, sanitizer security.NoteSanitizer) *Service {
	return &Service{students: students, companies: companies, sanitizer: sanitizer}
}

// List は条件に一致する学生一覧を返す。
func (s *Service) List(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, model.NewInvalidStatusError(string(filter.Status))
	}
	students, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if students == nil {
		students = []*model.Student{}
	}
	return students, nil
}

// GetProgress は学生の進捗と割り当て済み企業を返す。学生は本人のみ参照できる。
func (s *Service) GetProgress(ctx context.Context, matricula string, caller model.Principal) (*Progress, error) {
	if !caller.CanAccessStudent(matricula) {
		return nil, model.NewForbiddenError()
	}

	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}

	p := &Progress{Student: student}
	if student.CompanyID != nil {
		company, err := s.companies.FindByID(ctx, *student.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to find company: %w", err)
		}
		p.Company = company
	}
	return p, nil
}

// SelectCompany は学生に企業を割り当てる。
// 学生本人は未割り当ての場合のみ選択でき、割り当て済みならCOMPANY_ALREADY_ASSIGNEDを返す。
// 管理者はいつでも割り当てを変更できる。
func (s *Service) SelectCompany(ctx context.Context, matricula string, companyID int64, caller model.Principal) (*Progress, error) {
	if !caller.CanAccessStudent(matricula) {
		return nil, model.NewForbiddenError()
	}

	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find company: %w", err)
	}
	if company == nil {
		return nil, model.NewCompanyNotFoundError()
	}

	privileged := caller.Role.IsPrivileged()
	if !privileged && student.CompanyID != nil {
		return nil, model.NewCompanyAlreadyAssignedError()
	}

	assigned, err := s.students.AssignCompany(ctx, student.Matricula, companyID, privileged)
	if err != nil {
		return nil, err
	}
	if !assigned {
		// 読み取り後に別リクエストが先に割り当てた
		return nil, model.NewCompanyAlreadyAssignedError()
	}

	slog.Info("company selected",
		slog.String("user_id", caller.ID),
		slog.String("matricula", student.Matricula),
		slog.Int64("company_id", companyID),
	)

	updated, err := s.find(ctx, student.Matricula)
	if err != nil {
		return nil, err
	}
	return &Progress{Student: updated, Company: company}, nil
}

// AdvanceStage はステータスとステージを設定する。stageが空の場合はステータスの既定ステージを使う。
func (s *Service) AdvanceStage(ctx context.Context, matricula string, status model.Status, stage string) (*model.Student, error) {
	if !ValidStatus(status) {
		return nil, model.NewInvalidStatusError(string(status))
	}

	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}

	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = DefaultStage(status)
	}
	if stage == "" {
		stage = student.CurrentStage
	}

	if err := s.students.UpdateProgress(ctx, student.Matricula, status, stage); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewStudentNotFoundError(matricula)
		}
		return nil, err
	}

	slog.Info("progress updated",
		slog.String("matricula", student.Matricula),
		slog.String("from_status", string(student.Status)),
		slog.String("to_status", string(status)),
		slog.String("stage", stage),
	)

	student.Status = status
	student.CurrentStage = stage
	return student, nil
}

// UpdateNotes は管理者メモを無害化して保存する。
func (s *Service) UpdateNotes(ctx context.Context, matricula, notes string) (*model.Student, error) {
	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}

	clean := s.sanitizer.Sanitize(notes)
	if err := s.students.UpdateNotes(ctx, student.Matricula, clean); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewStudentNotFoundError(matricula)
		}
		return nil, err
	}

	student.AdminNotes = clean
	return student, nil
}

func (s *Service) find(ctx context.Context, matricula string) (*model.Student, error) {
	student, err := s.students.FindByMatricula(ctx, strings.TrimSpace(matricula))
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, model.NewStudentNotFoundError(matricula)
	}
	return student, nil
}
