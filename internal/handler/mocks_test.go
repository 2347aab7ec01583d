package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/estadias/internal/admin"
	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/document"
	"github.com/hitoshi/estadias/internal/importer"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/progress"
)

// --- 主体 ---

var (
	studentCaller = model.Principal{ID: "A001", DisplayName: "Ana", Role: model.RoleStudent, Matricula: "A001"}
	adminCaller   = model.Principal{ID: "admin:3", DisplayName: "coord", Role: model.RoleAdmin, AdminID: 3, Username: "coord"}
	rootCaller    = model.Principal{ID: "root", DisplayName: "root", Role: model.RoleRoot, Username: "root"}
)

// withCaller は認証済み主体をコンテキストに設定したリクエストを返す。
func withCaller(r *http.Request, p model.Principal) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

var errDatabase = errors.New("connection refused")

// --- モック定義 ---

type mockAuthService struct {
	authenticateStudentFn func(ctx context.Context, matricula, password string) (*auth.Session, error)
	authenticateAdminFn   func(ctx context.Context, username, password string) (*auth.Session, error)
	currentPrincipalFn    func(ctx context.Context, p model.Principal) (*auth.Profile, error)
}

func (m *mockAuthService) AuthenticateStudent(ctx context.Context, matricula, password string) (*auth.Session, error) {
	if m.authenticateStudentFn != nil {
		return m.authenticateStudentFn(ctx, matricula, password)
	}
	return nil, model.NewInvalidCredentialsError(0)
}

func (m *mockAuthService) AuthenticateAdmin(ctx context.Context, username, password string) (*auth.Session, error) {
	if m.authenticateAdminFn != nil {
		return m.authenticateAdminFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError(0)
}

func (m *mockAuthService) CurrentPrincipal(ctx context.Context, p model.Principal) (*auth.Profile, error) {
	if m.currentPrincipalFn != nil {
		return m.currentPrincipalFn(ctx, p)
	}
	return &auth.Profile{Principal: p}, nil
}

type mockOnboardingService struct {
	checkIdentityFn      func(ctx context.Context, matricula string) (*auth.IdentityCheck, error)
	beginVerificationFn  func(ctx context.Context, matricula, email string) error
	confirmCodeFn        func(ctx context.Context, matricula, code string) error
	completeOnboardingFn func(ctx context.Context, matricula, password string) (*auth.Session, error)
}

func (m *mockOnboardingService) CheckIdentity(ctx context.Context, matricula string) (*auth.IdentityCheck, error) {
	if m.checkIdentityFn != nil {
		return m.checkIdentityFn(ctx, matricula)
	}
	return nil, model.NewStudentNotFoundError(matricula)
}

func (m *mockOnboardingService) BeginEmailVerification(ctx context.Context, matricula, email string) error {
	if m.beginVerificationFn != nil {
		return m.beginVerificationFn(ctx, matricula, email)
	}
	return nil
}

func (m *mockOnboardingService) ConfirmCode(ctx context.Context, matricula, code string) error {
	if m.confirmCodeFn != nil {
		return m.confirmCodeFn(ctx, matricula, code)
	}
	return nil
}

func (m *mockOnboardingService) CompleteOnboarding(ctx context.Context, matricula, password string) (*auth.Session, error) {
	if m.completeOnboardingFn != nil {
		return m.completeOnboardingFn(ctx, matricula, password)
	}
	return nil, model.NewEmailNotVerifiedError()
}

type mockCompanyService struct {
	listFn   func(ctx context.Context) ([]*model.Company, error)
	getFn    func(ctx context.Context, id int64) (*model.Company, error)
	createFn func(ctx context.Context, caller model.Principal, c *model.Company) (*model.Company, error)
}

func (m *mockCompanyService) List(ctx context.Context) ([]*model.Company, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.Company{}, nil
}

func (m *mockCompanyService) Get(ctx context.Context, id int64) (*model.Company, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewCompanyNotFoundError()
}

func (m *mockCompanyService) Create(ctx context.Context, caller model.Principal, c *model.Company) (*model.Company, error) {
	if m.createFn != nil {
		return m.createFn(ctx, caller, c)
	}
	c.ID = 1
	return c, nil
}

type mockProgressService struct {
	listFn          func(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error)
	getProgressFn   func(ctx context.Context, matricula string, caller model.Principal) (*progress.Progress, error)
	selectCompanyFn func(ctx context.Context, matricula string, companyID int64, caller model.Principal) (*progress.Progress, error)
	advanceStageFn  func(ctx context.Context, matricula string, status model.Status, stage string) (*model.Student, error)
	updateNotesFn   func(ctx context.Context, matricula, notes string) (*model.Student, error)
}

func (m *mockProgressService) List(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []*model.Student{}, nil
}

func (m *mockProgressService) GetProgress(ctx context.Context, matricula string, caller model.Principal) (*progress.Progress, error) {
	if m.getProgressFn != nil {
		return m.getProgressFn(ctx, matricula, caller)
	}
	return nil, model.NewStudentNotFoundError(matricula)
}

func (m *mockProgressService) SelectCompany(ctx context.Context, matricula string, companyID int64, caller model.Principal) (*progress.Progress, error) {
	if m.selectCompanyFn != nil {
		return m.selectCompanyFn(ctx, matricula, companyID, caller)
	}
	return nil, model.NewStudentNotFoundError(matricula)
}

func (m *mockProgressService) AdvanceStage(ctx context.Context, matricula string, status model.Status, stage string) (*model.Student, error) {
	if m.advanceStageFn != nil {
		return m.advanceStageFn(ctx, matricula, status, stage)
	}
	return nil, model.NewStudentNotFoundError(matricula)
}

func (m *mockProgressService) UpdateNotes(ctx context.Context, matricula, notes string) (*model.Student, error) {
	if m.updateNotesFn != nil {
		return m.updateNotesFn(ctx, matricula, notes)
	}
	return nil, model.NewStudentNotFoundError(matricula)
}

type mockDocumentService struct {
	uploadFn func(ctx context.Context, caller model.Principal, in document.Upload) (*model.Document, error)
	listFn   func(ctx context.Context, caller model.Principal, matricula, stage string) ([]*model.Document, error)
	reviewFn func(ctx context.Context, caller model.Principal, id int64, status model.DocumentStatus, note string) (*model.Document, error)
	openFn   func(ctx context.Context, caller model.Principal, id int64) (*document.File, error)
}

func (m *mockDocumentService) Upload(ctx context.Context, caller model.Principal, in document.Upload) (*model.Document, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, caller, in)
	}
	return nil, model.NewForbiddenError()
}

func (m *mockDocumentService) List(ctx context.Context, caller model.Principal, matricula, stage string) ([]*model.Document, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller, matricula, stage)
	}
	return []*model.Document{}, nil
}

func (m *mockDocumentService) Review(ctx context.Context, caller model.Principal, id int64, status model.DocumentStatus, note string) (*model.Document, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, caller, id, status, note)
	}
	return nil, model.NewDocumentNotFoundError()
}

func (m *mockDocumentService) Open(ctx context.Context, caller model.Principal, id int64) (*document.File, error) {
	if m.openFn != nil {
		return m.openFn(ctx, caller, id)
	}
	return nil, model.NewDocumentNotFoundError()
}

type mockImportService struct {
	importStudentsFn  func(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)
	importCompaniesFn func(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)
	clearStudentsFn   func(ctx context.Context, caller model.Principal) (int64, error)
	clearCompaniesFn  func(ctx context.Context, caller model.Principal) (int64, error)
}

func (m *mockImportService) ImportStudents(ctx context.Context, filename string, r io.Reader) (*importer.Result, error) {
	if m.importStudentsFn != nil {
		return m.importStudentsFn(ctx, filename, r)
	}
	return &importer.Result{}, nil
}

func (m *mockImportService) ImportCompanies(ctx context.Context, filename string, r io.Reader) (*importer.Result, error) {
	if m.importCompaniesFn != nil {
		return m.importCompaniesFn(ctx, filename, r)
	}
	return &importer.Result{}, nil
}

func (m *mockImportService) ClearStudents(ctx context.Context, caller model.Principal) (int64, error) {
	if m.clearStudentsFn != nil {
		return m.clearStudentsFn(ctx, caller)
	}
	return 0, nil
}

func (m *mockImportService) ClearCompanies(ctx context.Context, caller model.Principal) (int64, error) {
	if m.clearCompaniesFn != nil {
		return m.clearCompaniesFn(ctx, caller)
	}
	return 0, nil
}

type mockAdminService struct {
	listFn      func(ctx context.Context, caller model.Principal) ([]*model.Admin, error)
	createFn    func(ctx context.Context, caller model.Principal, in admin.CreateInput) (*model.Admin, error)
	setActiveFn func(ctx context.Context, caller model.Principal, id int64, active bool) (*model.Admin, error)
	unlockFn    func(ctx context.Context, caller model.Principal, id int64) (*model.Admin, error)
}

func (m *mockAdminService) List(ctx context.Context, caller model.Principal) ([]*model.Admin, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller)
	}
	return []*model.Admin{}, nil
}

func (m *mockAdminService) Create(ctx context.Context, caller model.Principal, in admin.CreateInput) (*model.Admin, error) {
	if m.createFn != nil {
		return m.createFn(ctx, caller, in)
	}
	return &model.Admin{ID: 1, Username: in.Username, Role: model.RoleAdmin, IsActive: true}, nil
}

func (m *mockAdminService) SetActive(ctx context.Context, caller model.Principal, id int64, active bool) (*model.Admin, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, caller, id, active)
	}
	return &model.Admin{ID: id, IsActive: active}, nil
}

func (m *mockAdminService) Unlock(ctx context.Context, caller model.Principal, id int64) (*model.Admin, error) {
	if m.unlockFn != nil {
		return m.unlockFn(ctx, caller, id)
	}
	return &model.Admin{ID: id}, nil
}
