package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/progress"
)

// ProgressServiceInterface は学生ハンドラーが必要とするサービスインターフェース。
type ProgressServiceInterface interface {
	List(ctx context.Context, filter model.StudentFilter) ([]*model.Student, error)
	GetProgress(ctx context.Context, matricula string, caller model.Principal) (*progress.Progress, error)
	SelectCompany(ctx context.Context, matricula string, companyID int64, caller model.Principal) (*progress.Progress, error)
	AdvanceStage(ctx context.Context, matricula string, status model.Status, stage string) (*model.Student, error)
	UpdateNotes(ctx context.Context, matricula, notes string) (*model.Student, error)
}

// StudentHandler は学生の進捗管理のHTTPハンドラー。
type StudentHandler struct {
	service ProgressServiceInterface
	errs    ErrorResponder
}

// NewStudentHandler はStudentHandlerを生成する。
func NewStudentHandler(service ProgressServiceInterface, errs ErrorResponder) *StudentHandler {
	return &StudentHandler{service: service, errs: errs}
}

type selectCompanyRequest struct {
	CompanyID int64 `json:"companyId"`
}

func (r *selectCompanyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CompanyID, validation.Required, validation.Min(1)),
	)
}

type updateProgressRequest struct {
	Status string `json:"status"`
	Stage  string `json:"stage"`
}

func (r *updateProgressRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.Stage, validation.Length(0, 100)),
	)
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

func (r *updateNotesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Notes, validation.Length(0, 5000)),
	)
}

// ListStudents は学生一覧を返す。?status=と?q=で絞り込める。
// GET /api/students
func (h *StudentHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	students, err := h.service.List(r.Context(), model.StudentFilter{
		Status: model.Status(q.Get("status")),
		Query:  q.Get("q"),
	})
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	resp := make([]studentResponse, len(students))
	for i, s := range students {
		resp[i] = toStudentResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStudent は学生の進捗と割り当て済み企業を返す。
// GET /api/students/{matricula}
func (h *StudentHandler) GetStudent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProgress(r.Context(), chi.URLParam(r, "matricula"), caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(p))
}

// SelectCompany は学生に企業を割り当てる。
// PUT /api/students/{matricula}/company
func (h *StudentHandler) SelectCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req selectCompanyRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	p, err := h.service.SelectCompany(r.Context(), chi.URLParam(r, "matricula"), req.CompanyID, caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(p))
}

// UpdateProgress はステータスとステージを更新する。
// PUT /api/students/{matricula}/progress
func (h *StudentHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req updateProgressRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	student, err := h.service.AdvanceStage(r.Context(), chi.URLParam(r, "matricula"), model.Status(req.Status), req.Stage)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(student))
}

// UpdateNotes は管理者メモを更新する。
// PUT /api/students/{matricula}/notes
func (h *StudentHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req updateNotesRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	student, err := h.service.UpdateNotes(r.Context(), chi.URLParam(r, "matricula"), req.Notes)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(student))
}
