package handler

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/estadias/internal/admin"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// AdminServiceInterface は管理者管理ハンドラーが必要とするサービスインターフェース。
// 全操作はROOTのみ許可され、権限チェックはサービス層でも行う。
type AdminServiceInterface interface {
	List(ctx context.Context, caller model.Principal) ([]*model.Admin, error)
	Create(ctx context.Context, caller model.Principal, in admin.CreateInput) (*model.Admin, error)
	SetActive(ctx context.Context, caller model.Principal, id int64, active bool) (*model.Admin, error)
	Unlock(ctx context.Context, caller model.Principal, id int64) (*model.Admin, error)
}

// AdminHandler は管理者管理のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
	errs    ErrorResponder
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, errs ErrorResponder) *AdminHandler {
	return &AdminHandler{service: service, errs: errs}
}

type createAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r *createAdminRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.Email, validation.Length(0, 254), is.Email),
	)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (r *setActiveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Active, validation.NotNil),
	)
}

// ListAdmins は管理者一覧を返す。
// GET /api/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	admins, err := h.service.List(r.Context(), caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	resp := make([]adminResponse, len(admins))
	for i, a := range admins {
		resp[i] = toAdminResponse(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateAdmin は管理者を作成する。
// POST /api/admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req createAdminRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), caller, admin.CreateInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdminResponse(created))
}

// SetActive は管理者の有効・無効を切り替える。
// PATCH /api/admins/{id}/active
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	updated, err := h.service.SetActive(r.Context(), caller, id, *req.Active)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(updated))
}

// Unlock は管理者のログインロックを解除する。
// POST /api/admins/{id}/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Unlock(r.Context(), caller, id)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(updated))
}
