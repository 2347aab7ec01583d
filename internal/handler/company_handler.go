package handler

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// CompanyServiceInterface は企業ハンドラーが必要とするサービスインターフェース。
type CompanyServiceInterface interface {
	List(ctx context.Context) ([]*model.Company, error)
	Get(ctx context.Context, id int64) (*model.Company, error)
	Create(ctx context.Context, caller model.Principal, c *model.Company) (*model.Company, error)
}

// CompanyHandler は企業カタログのHTTPハンドラー。
type CompanyHandler struct {
	service CompanyServiceInterface
	errs    ErrorResponder
}

// NewCompanyHandler はCompanyHandlerを生成する。
func NewCompanyHandler(service CompanyServiceInterface, errs ErrorResponder) *CompanyHandler {
	return &CompanyHandler{service: service, errs: errs}
}

type createCompanyRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Contact      string `json:"contact"`
	BusinessLine string `json:"businessLine"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

func (r *createCompanyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Address, validation.Length(0, 300)),
		validation.Field(&r.Contact, validation.Length(0, 200)),
		validation.Field(&r.BusinessLine, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Length(0, 254), is.Email),
		validation.Field(&r.Phone, validation.Length(0, 50)),
	)
}

// ListCompanies は企業一覧を返す。
// GET /api/companies
func (h *CompanyHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.List(r.Context())
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	resp := make([]companyResponse, len(companies))
	for i, c := range companies {
		resp[i] = toCompanyResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCompany は企業を1件返す。
// GET /api/companies/{id}
func (h *CompanyHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	company, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(company))
}

// CreateCompany は企業を登録する。
// POST /api/companies
func (h *CompanyHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req createCompanyRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	company, err := h.service.Create(r.Context(), caller, &model.Company{
		Name:         req.Name,
		Address:      req.Address,
		Contact:      req.Contact,
		BusinessLine: req.BusinessLine,
		Email:        req.Email,
		Phone:        req.Phone,
	})
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyResponse(company))
}
