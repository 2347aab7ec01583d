package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/estadias/internal/importer"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// ImportServiceInterface はExcel取込ハンドラーが必要とするサービスインターフェース。
type ImportServiceInterface interface {
	ImportStudents(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)
	ImportCompanies(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)
	ClearStudents(ctx context.Context, caller model.Principal) (int64, error)
	ClearCompanies(ctx context.Context, caller model.Principal) (int64, error)
}

// ImportHandler はExcel取込と一括削除のHTTPハンドラー。
type ImportHandler struct {
	service ImportServiceInterface
	maxSize int64
	errs    ErrorResponder
}

// NewImportHandler はImportHandlerを生成する。maxSizeは取込ファイルの上限バイト数。
func NewImportHandler(service ImportServiceInterface, maxSize int64, errs ErrorResponder) *ImportHandler {
	return &ImportHandler{service: service, maxSize: maxSize, errs: errs}
}

// clearResponse は一括削除のレスポンス。
type clearResponse struct {
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

type importFunc func(ctx context.Context, filename string, r io.Reader) (*importer.Result, error)

// ImportStudents は学生のExcelファイルを取り込む。
// POST /api/import/students (multipart: file)
func (h *ImportHandler) ImportStudents(w http.ResponseWriter, r *http.Request) {
	h.importFile(w, r, h.service.ImportStudents)
}

// ImportCompanies は企業のExcelファイルを取り込む。
// POST /api/import/companies (multipart: file)
func (h *ImportHandler) ImportCompanies(w http.ResponseWriter, r *http.Request) {
	h.importFile(w, r, h.service.ImportCompanies)
}

func (h *ImportHandler) importFile(w http.ResponseWriter, r *http.Request, run importFunc) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, multipartError(err, h.maxSize))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidFileError("se requiere el campo file"))
		return
	}
	defer file.Close()

	result, err := run(r.Context(), header.Filename, file)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearStudents は全学生を削除する。ROOTのみ。
// DELETE /api/import/students
func (h *ImportHandler) ClearStudents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearStudents(r.Context(), caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Message: "Alumnos eliminados", Deleted: n})
}

// ClearCompanies は全企業を削除する。ROOTのみ。
// DELETE /api/import/companies
func (h *ImportHandler) ClearCompanies(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearCompanies(r.Context(), caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Message: "Empresas eliminadas", Deleted: n})
}
