package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/hitoshi/estadias/internal/document"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

const (
	// multipartOverhead はファイル本体以外のmultipartフィールドに許す余裕。
	multipartOverhead = 1 << 20
	// multipartMemory はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルになる。
	multipartMemory = 8 << 20
)

// DocumentServiceInterface は書類ハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	Upload(ctx context.Context, caller model.Principal, in document.Upload) (*model.Document, error)
	List(ctx context.Context, caller model.Principal, matricula, stage string) ([]*model.Document, error)
	Review(ctx context.Context, caller model.Principal, id int64, status model.DocumentStatus, note string) (*model.Document, error)
	Open(ctx context.Context, caller model.Principal, id int64) (*document.File, error)
}

// DocumentHandler は提出書類のHTTPハンドラー。
type DocumentHandler struct {
	service DocumentServiceInterface
	maxSize int64
	errs    ErrorResponder
}

// NewDocumentHandler はDocumentHandlerを生成する。maxSizeは1ファイルの上限バイト数。
func NewDocumentHandler(service DocumentServiceInterface, maxSize int64, errs ErrorResponder) *DocumentHandler {
	return &DocumentHandler{service: service, maxSize: maxSize, errs: errs}
}

type reviewDocumentRequest struct {
	Status     string `json:"status"`
	ReviewNote string `json:"reviewNote"`
}

func (r *reviewDocumentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.ReviewNote, validation.Length(0, 2000)),
	)
}

// UploadDocument はmultipartフォームの書類を保存する。
// POST /api/documents/upload (matricula, stage, documentName, file)
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

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

	doc, err := h.service.Upload(r.Context(), caller, document.Upload{
		Matricula:    r.FormValue("matricula"),
		Stage:        r.FormValue("stage"),
		DocumentName: r.FormValue("documentName"),
		Filename:     header.Filename,
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// ListStudentDocuments は学生の書類一覧を返す。?stage=でステージを絞り込める。
// GET /api/documents/student/{matricula}
func (h *DocumentHandler) ListStudentDocuments(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	docs, err := h.service.List(r.Context(), caller, chi.URLParam(r, "matricula"), r.URL.Query().Get("stage"))
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	resp := make([]documentResponse, len(docs))
	for i, d := range docs {
		resp[i] = toDocumentResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReviewDocument は書類の審査結果を保存する。
// PATCH /api/documents/{id}/review
func (h *DocumentHandler) ReviewDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req reviewDocumentRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	doc, err := h.service.Review(r.Context(), caller, id, model.DocumentStatus(req.Status), req.ReviewNote)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// DownloadDocument は書類ファイルを返す。
// GET /api/documents/{id}/download
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	f, err := h.service.Open(r.Context(), caller, id)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}
	defer f.Body.Close()

	contentType := f.Document.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Document.Filename}))
	if f.Document.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Document.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f.Body); err != nil {
		slog.Warn("document download interrupted",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// multipartError はmultipartの解析エラーをINVALID_FILEに変換する。
func multipartError(err error, maxSize int64) *model.APIError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return model.NewInvalidFileError("el archivo supera el tamaño máximo de " + strconv.FormatInt(maxSize, 10) + " bytes")
	}
	return model.NewInvalidFileError("el formulario multipart no es válido")
}
