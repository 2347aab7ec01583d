// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 1 << 20

// ErrorResponder はサービス層から返されたエラーをHTTPレスポンスに変換する。
type ErrorResponder struct {
	// ExposeDetails がtrueの場合、内部エラーの原因をdetails.errorに含める。本番環境ではfalse。
	ExposeDetails bool
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (e ErrorResponder) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	var cause error
	if e.ExposeDetails {
		cause = err
	}
	middleware.WriteErrorResponse(w, http.StatusInternalServerError, middleware.InternalError(cause))
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeStudentNotFound, model.ErrCodeAdminNotFound,
		model.ErrCodeCompanyNotFound, model.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidCode, model.ErrCodeExpiredCode, model.ErrCodeWeakPassword,
		model.ErrCodeInvalidRequest, model.ErrCodeInvalidStatus, model.ErrCodeInvalidFile:
		return http.StatusBadRequest
	case model.ErrCodeEmailNotVerified, model.ErrCodeAccountAlreadyActive,
		model.ErrCodeCompanyAlreadyAssigned, model.ErrCodeDuplicateAdmin, model.ErrCodeDuplicateCompany:
		return http.StatusConflict
	case model.ErrCodeAccountLocked, model.ErrCodeAccountLockedNow:
		return http.StatusLocked
	case model.ErrCodeCodeResendTooSoon:
		return http.StatusTooManyRequests
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// messageResponse は処理結果のメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// validatable はozzo-validationで検証できるリクエストボディ。
type validatable interface {
	Validate() error
}

// decodeRequest はJSONボディをdstに読み込み、検証する。
func decodeRequest(r *http.Request, dst validatable) *model.APIError {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize)).Decode(dst); err != nil {
		return model.NewInvalidRequestError("el cuerpo de la solicitud no es JSON válido")
	}
	if err := dst.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError は検証エラーをINVALID_REQUESTに変換する。フィールドごとの理由はdetails.fieldsに入る。
func validationError(err error) *model.APIError {
	apiErr := model.NewInvalidRequestError(err.Error())
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]any, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			fields[name] = fieldErr.Error()
		}
		apiErr.Details = map[string]any{"fields": fields}
	}
	return apiErr
}

// callerFrom はセッションミドルウェアが設定した主体を返す。
func callerFrom(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	}
	return p, ok
}

// idParam はURLパスの数値IDを取得する。不正な場合はINVALID_REQUESTを書き込む。
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("identificador no válido"))
		return 0, false
	}
	return id, true
}
