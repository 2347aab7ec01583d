// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, onboarding, validation, progress, document, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 残り試行回数やロック残り時間などの付加情報
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeStudentNotFound        = "STUDENT_NOT_FOUND"
	ErrCodeAdminNotFound          = "ADMIN_NOT_FOUND"
	ErrCodeCompanyNotFound        = "COMPANY_NOT_FOUND"
	ErrCodeDocumentNotFound       = "DOCUMENT_NOT_FOUND"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeInvalidCode            = "INVALID_CODE"
	ErrCodeExpiredCode            = "EXPIRED_CODE"
	ErrCodeWeakPassword           = "WEAK_PASSWORD"
	ErrCodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	ErrCodeAccountAlreadyActive   = "ACCOUNT_ALREADY_ACTIVE"
	ErrCodeCompanyAlreadyAssigned = "COMPANY_ALREADY_ASSIGNED"
	ErrCodeAccountLocked          = "ACCOUNT_LOCKED"
	ErrCodeAccountLockedNow       = "ACCOUNT_LOCKED_NOW"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeInvalidStatus          = "INVALID_STATUS"
	ErrCodeInvalidFile            = "INVALID_FILE"
	ErrCodeCodeResendTooSoon      = "CODE_RESEND_TOO_SOON"
	ErrCodeDuplicateAdmin         = "DUPLICATE_ADMIN"
	ErrCodeDuplicateCompany       = "DUPLICATE_COMPANY"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewStudentNotFoundError は学生未検出エラーを生成する。
func NewStudentNotFoundError(matricula string) *APIError {
	return &APIError{
		Code:     ErrCodeStudentNotFound,
		Message:  fmt.Sprintf("No se encontró la matrícula %s.", matricula),
		Category: "auth",
		Action:   "Verifica tu matrícula o contacta a la coordinación de estadías.",
	}
}

// NewAdminNotFoundError は管理者未検出エラーを生成する。
func NewAdminNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminNotFound,
		Message:  "No se encontró el administrador.",
		Category: "auth",
		Action:   "Verifica el identificador del administrador.",
	}
}

// NewCompanyNotFoundError は企業未検出エラーを生成する。
func NewCompanyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCompanyNotFound,
		Message:  "La empresa seleccionada no existe.",
		Category: "progress",
		Action:   "Selecciona una empresa del catálogo.",
	}
}

// NewDocumentNotFoundError は書類未検出エラーを生成する。
func NewDocumentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  "No se encontró el documento.",
		Category: "document",
		Action:   "Actualiza la lista de documentos.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// アカウントの存在有無は区別しない。attemptsLeftが0以下の場合は残り回数を含めない。
func NewInvalidCredentialsError(attemptsLeft int) *APIError {
	e := &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Credenciales incorrectas.",
		Category: "auth",
		Action:   "Verifica tus datos e inténtalo de nuevo.",
	}
	if attemptsLeft > 0 {
		e.Message = fmt.Sprintf("Credenciales incorrectas. Te quedan %d intentos.", attemptsLeft)
		e.Details = map[string]any{"attemptsLeft": attemptsLeft}
	}
	return e
}

// NewInvalidCodeError は認証コード不一致エラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "El código de verificación es incorrecto.",
		Category: "onboarding",
		Action:   "Revisa el código enviado a tu correo.",
	}
}

// NewExpiredCodeError は認証コード期限切れエラーを生成する。
func NewExpiredCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeExpiredCode,
		Message:  "El código de verificación ha expirado.",
		Category: "onboarding",
		Action:   "Solicita un nuevo código.",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("La contraseña debe tener al menos %d caracteres.", minLength),
		Category: "validation",
		Action:   "Elige una contraseña más larga.",
		Details:  map[string]any{"minLength": minLength},
	}
}

// NewEmailNotVerifiedError はメール未確認のままパスワード設定を試みた場合のエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Debes verificar tu correo antes de crear una contraseña.",
		Category: "onboarding",
		Action:   "Completa la verificación de correo.",
	}
}

// NewAccountAlreadyActiveError は登録済みアカウントでオンボーディングを試みた場合のエラーを生成する。
func NewAccountAlreadyActiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountAlreadyActive,
		Message:  "La cuenta ya está activa.",
		Category: "onboarding",
		Action:   "Inicia sesión con tu contraseña.",
	}
}

// NewCompanyAlreadyAssignedError は企業選択済みエラーを生成する。
func NewCompanyAlreadyAssignedError() *APIError {
	return &APIError{
		Code:     ErrCodeCompanyAlreadyAssigned,
		Message:  "Ya tienes una empresa asignada.",
		Category: "progress",
		Action:   "Contacta a la coordinación para cambiar de empresa.",
	}
}

// NewAccountLockedError はロック中アカウントへの認証拒否エラーを生成する。
func NewAccountLockedError(minutes int, lockedUntil time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeAccountLocked,
		Message:  fmt.Sprintf("Cuenta bloqueada. Intenta de nuevo en %d minutos.", minutes),
		Category: "auth",
		Action:   "Espera a que termine el bloqueo.",
		Details: map[string]any{
			"minutes":     minutes,
			"lockedUntil": lockedUntil.UTC().Format(time.RFC3339),
		},
	}
}

// NewAccountLockedNowError は今回の失敗でロックされた場合のエラーを生成する。
func NewAccountLockedNowError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeAccountLockedNow,
		Message:  fmt.Sprintf("Demasiados intentos fallidos. Cuenta bloqueada por %d minutos.", minutes),
		Category: "auth",
		Action:   "Espera a que termine el bloqueo.",
		Details:  map[string]any{"lockedFor": minutes},
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Solicitud inválida: %s", reason),
		Category: "validation",
		Action:   "Revisa los datos enviados.",
	}
}

// NewInvalidStatusError は未定義のステータス指定エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Estatus no válido: %s", status),
		Category: "validation",
		Action:   "Selecciona un estatus de la lista.",
	}
}

// NewInvalidFileError はアップロードファイル不正エラーを生成する。
func NewInvalidFileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFile,
		Message:  fmt.Sprintf("Archivo no válido: %s", reason),
		Category: "document",
		Action:   "Revisa el tipo y el tamaño del archivo.",
	}
}

// NewCodeResendTooSoonError は認証コード再送間隔エラーを生成する。
func NewCodeResendTooSoonError(seconds int) *APIError {
	return &APIError{
		Code:     ErrCodeCodeResendTooSoon,
		Message:  fmt.Sprintf("Espera %d segundos antes de solicitar otro código.", seconds),
		Category: "onboarding",
		Action:   "Revisa tu bandeja de entrada mientras tanto.",
		Details:  map[string]any{"retryAfter": seconds},
	}
}

// NewDuplicateAdminError は管理者ユーザー名重複エラーを生成する。
func NewDuplicateAdminError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAdmin,
		Message:  fmt.Sprintf("El usuario %s ya existe.", username),
		Category: "validation",
		Action:   "Elige otro nombre de usuario.",
	}
}

// NewDuplicateCompanyError は企業名重複エラーを生成する。
func NewDuplicateCompanyError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCompany,
		Message:  fmt.Sprintf("La empresa %s ya está registrada.", name),
		Category: "validation",
		Action:   "Revisa el catálogo de empresas.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Se requiere autenticación.",
		Category: "auth",
		Action:   "Inicia sesión.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "No tienes permisos para realizar esta acción.",
		Category: "auth",
		Action:   "Contacta a un administrador.",
	}
}
