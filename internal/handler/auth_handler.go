package handler

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	AuthenticateStudent(ctx context.Context, matricula, password string) (*auth.Session, error)
	AuthenticateAdmin(ctx context.Context, username, password string) (*auth.Session, error)
	CurrentPrincipal(ctx context.Context, p model.Principal) (*auth.Profile, error)
}

// OnboardingServiceInterface は初回登録ハンドラーが必要とするサービスインターフェース。
type OnboardingServiceInterface interface {
	CheckIdentity(ctx context.Context, matricula string) (*auth.IdentityCheck, error)
	BeginEmailVerification(ctx context.Context, matricula, email string) error
	ConfirmCode(ctx context.Context, matricula, code string) error
	CompleteOnboarding(ctx context.Context, matricula, password string) (*auth.Session, error)
}

// AuthHandler はログインと初回登録のHTTPハンドラー。
type AuthHandler struct {
	service    AuthServiceInterface
	onboarding OnboardingServiceInterface
	errs       ErrorResponder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, onboarding OnboardingServiceInterface, errs ErrorResponder) *AuthHandler {
	return &AuthHandler{
		service:    service,
		onboarding: onboarding,
		errs:       errs,
	}
}

type checkMatriculaRequest struct {
	Matricula string `json:"matricula"`
}

func (r *checkMatriculaRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Matricula, validation.Required, validation.Length(1, 50)),
	)
}

type sendCodeRequest struct {
	Matricula string `json:"matricula"`
	Email     string `json:"email"`
}

func (r *sendCodeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Matricula, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

type verifyCodeRequest struct {
	Matricula string `json:"matricula"`
	Code      string `json:"code"`
}

func (r *verifyCodeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Matricula, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Code, validation.Required),
	)
}

// studentCredentialsRequest はset-passwordとloginで共通のボディ。
// パスワードの長さはサービス層でWEAK_PASSWORDとして検証する。
type studentCredentialsRequest struct {
	Matricula string `json:"matricula"`
	Password  string `json:"password"`
}

func (r *studentCredentialsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Matricula, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *adminLoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

// identityCheckResponse はmatricula確認のレスポンス。
// 登録済みのメールアドレスそのものは返さない。
type identityCheckResponse struct {
	Status          string `json:"status"`
	Name            string `json:"name"`
	Matricula       string `json:"matricula"`
	EmailAlreadySet bool   `json:"emailAlreadySet"`
	State           string `json:"state"`
}

// meResponse は/api/auth/meのレスポンス。
type meResponse struct {
	User    principalResponse `json:"user"`
	Student *studentResponse  `json:"student,omitempty"`
	Admin   *adminResponse    `json:"admin,omitempty"`
}

// CheckMatricula はmatriculaを確認し、ログインと初回登録のどちらに進むかを返す。
// POST /api/auth/check-matricula
func (h *AuthHandler) CheckMatricula(w http.ResponseWriter, r *http.Request) {
	var req checkMatriculaRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	check, err := h.onboarding.CheckIdentity(r.Context(), req.Matricula)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, identityCheckResponse{
		Status:          check.Route,
		Name:            check.Name,
		Matricula:       check.Matricula,
		EmailAlreadySet: check.EmailAlreadySet,
		State:           string(check.State),
	})
}

// SendCode はメールアドレスを登録し認証コードを送信する。
// POST /api/auth/send-code
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.onboarding.BeginEmailVerification(r.Context(), req.Matricula, req.Email); err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Código enviado a " + req.Email})
}

// VerifyCode は認証コードを照合する。
// POST /api/auth/verify-code
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.onboarding.ConfirmCode(r.Context(), req.Matricula, req.Code); err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Correo verificado correctamente"})
}

// SetPassword はパスワードを設定してアカウントを有効化し、セッションを返す。
// POST /api/auth/set-password
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req studentCredentialsRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	session, err := h.onboarding.CompleteOnboarding(r.Context(), req.Matricula, req.Password)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Login は学生のログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req studentCredentialsRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	session, err := h.service.AuthenticateStudent(r.Context(), req.Matricula, req.Password)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// AdminLogin は管理者とROOTのログインを処理する。
// POST /api/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if apiErr := decodeRequest(r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	session, err := h.service.AuthenticateAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Me は現在の認証済み主体と最新の登録情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	profile, err := h.service.CurrentPrincipal(r.Context(), caller)
	if err != nil {
		h.errs.handleServiceError(w, err)
		return
	}

	resp := meResponse{User: toPrincipalResponse(profile.Principal)}
	if profile.Student != nil {
		s := toStudentResponse(profile.Student)
		resp.Student = &s
	}
	if profile.Admin != nil {
		a := toAdminResponse(profile.Admin)
		resp.Admin = &a
	}
	writeJSON(w, http.StatusOK, resp)
}
