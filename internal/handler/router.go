package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/model"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	TokenParser        middleware.TokenParser
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	HealthChecker      HealthChecker
	Errors             ErrorResponder

	// 認証
	AuthService       AuthServiceInterface
	OnboardingService OnboardingServiceInterface

	// 業務
	CompanyService  CompanyServiceInterface
	ProgressService ProgressServiceInterface
	DocumentService DocumentServiceInterface
	ImportService   ImportServiceInterface
	AdminService    AdminServiceInterface

	MaxDocumentSize int64
	MaxImportSize   int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → SecurityHeaders → CORS
//	公開認証ルート: RateLimit(Auth)
//	保護ルート: Session → RateLimit(General) → RequireRole（必要な場合）
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.OnboardingService, deps.Errors)
	companyHandler := NewCompanyHandler(deps.CompanyService, deps.Errors)
	studentHandler := NewStudentHandler(deps.ProgressService, deps.Errors)
	documentHandler := NewDocumentHandler(deps.DocumentService, deps.MaxDocumentSize, deps.Errors)
	importHandler := NewImportHandler(deps.ImportService, deps.MaxImportSize, deps.Errors)
	adminHandler := NewAdminHandler(deps.AdminService, deps.Errors)

	privileged := middleware.RequireRole(model.RoleAdmin, model.RoleRoot)
	rootOnly := middleware.RequireRole(model.RoleRoot)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// ログインと初回登録（IP単位のレート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/api/auth/check-matricula", authHandler.CheckMatricula)
		r.Post("/api/auth/send-code", authHandler.SendCode)
		r.Post("/api/auth/verify-code", authHandler.VerifyCode)
		r.Post("/api/auth/set-password", authHandler.SetPassword)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/admin/login", authHandler.AdminLogin)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenParser))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/auth/me", authHandler.Me)

		// 企業カタログ
		r.Route("/api/companies", func(r chi.Router) {
			r.Get("/", companyHandler.ListCompanies)
			r.With(privileged).Post("/", companyHandler.CreateCompany)
			r.Get("/{id}", companyHandler.GetCompany)
		})

		// 学生の進捗
		r.Route("/api/students", func(r chi.Router) {
			r.With(privileged).Get("/", studentHandler.ListStudents)

			r.Route("/{matricula}", func(r chi.Router) {
				r.Get("/", studentHandler.GetStudent)
				r.Put("/company", studentHandler.SelectCompany)
				r.With(privileged).Put("/progress", studentHandler.UpdateProgress)
				r.With(privileged).Put("/notes", studentHandler.UpdateNotes)
			})
		})

		// 提出書類
		r.Route("/api/documents", func(r chi.Router) {
			r.Post("/upload", documentHandler.UploadDocument)
			r.Get("/student/{matricula}", documentHandler.ListStudentDocuments)

			r.Route("/{id}", func(r chi.Router) {
				r.With(privileged).Patch("/review", documentHandler.ReviewDocument)
				r.Get("/download", documentHandler.DownloadDocument)
			})
		})

		// Excel取込
		r.Route("/api/import", func(r chi.Router) {
			r.With(privileged).Post("/students", importHandler.ImportStudents)
			r.With(privileged).Post("/companies", importHandler.ImportCompanies)
			r.With(rootOnly).Delete("/students", importHandler.ClearStudents)
			r.With(rootOnly).Delete("/companies", importHandler.ClearCompanies)
		})

		// 管理者管理
		r.Route("/api/admins", func(r chi.Router) {
			r.Use(rootOnly)

			r.Get("/", adminHandler.ListAdmins)
			r.Post("/", adminHandler.CreateAdmin)
			r.Patch("/{id}/active", adminHandler.SetActive)
			r.Post("/{id}/unlock", adminHandler.Unlock)
		})
	})

	return r
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// healthHandler はDB疎通を含むヘルスチェックハンドラーを返す。checkerがnilの場合はプロセスの生存のみ返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
	}
}
