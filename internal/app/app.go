package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/estadias/internal/admin"
	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/company"
	"github.com/hitoshi/estadias/internal/config"
	"github.com/hitoshi/estadias/internal/database"
	"github.com/hitoshi/estadias/internal/document"
	"github.com/hitoshi/estadias/internal/handler"
	"github.com/hitoshi/estadias/internal/importer"
	"github.com/hitoshi/estadias/internal/logger"
	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/middleware"
	"github.com/hitoshi/estadias/internal/progress"
	"github.com/hitoshi/estadias/internal/repository"
	"github.com/hitoshi/estadias/internal/security"
	"github.com/hitoshi/estadias/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envと環境変数から設定を読み込む
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3001"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
	)

	switch inv.Command {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, inv)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	studentRepo := repository.NewPostgresStudentRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	companyRepo := repository.NewPostgresCompanyRepo(db)
	documentRepo := repository.NewPostgresDocumentRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部リソース（メール、再送制限、ファイル保存）
	notifier := newNotifier(cfg)

	limiter, closeLimiter := newResendLimiter(cfg)
	defer closeLimiter()

	ctx := context.Background()
	store, err := newFileStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	// 5. ドメインサービスの初期化
	hasher := auth.NewPasswordHasher(0)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	sanitizer := security.NewNoteSanitizer()

	authService := auth.NewService(studentRepo, adminRepo, hasher, tokens, auth.ServiceConfig{
		Policy:       auth.NewLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutDuration),
		RootUsername: cfg.RootUsername,
		RootPassword: cfg.RootPassword,
	}, collector)

	onboardingService := auth.NewOnboardingService(studentRepo, hasher, tokens, notifier, limiter, auth.OnboardingConfig{
		CodeTTL:           cfg.VerificationCodeTTL,
		ResendCooldown:    cfg.VerificationResendCooldown,
		MailTimeout:       cfg.MailTimeout,
		MinPasswordLength: cfg.MinPasswordLength,
	}, collector)

	companyService := company.NewService(companyRepo)
	progressService := progress.NewService(studentRepo, companyRepo, sanitizer)
	documentService := document.NewService(documentRepo, studentRepo, store, notifier, sanitizer, cfg.MaxDocumentSize, collector)
	importService := importer.NewService(studentRepo, companyRepo, cfg.MaxImportSize, collector)
	adminService := admin.NewService(adminRepo, hasher, cfg.MinPasswordLength, cfg.RootUsername)

	// 6. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		TokenParser:        authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
		HealthChecker:      db,
		Errors:             handler.ErrorResponder{ExposeDetails: !cfg.IsProduction()},

		AuthService:       authService,
		OnboardingService: onboardingService,

		CompanyService:  companyService,
		ProgressService: progressService,
		DocumentService: documentService,
		ImportService:   importService,
		AdminService:    adminService,

		MaxDocumentSize: cfg.MaxDocumentSize,
		MaxImportSize:   cfg.MaxImportSize,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// WriteTimeoutは書類ダウンロードとExcel取込を考慮して長めにとる
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("storage", cfg.StorageBackend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れ認証コードのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresStudentRepo(db), slog.Default())
	cleanupJob.Retention = cfg.CodeRetention

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("code_retention", cfg.CodeRetention),
	)

	// メインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// up は未適用分をすべて適用し、down は指定ステップ数だけ取り消す。
func runMigrate(cfg *config.Config, inv Invocation) error {
	log := slog.With(
		slog.String("action", string(inv.Migrate)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch inv.Migrate {
	case MigrateDown:
		log.Info("rolling back database migrations", slog.Int("steps", inv.Steps))
		if err := database.RollbackMigrations(cfg.DatabaseURL, inv.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
	default:
		log.Info("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	v, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info("database schema version",
		slog.Uint64("version", uint64(v.Version)),
		slog.Bool("dirty", v.Dirty),
	)
	if v.Dirty {
		return fmt.Errorf("schema version %d is dirty, fix it manually", v.Version)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
