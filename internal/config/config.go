package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// App
	AppEnv   string
	LogLevel string

	// Database
	DatabaseURL string

	// Session token
	JWTSecret string
	TokenTTL  time.Duration

	// Root identity
	RootUsername string
	RootPassword string

	// Lockout
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Onboarding
	VerificationCodeTTL        time.Duration
	VerificationResendCooldown time.Duration
	MinPasswordLength          int

	// Mail
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	SMTPFrom        string
	SMTPImplicitTLS bool
	MailTimeout     time.Duration

	// Storage
	StorageBackend string
	UploadDir      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string

	// Redis
	RedisAddr     string
	RedisPassword string

	// Limits
	MaxDocumentSize int64
	MaxImportSize   int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Worker
	CleanupInterval time.Duration
	CodeRetention   time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigins []string
}

// IsProduction は本番環境かどうかを返す。
// 本番では内部エラーの詳細をレスポンスに含めない。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.RootPassword = os.Getenv("ROOT_PASSWORD")
	if cfg.RootPassword == "" {
		missing = append(missing, "ROOT_PASSWORD")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 8*time.Hour)
	cfg.RootUsername = getEnvString("ROOT_USERNAME", "root")
	cfg.LockoutThreshold = getEnvInt("LOCKOUT_THRESHOLD", 7)
	cfg.LockoutDuration = getEnvDuration("LOCKOUT_DURATION", 15*time.Minute)
	cfg.VerificationCodeTTL = getEnvDuration("VERIFICATION_CODE_TTL", 10*time.Minute)
	cfg.VerificationResendCooldown = getEnvDuration("VERIFICATION_RESEND_COOLDOWN", 60*time.Second)
	cfg.MinPasswordLength = getEnvInt("MIN_PASSWORD_LENGTH", 6)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", cfg.SMTPUser)
	cfg.SMTPImplicitTLS = getEnvBool("SMTP_IMPLICIT_TLS", false)
	cfg.MailTimeout = getEnvDuration("MAIL_TIMEOUT", 10*time.Second)
	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", "local")
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "./uploads")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.MaxDocumentSize = getEnvInt64("MAX_DOCUMENT_SIZE", 10<<20)
	cfg.MaxImportSize = getEnvInt64("MAX_IMPORT_SIZE", 20<<20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.CodeRetention = getEnvDuration("CODE_RETENTION", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "3001")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})

	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
