package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/cache"
	"github.com/hitoshi/estadias/internal/config"
	"github.com/hitoshi/estadias/internal/notify"
	"github.com/hitoshi/estadias/internal/storage"
)

// newNotifier はSMTP_HOSTが設定されていればSMTP送信、なければログ出力のNotifierを返す。
func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST is not set, emails will only be logged")
		return notify.LogNotifier{}
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		From:        cfg.SMTPFrom,
		ImplicitTLS: cfg.SMTPImplicitTLS,
	})
}

// newResendLimiter は認証コード再送の間隔制限を返す。
// REDIS_ADDRが設定されていればインスタンス間で共有するRedis実装を使う。
// 戻り値のfuncは終了時に呼ぶ。
func newResendLimiter(cfg *config.Config) (auth.ResendLimiter, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCooldown(), func() {}
	}

	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// 起動は継続する。Allowのエラー時は送信を許可する。
		slog.Warn("redis is not reachable",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
	}

	return cache.NewRedisCooldown(client), func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}

// newFileStore はSTORAGE_BACKENDに応じた書類の保存先を返す。
func newFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	if cfg.StorageBackend == "s3" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}
