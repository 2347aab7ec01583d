// Package cleanup は期限切れ認証コードの定期削除ジョブを提供する。
// ロック状態はログイン時に期限を判定するため、このジョブでは扱わない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CodeStore は期限切れ認証コードの削除操作。
// repository.StudentRepositoryが満たす。
type CodeStore interface {
	ClearExpiredVerificationCodes(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超えて期限切れになった認証コードを削除するジョブ。
// 何度実行しても結果は変わらない。
type CleanupJob struct {
	store     CodeStore
	logger    *slog.Logger
	Retention time.Duration // 期限切れ後に残しておく期間（デフォルト: 24時間）
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store CodeStore, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		store:     store,
		logger:    logger,
		Retention: 24 * time.Hour,
		now:       time.Now,
	}
}

// Run は有効期限が現在時刻からRetention以上前の認証コードを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.Retention)

	deleted, err := j.store.ClearExpiredVerificationCodes(ctx, before)
	if err != nil {
		j.logger.Error("verification code cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("failed to clear expired verification codes: %w", err)
	}

	j.logger.Info("verification code cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はRunを起動直後に1回、以降interval毎に実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
