package notify

import (
	"context"
	"log/slog"
)

// LogNotifier は送信の代わりにログへ出力するNotifier。SMTP未設定の開発環境で使う。
// 認証コードはDEBUGレベルでのみ出力する。
type LogNotifier struct{}

// SendVerificationCode はNotifierを実装する。
func (LogNotifier) SendVerificationCode(ctx context.Context, to, name, code string) error {
	slog.InfoContext(ctx, "verification email not sent, smtp is not configured",
		slog.String("to", to),
	)
	slog.DebugContext(ctx, "verification code", slog.String("to", to), slog.String("code", code))
	return nil
}

// SendReviewOutcome はNotifierを実装する。
func (LogNotifier) SendReviewOutcome(ctx context.Context, to string, review ReviewOutcome) error {
	slog.InfoContext(ctx, "review email not sent, smtp is not configured",
		slog.String("to", to),
		slog.String("document", review.DocumentName),
		slog.String("status", review.Status),
	)
	return nil
}

var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = LogNotifier{}
)
