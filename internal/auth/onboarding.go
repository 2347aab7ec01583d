package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
)

// OnboardingState は学生のアカウント登録の進行状態を表す。
type OnboardingState string

const (
	StateUnregistered     OnboardingState = "UNREGISTERED"
	StateAwaitingEmail    OnboardingState = "AWAITING_EMAIL"
	StateAwaitingCode     OnboardingState = "AWAITING_CODE"
	StateAwaitingPassword OnboardingState = "AWAITING_PASSWORD"
	StateActive           OnboardingState = "ACTIVE"
)

// OnboardingStateOf は学生レコードから登録状態を導出する。nilはUNREGISTERED。
func OnboardingStateOf(s *model.Student) OnboardingState {
	switch {
	case s == nil:
		return StateUnregistered
	case s.HasCredential() && !s.IsFirstLogin:
		return StateActive
	case s.EmailVerified:
		return StateAwaitingPassword
	case s.VerificationCode != "":
		return StateAwaitingCode
	default:
		return StateAwaitingEmail
	}
}

// 画面遷移先。
const (
	RouteLogin      = "login"
	RouteOnboarding = "onboarding"
)

// IdentityCheck はmatricula確認の結果。
type IdentityCheck struct {
	Exists          bool
	HasCredential   bool
	Route           string
	Name            string
	Matricula       string
	EmailAlreadySet bool
	State           OnboardingState
}

// VerificationSender は認証コードを学生に届ける。
type VerificationSender interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
}

// ResendLimiter は認証コードの再送間隔を制限する。
// 許可しない場合は次に送信できるまでの残り時間を返す。
// Releaseはコードを届けられなかった場合に間隔を取り消す。
type ResendLimiter interface {
	Allow(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
	Release(ctx context.Context, key string) error
}

// OnboardingConfig はオンボーディングの設定。
type OnboardingConfig struct {
	CodeTTL           time.Duration
	ResendCooldown    time.Duration
	MailTimeout       time.Duration
	MinPasswordLength int
}

// OnboardingService はメール認証とパスワード設定による初回登録を提供する。
type OnboardingService struct {
	students repository.StudentRepository
	hasher   *PasswordHasher
	tokens   *TokenIssuer
	sender   VerificationSender
	limiter  ResendLimiter
	config   OnboardingConfig
	metrics  metrics.MetricsCollector
	generate CodeGenerator
	now      func() time.Time
}

// NewOnboardingService はOnboardingServiceを生成する。
// limiterがnilの場合は再送間隔を制限しない。
func NewOnboardingService(
	students repository.StudentRepository,
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	sender VerificationSender,
	limiter ResendLimiter,
	config OnboardingConfig,
	mc metrics.MetricsCollector,
) *OnboardingService {
	if config.CodeTTL <= 0 {
		config.CodeTTL = 10 * time.Minute
	}
	if config.MailTimeout <= 0 {
		config.MailTimeout = 10 * time.Second
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = 6
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &OnboardingService{
		students: students,
		hasher:   hasher,
		tokens:   tokens,
		sender:   sender,
		limiter:  limiter,
		config:   config,
		metrics:  mc,
		generate: GenerateVerificationCode,
		now:      time.Now,
	}
}

// CheckIdentity はmatriculaが登録済みかを確認し、ログインと初回登録のどちらに進むかを返す。
func (s *OnboardingService) CheckIdentity(ctx context.Context, matricula string) (*IdentityCheck, error) {
	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}

	state := OnboardingStateOf(student)
	route := RouteOnboarding
	if state == StateActive {
		route = RouteLogin
	}

	return &IdentityCheck{
		Exists:          true,
		HasCredential:   student.HasCredential(),
		Route:           route,
		Name:            student.Name,
		Matricula:       student.Matricula,
		EmailAlreadySet: student.Email != "",
		State:           state,
	}, nil
}

// BeginEmailVerification はメールアドレスを登録し、6桁の認証コードを送信する。
// 以前のコードは無効になる。送信に失敗した場合はコードを削除してエラーを返す。
func (s *OnboardingService) BeginEmailVerification(ctx context.Context, matricula, email string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return model.NewInvalidRequestError("correo electrónico no válido")
	}

	student, err := s.find(ctx, matricula)
	if err != nil {
		return err
	}
	if OnboardingStateOf(student) == StateActive {
		return model.NewAccountAlreadyActiveError()
	}

	release := func() {}
	if s.limiter != nil && s.config.ResendCooldown > 0 {
		key := "verification:" + strings.ToLower(student.Matricula)
		ok, wait, err := s.limiter.Allow(ctx, key, s.config.ResendCooldown)
		switch {
		case err != nil:
			// 制限用ストアの障害では送信を止めない
			slog.Warn("resend limiter unavailable", slog.String("error", err.Error()))
		case !ok:
			return model.NewCodeResendTooSoonError(int((wait + time.Second - 1) / time.Second))
		default:
			release = func() { s.releaseCooldown(ctx, key) }
		}
	}

	code, err := s.generate()
	if err != nil {
		release()
		return err
	}
	expires := s.now().Add(s.config.CodeTTL)

	if err := s.students.SaveVerificationCode(ctx, student.Matricula, email, code, expires); err != nil {
		release()
		return fmt.Errorf("failed to save verification code: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.MailTimeout)
	defer cancel()

	if err := s.sender.SendVerificationCode(sendCtx, email, student.Name, code); err != nil {
		s.metrics.RecordVerificationCode(false)
		s.metrics.RecordNotificationFailure("verification_code")
		if clearErr := s.students.ClearVerificationCode(ctx, student.Matricula); clearErr != nil {
			slog.Error("failed to clear undelivered verification code",
				slog.String("user_id", student.Matricula),
				slog.String("error", clearErr.Error()),
			)
		}
		release()
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	s.metrics.RecordVerificationCode(true)
	slog.Info("verification code issued",
		slog.String("user_id", student.Matricula),
		slog.Time("expires_at", expires),
	)
	return nil
}

// ConfirmCode は認証コードを照合し、メールアドレスを確認済みにする。
// 有効期限と同時刻以降は期限切れとして扱う。
func (s *OnboardingService) ConfirmCode(ctx context.Context, matricula, code string) error {
	student, err := s.find(ctx, matricula)
	if err != nil {
		return err
	}
	if OnboardingStateOf(student) == StateActive {
		return model.NewAccountAlreadyActiveError()
	}

	code = strings.TrimSpace(code)
	if student.VerificationCode == "" || code != student.VerificationCode {
		return model.NewInvalidCodeError()
	}
	if student.VerificationCodeExpires == nil || !s.now().Before(*student.VerificationCodeExpires) {
		return model.NewExpiredCodeError()
	}

	if err := s.students.MarkEmailVerified(ctx, student.Matricula); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	slog.Info("email verified", slog.String("user_id", student.Matricula))
	return nil
}

// CompleteOnboarding はパスワードを設定してアカウントを有効化し、そのままログインさせる。
func (s *OnboardingService) CompleteOnboarding(ctx context.Context, matricula, password string) (*Session, error) {
	if !MeetsMinLength(password, s.config.MinPasswordLength) {
		return nil, model.NewWeakPasswordError(s.config.MinPasswordLength)
	}

	student, err := s.find(ctx, matricula)
	if err != nil {
		return nil, err
	}
	switch OnboardingStateOf(student) {
	case StateActive:
		return nil, model.NewAccountAlreadyActiveError()
	case StateAwaitingPassword:
	default:
		return nil, model.NewEmailNotVerifiedError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.students.SetPassword(ctx, student.Matricula, hash); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, model.NewEmailNotVerifiedError()
		}
		return nil, fmt.Errorf("failed to set password: %w", err)
	}

	session, err := s.tokens.Issue(StudentIdentity{Student: student}.Principal())
	if err != nil {
		return nil, err
	}

	slog.Info("onboarding completed", slog.String("user_id", student.Matricula))
	return session, nil
}

// releaseCooldown は届かなかったコードの再送間隔を取り消す。失敗はログのみ。
func (s *OnboardingService) releaseCooldown(ctx context.Context, key string) {
	if err := s.limiter.Release(ctx, key); err != nil {
		slog.Warn("failed to release resend cooldown",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// find は前後の空白を除いたmatriculaで学生を取得する。存在しない場合はSTUDENT_NOT_FOUND。
func (s *OnboardingService) find(ctx context.Context, matricula string) (*model.Student, error) {
	matricula = strings.TrimSpace(matricula)
	if matricula == "" {
		return nil, model.NewInvalidRequestError("la matrícula es obligatoria")
	}
	student, err := s.students.FindByMatricula(ctx, matricula)
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	if student == nil {
		return nil, model.NewStudentNotFoundError(matricula)
	}
	return student, nil
}
