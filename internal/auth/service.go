// Package auth はロックアウト付きのログイン、オンボーディング、セッショントークン発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	Policy       LockoutPolicy
	RootUsername string
	RootPassword string
}

// Service はログイン認証に関するビジネスロジックを提供する。
type Service struct {
	students repository.StudentRepository
	admins   repository.AdminRepository
	hasher   *PasswordHasher
	tokens   *TokenIssuer
	policy   LockoutPolicy
	root     RootIdentity
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	students repository.StudentRepository,
	admins repository.AdminRepository,
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	config ServiceConfig,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		students: students,
		admins:   admins,
		hasher:   hasher,
		tokens:   tokens,
		policy:   config.Policy,
		root:     RootIdentity{Username: config.RootUsername, Password: config.RootPassword},
		metrics:  mc,
		now:      time.Now,
	}
}

// lockStore は認証対象ごとのロック状態の永続化操作。
type lockStore struct {
	update func(ctx context.Context, fn repository.LockUpdateFunc) error
	reset  func(ctx context.Context) error
}

// AuthenticateStudent は学生をmatriculaとパスワードで認証し、セッションを発行する。
// 存在しない学生は残り回数を含まない汎用エラーを返す。
// パスワード未設定の学生は失敗として数えるが、応答は同じ汎用エラーとする。
func (s *Service) AuthenticateStudent(ctx context.Context, matricula, password string) (*Session, error) {
	matricula = strings.TrimSpace(matricula)

	student, err := s.students.FindByMatricula(ctx, matricula)
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	if student == nil {
		s.metrics.RecordLogin(string(model.RoleStudent), string(DecisionFail))
		return nil, model.NewInvalidCredentialsError(0)
	}

	ident := StudentIdentity{Student: student, hasher: s.hasher}
	store := lockStore{
		update: func(ctx context.Context, fn repository.LockUpdateFunc) error {
			return s.students.UpdateLockState(ctx, student.Matricula, fn)
		},
		reset: func(ctx context.Context) error {
			return s.students.ResetLockState(ctx, student.Matricula)
		},
	}
	return s.authenticate(ctx, ident, password, store, !student.HasCredential())
}

// AuthenticateAdmin は管理者またはROOTをユーザー名とパスワードで認証し、セッションを発行する。
// ROOTは設定値と照合し、ロックアウトの対象外とする。
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)

	if s.root.matchesUsername(username) && s.root.VerifyCredential(password) {
		return s.authenticate(ctx, s.root, password, lockStore{}, false)
	}

	admin, err := s.admins.FindActiveByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		s.metrics.RecordLogin(string(model.RoleAdmin), string(DecisionFail))
		return nil, model.NewInvalidCredentialsError(0)
	}

	ident := AdminIdentity{Admin: admin, hasher: s.hasher}
	store := lockStore{
		update: func(ctx context.Context, fn repository.LockUpdateFunc) error {
			return s.admins.UpdateLockState(ctx, admin.ID, fn)
		},
		reset: func(ctx context.Context) error {
			return s.admins.ResetLockState(ctx, admin.ID)
		},
	}
	return s.authenticate(ctx, ident, password, store, false)
}

// authenticate はロック判定、認証情報の照合、失敗回数の更新、セッション発行を行う。
// ロック中の場合は認証情報を照合しない。genericがtrueの場合は失敗時に残り回数を返さない。
func (s *Service) authenticate(ctx context.Context, ident Identity, password string, store lockStore, generic bool) (*Session, error) {
	now := s.now()
	principal := ident.Principal()
	role := string(principal.Role)

	state, lockable := ident.CurrentLockState()
	if lockable {
		if out := s.policy.Check(state, now); out.Decision == DecisionLocked {
			s.metrics.RecordLogin(role, string(DecisionLocked))
			return nil, model.NewAccountLockedError(out.MinutesRemaining, out.LockUntil)
		}
	}

	if !ident.VerifyCredential(password) {
		if !lockable {
			s.metrics.RecordLogin(role, string(DecisionFail))
			return nil, model.NewInvalidCredentialsError(0)
		}
		return nil, s.recordFailure(ctx, principal, store, generic)
	}

	if lockable && (state.Attempts > 0 || state.LockUntil != nil) {
		if err := store.reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset lock state: %w", err)
		}
	}

	session, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(role, string(DecisionSucceed))
	slog.Info("login succeeded",
		slog.String("user_id", principal.ID),
		slog.String("role", role),
	)
	return session, nil
}

// recordFailure は行ロック下で失敗回数を更新し、判定結果に応じたエラーを返す。
// 同時に失敗した複数リクエストでも回数の取りこぼしは起きない。
func (s *Service) recordFailure(ctx context.Context, principal model.Principal, store lockStore, generic bool) error {
	now := s.now()
	var outcome Outcome

	err := store.update(ctx, func(current model.LockState) (model.LockState, error) {
		var next model.LockState
		next, outcome = s.policy.Fail(current, now)
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}

	role := string(principal.Role)
	s.metrics.RecordLogin(role, string(outcome.Decision))

	switch outcome.Decision {
	case DecisionLocked:
		return model.NewAccountLockedError(outcome.MinutesRemaining, outcome.LockUntil)
	case DecisionLockNow:
		s.metrics.RecordLockout(role)
		slog.Warn("account locked after repeated failures",
			slog.String("user_id", principal.ID),
			slog.String("role", role),
			slog.Time("lock_until", outcome.LockUntil),
		)
		return model.NewAccountLockedNowError(outcome.MinutesRemaining)
	default:
		if generic {
			return model.NewInvalidCredentialsError(0)
		}
		return model.NewInvalidCredentialsError(outcome.AttemptsRemaining)
	}
}

// Profile は/api/auth/meで返す認証済み主体と最新の登録情報。
type Profile struct {
	Principal model.Principal
	Student   *model.Student
	Admin     *model.Admin
}

// CurrentPrincipal はトークンの主体に対応する最新の登録情報を返す。
// 学生・管理者が削除または無効化されている場合はUNAUTHORIZEDを返す。
func (s *Service) CurrentPrincipal(ctx context.Context, p model.Principal) (*Profile, error) {
	profile := &Profile{Principal: p}

	switch p.Role {
	case model.RoleStudent:
		student, err := s.students.FindByMatricula(ctx, p.Matricula)
		if err != nil {
			return nil, fmt.Errorf("failed to find student: %w", err)
		}
		if student == nil {
			return nil, model.NewUnauthorizedError()
		}
		profile.Student = student
	case model.RoleAdmin:
		admin, err := s.admins.FindByID(ctx, p.AdminID)
		if err != nil {
			return nil, fmt.Errorf("failed to find admin: %w", err)
		}
		if admin == nil || !admin.IsActive {
			return nil, model.NewUnauthorizedError()
		}
		profile.Admin = admin
	}

	return profile, nil
}

// ParseToken はセッショントークンを検証して主体を返す。
func (s *Service) ParseToken(token string) (model.Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return model.Principal{}, err
	}
	return claims.Principal(), nil
}
