// Package admin は管理者アカウントの管理を提供する。すべての操作はROOTのみ実行できる。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
)

const maxUsernameLength = 50

// Service は管理者管理のサービス層。
type Service struct {
	admins       repository.AdminRepository
	hasher       *auth.PasswordHasher
	minLength    int
	rootUsername string
}

// NewService はServiceの新しいインスタンスを生成する。
// rootUsernameと同じユーザー名の管理者は作成できない。
func NewService(admins repository.AdminRepository, hasher *auth.PasswordHasher, minLength int, rootUsername string) *Service {
	return &Service{
		admins:       admins,
		hasher:       hasher,
		minLength:    minLength,
		rootUsername: rootUsername,
	}
}

// CreateInput は管理者作成の入力。
type CreateInput struct {
	Username string
	Password string
	Email    string
}

// Create は管理者を作成する。
func (s *Service) Create(ctx context.Context, caller model.Principal, in CreateInput) (*model.Admin, error) {
	if err := requireRoot(caller); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > maxUsernameLength || strings.ContainsAny(username, " \t\r\n") {
		return nil, model.NewInvalidRequestError("nombre de usuario no válido")
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, model.NewInvalidRequestError("correo electrónico no válido")
		}
	}
	if !auth.MeetsMinLength(in.Password, s.minLength) {
		return nil, model.NewWeakPasswordError(s.minLength)
	}
	if strings.EqualFold(username, s.rootUsername) {
		return nil, model.NewDuplicateAdminError(username)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	a := &model.Admin{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateAdminError(username)
		}
		return nil, fmt.Errorf("管理者の作成に失敗しました: %w", err)
	}

	slog.Info("管理者を作成しました",
		slog.String("user_id", caller.ID),
		slog.Int64("admin_id", a.ID),
		slog.String("username", a.Username),
	)
	return a, nil
}

// List は全管理者を返す。
func (s *Service) List(ctx context.Context, caller model.Principal) ([]*model.Admin, error) {
	if err := requireRoot(caller); err != nil {
		return nil, err
	}
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("管理者一覧の取得に失敗しました: %w", err)
	}
	if admins == nil {
		admins = []*model.Admin{}
	}
	return admins, nil
}

// SetActive は管理者の有効・無効を切り替える。無効な管理者はログインできない。
func (s *Service) SetActive(ctx context.Context, caller model.Principal, id int64, active bool) (*model.Admin, error) {
	if err := requireRoot(caller); err != nil {
		return nil, err
	}
	if err := s.admins.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAdminNotFoundError()
		}
		return nil, fmt.Errorf("管理者の更新に失敗しました: %w", err)
	}

	slog.Info("管理者の状態を変更しました",
		slog.String("user_id", caller.ID),
		slog.Int64("admin_id", id),
		slog.Bool("active", active),
	)
	return s.find(ctx, id)
}

// Unlock は管理者のログインロックを解除し、失敗回数をクリアする。
func (s *Service) Unlock(ctx context.Context, caller model.Principal, id int64) (*model.Admin, error) {
	if err := requireRoot(caller); err != nil {
		return nil, err
	}
	if err := s.admins.ResetLockState(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAdminNotFoundError()
		}
		return nil, fmt.Errorf("ロック解除に失敗しました: %w", err)
	}

	slog.Info("管理者のロックを解除しました",
		slog.String("user_id", caller.ID),
		slog.Int64("admin_id", id),
	)
	return s.find(ctx, id)
}

func (s *Service) find(ctx context.Context, id int64) (*model.Admin, error) {
	a, err := s.admins.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("管理者の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewAdminNotFoundError()
	}
	return a, nil
}

func requireRoot(caller model.Principal) error {
	if caller.Role != model.RoleRoot {
		return model.NewForbiddenError()
	}
	return nil
}
