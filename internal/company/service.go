// Package company は企業カタログを提供する。
package company

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/repository"
)

// Service は企業カタログのサービス層。
type Service struct {
	companies repository.CompanyRepository
}

// NewService はServiceを生成する。
func NewService(companies repository.CompanyRepository) *Service {
	return &Service{companies: companies}
}

// List は全企業を名前順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Company, error) {
	companies, err := s.companies.List(ctx)
	if err != nil {
		return nil, err
	}
	if companies == nil {
		companies = []*model.Company{}
	}
	return companies, nil
}

// Get は企業を取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.Company, error) {
	c, err := s.companies.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewCompanyNotFoundError()
	}
	return c, nil
}

// Create は企業を登録する。管理者のみ実行できる。
func (s *Service) Create(ctx context.Context, caller model.Principal, c *model.Company) (*model.Company, error) {
	if !caller.Role.IsPrivileged() {
		return nil, model.NewForbiddenError()
	}

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, model.NewInvalidRequestError("el nombre de la empresa es obligatorio")
	}
	c.Address = strings.TrimSpace(c.Address)
	c.Contact = strings.TrimSpace(c.Contact)
	c.BusinessLine = strings.TrimSpace(c.BusinessLine)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)

	if err := s.companies.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateCompanyError(c.Name)
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	slog.Info("company created",
		slog.String("user_id", caller.ID),
		slog.Int64("company_id", c.ID),
		slog.String("name", c.Name),
	)
	return c, nil
}
