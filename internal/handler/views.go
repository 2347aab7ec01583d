package handler

import (
	"time"

	"github.com/hitoshi/estadias/internal/auth"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/progress"
)

// principalResponse は認証済み主体のAPIレスポンス。
type principalResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Matricula string `json:"matricula,omitempty"`
	AdminID   int64  `json:"adminId,omitempty"`
	Username  string `json:"username,omitempty"`
}

// sessionResponse はログイン成功時のAPIレスポンス。
type sessionResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      principalResponse `json:"user"`
}

// studentResponse は学生情報のAPIレスポンス。パスワードハッシュと認証コードは含めない。
type studentResponse struct {
	Matricula     string     `json:"matricula"`
	Name          string     `json:"name"`
	CareerName    string     `json:"careerName"`
	Grade         string     `json:"grade"`
	Group         string     `json:"group"`
	Shift         string     `json:"shift"`
	Generation    string     `json:"generation"`
	Director      string     `json:"director"`
	CompanyID     *int64     `json:"companyId"`
	Status        string     `json:"status"`
	CurrentStage  string     `json:"currentStage"`
	AdminNotes    string     `json:"adminNotes"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"emailVerified"`
	IsFirstLogin  bool       `json:"isFirstLogin"`
	HasPassword   bool       `json:"hasPassword"`
	LoginAttempts int        `json:"loginAttempts"`
	LockUntil     *time.Time `json:"lockUntil"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// companyResponse は企業情報のAPIレスポンス。
type companyResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Contact      string `json:"contact"`
	BusinessLine string `json:"businessLine"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

// progressResponse は学生の進捗と割り当て済み企業のAPIレスポンス。
type progressResponse struct {
	Student studentResponse  `json:"student"`
	Company *companyResponse `json:"company"`
}

// documentResponse は提出書類のAPIレスポンス。保存先のキーは含めない。
type documentResponse struct {
	ID               int64     `json:"id"`
	StudentMatricula string    `json:"studentMatricula"`
	Stage            string    `json:"stage"`
	DocumentName     string    `json:"documentName"`
	Filename         string    `json:"filename"`
	MimeType         string    `json:"mimeType"`
	FileSize         int64     `json:"fileSize"`
	Status           string    `json:"status"`
	ReviewNote       string    `json:"reviewNote"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// adminResponse は管理者情報のAPIレスポンス。
type adminResponse struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"isActive"`
	LoginAttempts int        `json:"loginAttempts"`
	LockUntil     *time.Time `json:"lockUntil"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toPrincipalResponse(p model.Principal) principalResponse {
	return principalResponse{
		ID:        p.ID,
		Role:      string(p.Role),
		Name:      p.DisplayName,
		Matricula: p.Matricula,
		AdminID:   p.AdminID,
		Username:  p.Username,
	}
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC(),
		User:      toPrincipalResponse(s.Principal),
	}
}

func toStudentResponse(s *model.Student) studentResponse {
	return studentResponse{
		Matricula:     s.Matricula,
		Name:          s.Name,
		CareerName:    s.CareerName,
		Grade:         s.Grade,
		Group:         s.Group,
		Shift:         s.Shift,
		Generation:    s.Generation,
		Director:      s.Director,
		CompanyID:     s.CompanyID,
		Status:        string(s.Status),
		CurrentStage:  s.CurrentStage,
		AdminNotes:    s.AdminNotes,
		Email:         s.Email,
		EmailVerified: s.EmailVerified,
		IsFirstLogin:  s.IsFirstLogin,
		HasPassword:   s.HasCredential(),
		LoginAttempts: s.LoginAttempts,
		LockUntil:     s.LockUntil,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toCompanyResponse(c *model.Company) companyResponse {
	return companyResponse{
		ID:           c.ID,
		Name:         c.Name,
		Address:      c.Address,
		Contact:      c.Contact,
		BusinessLine: c.BusinessLine,
		Email:        c.Email,
		Phone:        c.Phone,
	}
}

func toProgressResponse(p *progress.Progress) progressResponse {
	resp := progressResponse{Student: toStudentResponse(p.Student)}
	if p.Company != nil {
		c := toCompanyResponse(p.Company)
		resp.Company = &c
	}
	return resp
}

func toDocumentResponse(d *model.Document) documentResponse {
	return documentResponse{
		ID:               d.ID,
		StudentMatricula: d.StudentMatricula,
		Stage:            d.Stage,
		DocumentName:     d.DocumentName,
		Filename:         d.Filename,
		MimeType:         d.MimeType,
		FileSize:         d.FileSize,
		Status:           string(d.Status),
		ReviewNote:       d.ReviewNote,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func toAdminResponse(a *model.Admin) adminResponse {
	return adminResponse{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          string(a.Role),
		IsActive:      a.IsActive,
		LoginAttempts: a.LoginAttempts,
		LockUntil:     a.LockUntil,
		CreatedAt:     a.CreatedAt,
	}
}
