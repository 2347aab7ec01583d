package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/estadias/internal/model"
)

// DefaultTokenTTL はセッショントークンの既定の有効期間。
const DefaultTokenTTL = 8 * time.Hour

// ErrInvalidToken は署名不正・期限切れ・形式不正のトークンを表す。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims はセッショントークンのクレーム。
// 学生はmatricula、管理者は数値IDとユーザー名を追加で持つ。
type Claims struct {
	jwt.RegisteredClaims
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	Matricula string     `json:"matricula,omitempty"`
	AdminID   *int64     `json:"adminId,omitempty"`
	Username  string     `json:"username,omitempty"`
}

// Principal はクレームから認証済み主体を復元する。
func (c *Claims) Principal() model.Principal {
	p := model.Principal{
		ID:          c.Subject,
		DisplayName: c.Name,
		Role:        c.Role,
		Matricula:   c.Matricula,
		Username:    c.Username,
	}
	if c.AdminID != nil {
		p.AdminID = *c.AdminID
	}
	return p
}

// Session は発行済みのセッショントークンを表す。
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal model.Principal
}

// TokenIssuer はHS256で署名したステートレスなセッショントークンを発行・検証する。
// サーバー側にセッションを保持しないため、失効は有効期限によってのみ行われる。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。ttlが0以下の場合は8時間とする。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue は主体に対するセッショントークンを発行する。
func (i *TokenIssuer) Issue(p model.Principal) (*Session, error) {
	now := i.now()
	expires := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name:      p.DisplayName,
		Role:      p.Role,
		Matricula: p.Matricula,
		Username:  p.Username,
	}
	if p.Role.IsPrivileged() {
		id := p.AdminID
		claims.AdminID = &id
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{Token: token, ExpiresAt: expires, Principal: p}, nil
}

// Parse はトークンを検証し、クレームを返す。
// HS256以外の署名方式、署名不一致、期限切れはErrInvalidTokenを返す。
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// adminSubject は管理者IDをトークンのsubject文字列に変換する。
func adminSubject(id int64) string {
	return strconv.FormatInt(id, 10)
}
