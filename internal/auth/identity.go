package auth

import (
	"crypto/subtle"

	"github.com/hitoshi/estadias/internal/model"
)

// Identity は認証可能な主体の共通インターフェース。
// 学生・管理者・ROOTの3種類があり、認証フローはこのインターフェースのみに依存する。
type Identity interface {
	// Principal はトークンに載せる主体情報を返す。
	Principal() model.Principal
	// VerifyCredential はパスワードが一致するかを返す。未設定の場合は常にfalse。
	VerifyCredential(password string) bool
	// CurrentLockState はロック状態を返す。ロックアウト対象外の場合はfalseを返す。
	CurrentLockState() (model.LockState, bool)
}

// StudentIdentity は学生の認証主体。
type StudentIdentity struct {
	Student *model.Student
	hasher  *PasswordHasher
}

// Principal はIdentityを実装する。
func (s StudentIdentity) Principal() model.Principal {
	return model.Principal{
		ID:          s.Student.Matricula,
		DisplayName: s.Student.Name,
		Role:        model.RoleStudent,
		Matricula:   s.Student.Matricula,
	}
}

// VerifyCredential はIdentityを実装する。
func (s StudentIdentity) VerifyCredential(password string) bool {
	return s.hasher.Compare(s.Student.PasswordHash, password)
}

// CurrentLockState はIdentityを実装する。
func (s StudentIdentity) CurrentLockState() (model.LockState, bool) {
	return s.Student.LockState(), true
}

// AdminIdentity は永続化された管理者の認証主体。
type AdminIdentity struct {
	Admin  *model.Admin
	hasher *PasswordHasher
}

// Principal はIdentityを実装する。
func (a AdminIdentity) Principal() model.Principal {
	role := a.Admin.Role
	if role == "" {
		role = model.RoleAdmin
	}
	return model.Principal{
		ID:          adminSubject(a.Admin.ID),
		DisplayName: a.Admin.Username,
		Role:        role,
		AdminID:     a.Admin.ID,
		Username:    a.Admin.Username,
	}
}

// VerifyCredential はIdentityを実装する。
func (a AdminIdentity) VerifyCredential(password string) bool {
	return a.hasher.Compare(a.Admin.PasswordHash, password)
}

// CurrentLockState はIdentityを実装する。
func (a AdminIdentity) CurrentLockState() (model.LockState, bool) {
	return a.Admin.LockState(), true
}

// RootIdentity は設定から導出される最上位管理者。
// 永続化されず、ロックアウトの対象外。
type RootIdentity struct {
	Username string
	Password string
}

// Principal はIdentityを実装する。
func (r RootIdentity) Principal() model.Principal {
	return model.Principal{
		ID:          "root",
		DisplayName: r.Username,
		Role:        model.RoleRoot,
		AdminID:     0,
		Username:    r.Username,
	}
}

// VerifyCredential は設定値と定数時間で比較する。
func (r RootIdentity) VerifyCredential(password string) bool {
	if r.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Password), []byte(password)) == 1
}

// CurrentLockState はIdentityを実装する。ROOTは常に対象外。
func (r RootIdentity) CurrentLockState() (model.LockState, bool) {
	return model.LockState{}, false
}

// matchesUsername はユーザー名がROOTのものかを定数時間で判定する。
func (r RootIdentity) matchesUsername(username string) bool {
	return r.Username != "" && subtle.ConstantTimeCompare([]byte(r.Username), []byte(username)) == 1
}
