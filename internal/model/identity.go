package model

import (
	"strings"
	"time"
)

// Role は認証済み主体の権限を表す。
type Role string

const (
	// RoleStudent は学生。
	RoleStudent Role = "STUDENT"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
	// RoleRoot は設定から導出される最上位管理者。永続化されない。
	RoleRoot Role = "ROOT"
)

// IsPrivileged は管理者権限（ADMINまたはROOT）を持つかどうかを返す。
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleRoot
}

// Principal は認証済みの主体を表す。セッショントークンのクレームと1対1に対応する。
type Principal struct {
	ID          string // 学生はmatricula、管理者は数値IDの文字列、ROOTは"root"
	DisplayName string
	Role        Role
	Matricula   string // 学生のみ
	AdminID     int64  // 管理者のみ（ROOTは0）
	Username    string // 管理者とROOTのみ
}

// LockState はログイン失敗回数とロック期限を表す。
type LockState struct {
	Attempts  int
	LockUntil *time.Time
}

// LockedAt は指定時刻にロック中かどうかを返す。
func (s LockState) LockedAt(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// CanAccessStudent は指定学生のデータを参照・操作できるかを返す。
// 管理者は全学生、学生は本人のみ。
func (p Principal) CanAccessStudent(matricula string) bool {
	if p.Role.IsPrivileged() {
		return true
	}
	return p.Role == RoleStudent && p.Matricula != "" && strings.EqualFold(p.Matricula, strings.TrimSpace(matricula))
}
