package model

import "time"

// Admin は書類の審査や学生の進捗管理を行う管理者を表す。
type Admin struct {
	ID            int64
	Username      string
	PasswordHash  string
	Email         string
	Role          Role
	IsActive      bool
	LoginAttempts int
	LockUntil     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LockState はログインロック状態を返す。
func (a *Admin) LockState() LockState {
	return LockState{Attempts: a.LoginAttempts, LockUntil: a.LockUntil}
}
