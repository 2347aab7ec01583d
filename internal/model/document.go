package model

import "time"

// Document は学生がステージごとに提出する書類を表す。
// 実ファイルはストレージに保存し、StorageKeyで参照する。
type Document struct {
	ID               int64
	StudentMatricula string
	Stage            string
	DocumentName     string
	Filename         string
	StorageKey       string
	MimeType         string
	FileSize         int64
	Status           DocumentStatus
	ReviewNote       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DocumentStatus は書類の審査状態を表す。
type DocumentStatus string

const (
	// DocumentPending は審査待ち。
	DocumentPending DocumentStatus = "Pendiente"
	// DocumentApproved は承認済み。
	DocumentApproved DocumentStatus = "Aprobado"
	// DocumentRejected は差し戻し。
	DocumentRejected DocumentStatus = "Rechazado"
)
