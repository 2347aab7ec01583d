package model

import "time"

// Student はインターンシップ（estadía）を行う学生を表す。
// 学籍情報、オンボーディング状態、進捗、ログインロック状態を保持する。
type Student struct {
	Matricula  string
	Name       string
	CareerName string
	Grade      string
	Group      string
	Shift      string
	Generation string
	Director   string

	CompanyID    *int64
	Status       Status
	CurrentStage string
	AdminNotes   string

	Email                   string
	PasswordHash            string
	IsFirstLogin            bool
	EmailVerified           bool
	VerificationCode        string
	VerificationCodeExpires *time.Time

	LoginAttempts int
	LockUntil     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCredential はパスワードが設定済みかどうかを返す。
func (s *Student) HasCredential() bool {
	return s.PasswordHash != ""
}

// LockState はログインロック状態を返す。
func (s *Student) LockState() LockState {
	return LockState{Attempts: s.LoginAttempts, LockUntil: s.LockUntil}
}

// Status は学生のインターンシップ進捗ステータスを表す。
type Status string

const (
	StatusPending          Status = "Pendiente"
	StatusCompanySelected  Status = "Empresa Seleccionada"
	StatusInitialSubmitted Status = "Documentos Iniciales Enviados"
	StatusInitialReview    Status = "En Revisión Inicial"
	StatusDocsGenerated    Status = "Documentos Generados"
	StatusFinalSubmitted   Status = "Documentos Finales Enviados"
	StatusFinalReview      Status = "En Revisión Final"
	StatusFinished         Status = "Finalizado"
	StatusRejected         Status = "Rechazado"
)

// ステージトークン。どの書類セットが次に必要かをフロントエンドが判断するために使う。
const (
	StageCompanyCatalog = "catalogo-empresas"
	StageUpload1        = "upload_1"
	StageInitialReview  = "revision-inicial"
	StageDocsGenerated  = "documentos-generados"
	StageUpload2        = "upload_2"
	StageFinalReview    = "revision-final"
	StageFinished       = "finalizado"
)

// StudentFilter は学生一覧の絞り込み条件を表す。
type StudentFilter struct {
	Status Status
	Query  string // matriculaまたは氏名の部分一致
}

// StudentImport はExcel取込1行分の学籍情報を表す。
type StudentImport struct {
	Matricula  string
	Name       string
	CareerName string
	Grade      string
	Group      string
	Shift      string
	Generation string
	Director   string
}
