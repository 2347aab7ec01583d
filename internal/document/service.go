// Package document は提出書類のアップロード・一覧・審査・ダウンロードを提供する。
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/estadias/internal/metrics"
	"github.com/hitoshi/estadias/internal/model"
	"github.com/hitoshi/estadias/internal/notify"
	"github.com/hitoshi/estadias/internal/repository"
	"github.com/hitoshi/estadias/internal/security"
	"github.com/hitoshi/estadias/internal/storage"
)

// allowedTypes は受け付ける拡張子とContent-Type。
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

const (
	maxSlotLength       = 100
	maxFilenameBaseRune = 80
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Upload はアップロードされる1ファイル分の入力。
type Upload struct {
	Matricula    string
	Stage        string
	DocumentName string
	Filename     string
	Size         int64
	Body         io.Reader
}

// File はダウンロード用に開いたファイル。呼び出し側でBodyを閉じる。
type File struct {
	Document *model.Document
	Body     io.ReadCloser
}

// Service は提出書類のビジネスロジックを提供する。
type Service struct {
	documents repository.DocumentRepository
	students  repository.StudentRepository
	store     storage.FileStore
	notifier  notify.Notifier
	sanitizer security.NoteSanitizer
	metrics   metrics.MetricsCollector
	maxSize   int64
	now       func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	documents repository.DocumentRepository,
	students repository.StudentRepository,
	store storage.FileStore,
	notifier notify.Notifier,
	sanitizer security.NoteSanitizer,
	maxSize int64,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		documents: documents,
		students:  students,
		store:     store,
		notifier:  notifier,
		sanitizer: sanitizer,
		metrics:   mc,
		maxSize:   maxSize,
		now:       time.Now,
	}
}

// Upload は書類を保存する。同じ学生・ステージ・書類名の書類があれば置き換え、
// 審査状態をPendienteに戻す。置き換え前のファイルは削除する。
func (s *Service) Upload(ctx context.Context, caller model.Principal, in Upload) (*model.Document, error) {
	if !caller.CanAccessStudent(in.Matricula) {
		return nil, model.NewForbiddenError()
	}

	stage := strings.TrimSpace(in.Stage)
	name := strings.TrimSpace(in.DocumentName)
	if stage == "" || name == "" {
		return nil, model.NewInvalidRequestError("stage y documentName son obligatorios")
	}
	if len(stage) > maxSlotLength || len(name) > maxSlotLength {
		return nil, model.NewInvalidRequestError("stage o documentName demasiado largo")
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	contentType, ok := allowedTypes[ext]
	if !ok {
		return nil, model.NewInvalidFileError("solo se permiten archivos PDF, DOC, DOCX, JPG o PNG")
	}
	if in.Size <= 0 {
		return nil, model.NewInvalidFileError("el archivo está vacío")
	}
	if s.maxSize > 0 && in.Size > s.maxSize {
		return nil, model.NewInvalidFileError(fmt.Sprintf("el archivo supera el tamaño máximo de %d bytes", s.maxSize))
	}

	student, err := s.students.FindByMatricula(ctx, strings.TrimSpace(in.Matricula))
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, model.NewStudentNotFoundError(in.Matricula)
	}

	previous, err := s.documents.FindBySlot(ctx, student.Matricula, stage, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	key := s.storageKey(student.Matricula, stage, in.Filename, ext)
	if err := s.store.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &model.Document{
		StudentMatricula: student.Matricula,
		Stage:            stage,
		DocumentName:     name,
		Filename:         filepath.Base(in.Filename),
		StorageKey:       key,
		MimeType:         contentType,
		FileSize:         in.Size,
	}
	if err := s.documents.Upsert(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Warn("failed to remove orphaned upload", slog.String("key", key), slog.String("error", delErr.Error()))
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	if previous != nil && previous.StorageKey != "" && previous.StorageKey != key {
		if err := s.store.Delete(ctx, previous.StorageKey); err != nil {
			slog.Warn("failed to remove replaced document",
				slog.String("key", previous.StorageKey),
				slog.String("error", err.Error()),
			)
		}
	}

	s.metrics.RecordDocumentUpload(stage)
	slog.Info("document uploaded",
		slog.String("user_id", caller.ID),
		slog.String("matricula", student.Matricula),
		slog.String("stage", stage),
		slog.String("document_name", name),
		slog.Bool("replaced", previous != nil),
	)
	return doc, nil
}

// List は学生の書類一覧を返す。stageが空の場合は全ステージ。
func (s *Service) List(ctx context.Context, caller model.Principal, matricula, stage string) ([]*model.Document, error) {
	if !caller.CanAccessStudent(matricula) {
		return nil, model.NewForbiddenError()
	}
	docs, err := s.documents.ListByStudent(ctx, strings.TrimSpace(matricula), strings.TrimSpace(stage))
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	return docs, nil
}

// Review は審査結果を保存し、学生にメールで通知する。
// 通知の失敗はログに記録するのみで、審査結果の保存は取り消さない。
func (s *Service) Review(ctx context.Context, caller model.Principal, id int64, status model.DocumentStatus, note string) (*model.Document, error) {
	if !caller.Role.IsPrivileged() {
		return nil, model.NewForbiddenError()
	}
	if status != model.DocumentApproved && status != model.DocumentRejected {
		return nil, model.NewInvalidStatusError(string(status))
	}

	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError()
	}

	clean := s.sanitizer.Sanitize(note)
	if err := s.documents.UpdateReview(ctx, id, status, clean); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewDocumentNotFoundError()
		}
		return nil, err
	}
	doc.Status = status
	doc.ReviewNote = clean
	doc.UpdatedAt = s.now()

	s.metrics.RecordReview(string(status))
	slog.Info("document reviewed",
		slog.String("user_id", caller.ID),
		slog.Int64("document_id", id),
		slog.String("matricula", doc.StudentMatricula),
		slog.String("status", string(status)),
	)

	s.notifyReview(ctx, doc)
	return doc, nil
}

func (s *Service) notifyReview(ctx context.Context, doc *model.Document) {
	student, err := s.students.FindByMatricula(ctx, doc.StudentMatricula)
	if err != nil {
		slog.Warn("failed to load student for review notification", slog.String("error", err.Error()))
		return
	}
	if student == nil || student.Email == "" {
		return
	}

	err = s.notifier.SendReviewOutcome(ctx, student.Email, notify.ReviewOutcome{
		StudentName:  student.Name,
		DocumentName: doc.DocumentName,
		Stage:        doc.Stage,
		Status:       string(doc.Status),
		Note:         doc.ReviewNote,
	})
	if err != nil {
		s.metrics.RecordNotificationFailure("review")
		slog.Warn("review notification failed",
			slog.String("matricula", doc.StudentMatricula),
			slog.Int64("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Open は書類ファイルを開く。学生は本人の書類のみ取得できる。
func (s *Service) Open(ctx context.Context, caller model.Principal, id int64) (*File, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError()
	}
	if !caller.CanAccessStudent(doc.StudentMatricula) {
		return nil, model.NewForbiddenError()
	}

	body, err := s.store.Open(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, model.NewDocumentNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return &File{Document: doc, Body: body}, nil
}

// storageKey は students/{matricula}/{stage}/{unix}_{name}.ext 形式のキーを返す。
func (s *Service) storageKey(matricula, stage, filename, ext string) string {
	return fmt.Sprintf("students/%s/%s/%d_%s%s",
		sanitizeSegment(matricula),
		sanitizeSegment(stage),
		s.now().Unix(),
		sanitizeFilename(filename),
		ext,
	)
}

// sanitizeSegment はパス区切りや特殊文字を含まないキー要素に変換する。
func sanitizeSegment(v string) string {
	v = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(v), "_")
	v = strings.Trim(v, "._")
	if v == "" {
		return "_"
	}
	return v
}

// sanitizeFilename は拡張子を除いたファイル名をキー用に整形する。
func sanitizeFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = sanitizeSegment(base)
	if r := []rune(base); len(r) > maxFilenameBaseRune {
		base = string(r[:maxFilenameBaseRune])
	}
	if base == "_" {
		return "documento"
	}
	return base
}
