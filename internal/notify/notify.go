// Package notify は学生へのメール通知を提供する。
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Notifier は学生への通知手段。
type Notifier interface {
	// SendVerificationCode はメールアドレス確認用の認証コードを送る。
	SendVerificationCode(ctx context.Context, to, name, code string) error
	// SendReviewOutcome は提出書類の審査結果を送る。
	SendReviewOutcome(ctx context.Context, to string, review ReviewOutcome) error
}

// ReviewOutcome は審査結果通知の内容。
type ReviewOutcome struct {
	StudentName  string
	DocumentName string
	Stage        string
	Status       string
	Note         string
}

// message は送信するメール1通分。
type message struct {
	Subject string
	HTML    string
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif">
<p>Hola {{.Name}},</p>
<p>Tu código de verificación para el sistema de estadías es:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>El código expira en 10 minutos. Si no solicitaste este código, ignora este correo.</p>
</body></html>`))

var reviewTemplate = template.Must(template.New("review").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif">
<p>Hola {{.StudentName}},</p>
<p>Tu documento <strong>{{.DocumentName}}</strong>{{if .Stage}} ({{.Stage}}){{end}} fue revisado.</p>
<p>Estado: <strong>{{.Status}}</strong></p>
{{if .Note}}<p>Comentarios del revisor:</p><blockquote>{{.Note}}</blockquote>{{end}}
<p>Ingresa al sistema de estadías para ver los detalles.</p>
</body></html>`))

func verificationMessage(name, code string) (message, error) {
	var buf bytes.Buffer
	data := struct{ Name, Code string }{Name: name, Code: code}
	if err := verificationTemplate.Execute(&buf, data); err != nil {
		return message{}, fmt.Errorf("failed to render verification email: %w", err)
	}
	return message{Subject: "Código de verificación - Estadías", HTML: buf.String()}, nil
}

func reviewMessage(review ReviewOutcome) (message, error) {
	var buf bytes.Buffer
	if err := reviewTemplate.Execute(&buf, review); err != nil {
		return message{}, fmt.Errorf("failed to render review email: %w", err)
	}
	subject := fmt.Sprintf("Documento %s: %s", review.Status, review.DocumentName)
	return message{Subject: subject, HTML: buf.String()}, nil
}
