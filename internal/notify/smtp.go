package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool // 465番ポートのような接続直後からのTLS
}

// SMTPNotifier はSMTPでメールを送信するNotifier。
// 平文接続ではサーバーが対応していればSTARTTLSに切り替える。
type SMTPNotifier struct {
	config SMTPConfig
	now    func() time.Time
}

// NewSMTPNotifier はSMTPNotifierを生成する。
func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	if config.From == "" {
		config.From = config.Username
	}
	return &SMTPNotifier{config: config, now: time.Now}
}

// SendVerificationCode はNotifierを実装する。
func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, to, name, code string) error {
	msg, err := verificationMessage(name, code)
	if err != nil {
		return err
	}
	return n.send(ctx, to, msg)
}

// SendReviewOutcome はNotifierを実装する。
func (n *SMTPNotifier) SendReviewOutcome(ctx context.Context, to string, review ReviewOutcome) error {
	msg, err := reviewMessage(review)
	if err != nil {
		return err
	}
	return n.send(ctx, to, msg)
}

// send は1通のメールを送信する。ctxの期限は接続全体に適用する。
func (n *SMTPNotifier) send(ctx context.Context, to string, msg message) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient address")
	}

	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	tlsConfig := &tls.Config{ServerName: n.config.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if n.config.ImplicitTLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if !n.config.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start tls: %w", err)
			}
		}
	}

	if n.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := client.Mail(n.config.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(n.compose(to, msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

// compose はヘッダーと本文からなるRFC 5322形式のメッセージを組み立てる。
func (n *SMTPNotifier) compose(to string, msg message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
