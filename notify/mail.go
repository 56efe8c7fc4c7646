package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/govhr/leave-engine/config"
	"github.com/govhr/leave-engine/leave"
)

// Mailer sends one plain-text email.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, from, to, subject, body string) error {
	return nil
}

type smtpMailer struct {
	cfg config.Config
}

// NewMailer returns an SMTP mailer, or a no-op one when email is disabled.
func NewMailer(cfg config.Config) Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

func (s *smtpMailer) Send(ctx context.Context, from, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	msg := buildMessage(from, to, subject, body)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.SMTPUseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if s.cfg.SMTPUser != "" {
		auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body)
}

// =============================================================================
// MAIL SINK
// =============================================================================

// MailSink emails the employee a notification is addressed to. Employees
// without an email address are skipped.
type MailSink struct {
	Mailer Mailer
	From   string
}

var subjects = map[leave.Event]string{
	leave.EventRequestSubmitted: "Leave request received",
	leave.EventRequestCancelled: "Leave request cancelled",
	leave.EventApprovalRecorded: "Leave request update",
	leave.EventRequestApproved:  "Leave request approved",
	leave.EventRequestRejected:  "Leave request rejected",
	leave.EventCreditsGranted:   "Leave credits granted",
	leave.EventCreditsExpiring:  "Leave credits expiring soon",
	leave.EventCreditsForfeited: "Leave credits forfeited",
}

func (s MailSink) Notify(ctx context.Context, n leave.Notification) error {
	if strings.TrimSpace(n.Email) == "" {
		return nil
	}
	subject, body := Render(n)
	return s.Mailer.Send(ctx, s.From, n.Email, subject, body)
}

// Render builds the subject and plain-text body of n.
func Render(n leave.Notification) (string, string) {
	subject, ok := subjects[n.Event]
	if !ok {
		subject = "Leave notification"
	}
	name := n.Name
	if name == "" {
		name = string(n.Recipient)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\r\n\r\n%s.\r\n", name, n.Details)
	if n.RequestID != "" {
		fmt.Fprintf(&b, "\r\nRequest reference: %s\r\n", n.RequestID)
	}
	if !n.At.IsZero() {
		fmt.Fprintf(&b, "Sent: %s\r\n", n.At.UTC().Format(time.RFC1123))
	}
	b.WriteString("\r\nHuman Resource Management Office\r\n")
	return subject, b.String()
}
