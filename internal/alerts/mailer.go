// Package alerts emails operators when webhook deliveries fail. Hotmart
// retries silently, so an auth or processing failure that nobody sees is a
// sale that never reaches the CRM.
package alerts

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"crm_bridge_backend/platform/config"
)

// Mailer delivers one operational alert.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// SMTPMailer sends alerts over a direct SMTP connection via go-mail.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

func NewSMTPMailer(cfg config.AlertConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.GetAlertSMTPHost(),
		port:     cfg.GetAlertSMTPPort(),
		username: cfg.GetAlertSMTPUsername(),
		password: cfg.GetAlertSMTPPassword(),
		from:     cfg.GetAlertFromAddress(),
		to:       cfg.GetAlertToAddress(),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(10*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}
