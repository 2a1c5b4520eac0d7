package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/askanna-io/askanna-core/internal/telemetry"
)

// Mailer delivers one rendered message.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends through a plain SMTP relay with optional authentication.
// Transient failures are retried with exponential backoff.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	MaxTries uint
}

// NewSMTPMailer wires a mailer with three delivery attempts.
func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	return &SMTPMailer{Addr: addr, Username: username, Password: password, From: from, MaxTries: 3}
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	var auth sasl.Client
	if m.Username != "" {
		auth = sasl.NewPlainClient("", m.Username, m.Password)
	}

	msg := strings.NewReader(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.From, strings.Join(to, ", "), subject, body,
	))

	operation := func() (struct{}, error) {
		if _, err := msg.Seek(0, 0); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err := smtp.SendMail(m.Addr, auth, m.From, to, msg); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(m.MaxTries),
		backoff.WithMaxElapsedTime(time.Minute),
	)
	if err != nil {
		telemetry.GetMetrics().MailsFailedTotal.Add(ctx, 1)
		return err
	}
	telemetry.GetMetrics().MailsSentTotal.Add(ctx, 1)
	return nil
}
