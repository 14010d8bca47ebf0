package mailer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/resend/resend-go/v2"
)

// Message is an outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// emailAPI is the part of the Resend client used by ResendSender.
type emailAPI interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	api  emailAPI
	from string
}

func NewResendSender(apiKey, fromEmail, fromName string) *ResendSender {
	return &ResendSender{
		api:  resend.NewClient(apiKey).Emails,
		from: FromAddress(fromEmail, fromName),
	}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.api.Send(&resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// FromAddress formats the sender as "Name <email>" when a name is given.
func FromAddress(email, name string) string {
	if email != "" && name != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	return email
}

// LogSender only logs the recipient and subject of messages. Bodies carry
// live single-use links and are never logged. It is used when no API key
// is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Warn(ctx, "RESEND_API_KEY not configured, pretending to send email",
		"to", msg.To, "subject", msg.Subject)
	return nil
}
