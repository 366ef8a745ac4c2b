package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrUnknownKind marks jobs no renderer understands. They are never retried.
var ErrUnknownKind = errors.New("unknown job kind")

// Message is a rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	host   string
	from   *mail.Email
}

// NewSendGridSender creates a sender for the public SendGrid API.
func NewSendGridSender(apiKey, fromAddress, fromName string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, from: mail.NewEmail(fromName, fromAddress)}
}

// WithHost points the sender at another API host.
func (s *SendGridSender) WithHost(host string) *SendGridSender {
	s.host = host
	return s
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	email := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Text, msg.HTML)

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(email)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sending email: sendgrid returned %d: %s", response.StatusCode, response.Body)
	}

	slog.Info("email sent", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// LogSender logs messages instead of sending them.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, msg Message) error {
	slog.Info("email not sent, no provider configured", "to", msg.To, "subject", msg.Subject)
	return nil
}
