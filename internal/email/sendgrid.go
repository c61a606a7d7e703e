package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridSender struct {
	client *sendgrid.Client
}

func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}

	resp, err := s.client.SendWithContext(ctx, sendGridMessage(msg))
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("sendgrid: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return Result{Success: false, Error: fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)}
	}

	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return Result{Success: true, MessageID: messageID}
}

func sendGridMessage(msg Message) *mail.SGMailV3 {
	fromName, fromAddr := splitAddress(msg.From)
	toName, toAddr := splitAddress(msg.To)

	m := mail.NewSingleEmailPlainText(
		mail.NewEmail(fromName, fromAddr),
		msg.Subject,
		mail.NewEmail(toName, toAddr),
		msg.Body,
	)
	if msg.ReplyTo != "" {
		name, addr := splitAddress(msg.ReplyTo)
		m.SetReplyTo(mail.NewEmail(name, addr))
	}
	return m
}
