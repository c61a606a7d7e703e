package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/enkat-io/enkat/internal/config"
)

// Message is one survey invitation
type Message struct {
	To      string
	From    string
	ReplyTo string // reply+<survey-id>@<reply-domain>
	Subject string
	Body    string
}

type Result struct {
	Success   bool
	MessageID string
	Error     error
}

type Sender interface {
	Send(ctx context.Context, msg Message) Result
	Name() string
}

func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "", "smtp":
		return NewSMTPSender(cfg.SMTP), nil
	case "resend":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("resend requires email.api_key")
		}
		return NewResendSender(cfg.APIKey), nil
	case "sendgrid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sendgrid requires email.api_key")
		}
		return NewSendGridSender(cfg.APIKey), nil
	}
	return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
}

// ValidateEmail checks for injection characters and RFC 5322 compliance
func ValidateEmail(email string) error {
	if strings.ContainsAny(email, "\r\n,;") {
		return fmt.Errorf("email contains invalid characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}

func validateMessage(msg Message) error {
	if err := ValidateEmail(msg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := ValidateEmail(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := ValidateEmail(msg.ReplyTo); err != nil {
			return fmt.Errorf("invalid reply-to: %w", err)
		}
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}
	return nil
}

// splitAddress returns the display name and bare address of a validated address
func splitAddress(s string) (name, addr string) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", s
	}
	return a.Name, a.Address
}
