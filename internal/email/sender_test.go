package email

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enkat-io/enkat/internal/config"
)

func testMessage() Message {
	return Message{
		From:    "Enkät <enkat@acme.se>",
		To:      "anna@kund.se",
		ReplyTo: "reply+abc-123@in.enkat.se",
		Subject: "Kvalitetsenkät 2026 (Enkät-ID: abc-123)",
		Body:    "Hej Anna,\n\nQ1:\nQ2:\n",
	}
}

func TestNewSender(t *testing.T) {
	tests := []struct {
		provider string
		apiKey   string
		want     string
		wantErr  bool
	}{
		{"", "", "smtp", false},
		{"smtp", "", "smtp", false},
		{"resend", "re_123", "resend", false},
		{"resend", "", "", true},
		{"sendgrid", "SG.123", "sendgrid", false},
		{"sendgrid", "", "", true},
		{"mailgun", "k", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.apiKey, func(t *testing.T) {
			s, err := NewSender(config.EmailConfig{Provider: tt.provider, APIKey: tt.apiKey})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, validateMessage(testMessage()))

	bad := testMessage()
	bad.To = "anna@kund.se\r\nBcc: x@y.se"
	assert.Error(t, validateMessage(bad))

	bad = testMessage()
	bad.Subject = "Hej\r\nBcc: x@y.se"
	assert.Error(t, validateMessage(bad))

	bad = testMessage()
	bad.ReplyTo = "not an address"
	assert.Error(t, validateMessage(bad))
}

func TestSMTPBuildMessage(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 25})
	s.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	raw, messageID, err := s.buildMessage(testMessage())
	require.NoError(t, err)
	assert.NotEmpty(t, messageID)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Kvalitetsenkät 2026 (Enkät-ID: abc-123)", subject)

	replyTo, err := mr.Header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "reply+abc-123@in.enkat.se", replyTo[0].Address)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "Enkät", from[0].Name)

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, testMessage().Body, strings.ReplaceAll(string(body), "\r\n", "\n"))
}

func TestSMTPSendRejectsInvalid(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 25})
	msg := testMessage()
	msg.To = "nope"

	result := s.Send(context.Background(), msg)
	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestSMTPAuthRequiresTLS(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 25, Username: "u", Password: "p"})
	result := s.Send(context.Background(), testMessage())
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "requires TLS")
}

func TestResendRequest(t *testing.T) {
	req := resendRequest(testMessage())
	assert.Equal(t, []string{"anna@kund.se"}, req.To)
	assert.Equal(t, "reply+abc-123@in.enkat.se", req.ReplyTo)
	assert.Equal(t, "Enkät <enkat@acme.se>", req.From)
	assert.True(t, strings.HasPrefix(req.Text, "Hej Anna"))
}

func TestSendGridMessage(t *testing.T) {
	m := sendGridMessage(testMessage())
	assert.Equal(t, "enkat@acme.se", m.From.Address)
	assert.Equal(t, "Enkät", m.From.Name)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "reply+abc-123@in.enkat.se", m.ReplyTo.Address)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "anna@kund.se", m.Personalizations[0].To[0].Address)
	require.NotEmpty(t, m.Content)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}
