package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/config"
)

const fetchBatchSize = 50

// Monitor handles the IMAP connection to the mailbox receiving survey replies
type Monitor struct {
	config config.InboxConfig
	client *client.Client
	logger *zap.Logger
}

// NewMonitor creates a new inbox monitor
func NewMonitor(cfg config.InboxConfig, logger *zap.Logger) *Monitor {
	return &Monitor{config: cfg, logger: logger}
}

// Connect establishes IMAP connection
func (m *Monitor) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	m.logger.Info("Connecting to IMAP server", zap.String("addr", addr))

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(m.config.Email, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	m.client = c
	m.logger.Info("IMAP login successful", zap.String("mailbox", m.config.Email))
	return nil
}

// Disconnect closes the IMAP connection
func (m *Monitor) Disconnect() error {
	if m.client != nil {
		return m.client.Logout()
	}
	return nil
}

// FetchUnseen fetches every unseen message in the configured folder without
// marking it seen
func (m *Monitor) FetchUnseen(ctx context.Context) ([]Email, error) {
	// Servers drop idle sessions between polls
	if m.client == nil || m.client.State() == imap.LogoutState {
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}

	mbox, err := m.client.Select(m.config.Folder, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	m.logger.Debug("Unseen messages found", zap.String("folder", m.config.Folder), zap.Int("count", len(uids)))

	var emails []Email
	for i := 0; i < len(uids); i += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return emails, err
		}

		end := i + fetchBatchSize
		if end > len(uids) {
			end = len(uids)
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[i:end]...)

		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

		messages := make(chan *imap.Message, fetchBatchSize)
		done := make(chan error, 1)
		go func() {
			done <- m.client.UidFetch(seqSet, items, messages)
		}()

		for msg := range messages {
			email, err := m.parseMessage(msg, section)
			if err != nil {
				m.logger.Warn("Failed to parse message", zap.Uint32("uid", msg.Uid), zap.Error(err))
				continue
			}
			if email != nil {
				emails = append(emails, *email)
			}
		}

		if err := <-done; err != nil {
			return emails, fmt.Errorf("failed to fetch messages: %w", err)
		}
	}

	return emails, nil
}

// parseMessage decodes the fetched literal, falling back to the envelope for headers
func (m *Monitor) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, nil
	}

	email := &Email{}
	if r := msg.GetBody(section); r != nil {
		parsed, err := ParseMessage(r)
		if err != nil {
			return nil, err
		}
		email = parsed
	}

	email.UID = msg.Uid
	if email.Subject == "" {
		email.Subject = msg.Envelope.Subject
	}
	if email.MessageID == "" {
		email.MessageID = msg.Envelope.MessageId
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = msg.Envelope.Date
	}
	if email.From == "" && len(msg.Envelope.From) > 0 {
		email.From = msg.Envelope.From[0].Address()
		email.FromName = msg.Envelope.From[0].PersonalName
	}
	if email.To == "" {
		var to []string
		for _, a := range append(msg.Envelope.To, msg.Envelope.Cc...) {
			to = append(to, a.Address())
		}
		email.To = strings.Join(to, ", ")
	}

	return email, nil
}

// MarkSeen flags messages as seen so later polls skip them
func (m *Monitor) MarkSeen(uids []uint32) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}
	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark emails as seen: %w", err)
	}
	return nil
}

// EnsureFolderExists creates a folder/label if it doesn't already exist
func (m *Monitor) EnsureFolderExists(name string) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", mailboxes)
	}()

	exists := false
	for mbox := range mailboxes {
		if strings.EqualFold(mbox.Name, name) {
			exists = true
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	if exists {
		return nil
	}

	if err := m.client.Create(name); err != nil {
		return fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	m.logger.Info("Created archive folder", zap.String("folder", name))
	return nil
}

// ArchiveEmails moves multiple emails to the archive folder
func (m *Monitor) ArchiveEmails(uids []uint32, folder string) error {
	if m.client == nil {
		return fmt.Errorf("not connected to IMAP server")
	}
	if len(uids) == 0 {
		return nil
	}

	// Re-select the source folder to ensure we're in the right mailbox
	if _, err := m.client.Select(m.config.Folder, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	// Try MOVE first (RFC 6851)
	if err := m.client.UidMove(seqSet, folder); err != nil {
		m.logger.Debug("MOVE not supported, falling back to COPY+DELETE", zap.Error(err))

		if err := m.client.UidCopy(seqSet, folder); err != nil {
			return fmt.Errorf("failed to copy emails to '%s': %w", folder, err)
		}

		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.DeletedFlag}
		if err := m.client.UidStore(seqSet, item, flags, nil); err != nil {
			return fmt.Errorf("failed to mark emails as deleted: %w", err)
		}

		if err := m.client.Expunge(nil); err != nil {
			return fmt.Errorf("failed to expunge deleted emails: %w", err)
		}
	}

	m.logger.Info("Archived replies", zap.Int("count", len(uids)), zap.String("folder", folder))
	return nil
}
