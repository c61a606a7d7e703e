package inbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Disposition tells the poller what to do with a message after handling it
type Disposition int

const (
	Retry   Disposition = iota // leave unseen; the next poll delivers it again
	Done                       // mark seen and archive if enabled
	Discard                    // permanent failure; treated like Done
)

// Handler processes one fetched reply
type Handler func(ctx context.Context, email Email) Disposition

// Mailbox is the subset of Monitor used by the poller
type Mailbox interface {
	FetchUnseen(ctx context.Context) ([]Email, error)
	MarkSeen(uids []uint32) error
	EnsureFolderExists(name string) error
	ArchiveEmails(uids []uint32, folder string) error
}

// Poller repeatedly drains unseen replies from a mailbox into a handler
type Poller struct {
	mailbox       Mailbox
	handle        Handler
	interval      time.Duration
	archiveFolder string // empty disables archiving
	logger        *zap.Logger
}

func NewPoller(mailbox Mailbox, handle Handler, interval time.Duration, archiveFolder string, logger *zap.Logger) *Poller {
	return &Poller{
		mailbox:       mailbox,
		handle:        handle,
		interval:      interval,
		archiveFolder: archiveFolder,
		logger:        logger,
	}
}

// RunOnce handles every currently unseen reply and returns how many were finished
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	emails, err := p.mailbox.FetchUnseen(ctx)
	if err != nil {
		return 0, err
	}

	var finished []uint32
	for _, email := range emails {
		if ctx.Err() != nil {
			break
		}
		switch p.handle(ctx, email) {
		case Done, Discard:
			if email.UID > 0 {
				finished = append(finished, email.UID)
			}
		default:
			p.logger.Warn("Reply left for retry",
				zap.Uint32("uid", email.UID), zap.String("message_id", email.MessageID))
		}
	}

	if err := p.mailbox.MarkSeen(finished); err != nil {
		return 0, err
	}

	if p.archiveFolder != "" && len(finished) > 0 {
		if err := p.mailbox.EnsureFolderExists(p.archiveFolder); err != nil {
			p.logger.Warn("Could not create archive folder", zap.Error(err))
		} else if err := p.mailbox.ArchiveEmails(finished, p.archiveFolder); err != nil {
			p.logger.Warn("Could not archive replies", zap.Error(err))
		}
	}

	return len(finished), nil
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if n, err := p.RunOnce(ctx); err != nil {
			p.logger.Error("Inbox poll failed", zap.Error(err))
		} else if n > 0 {
			p.logger.Info("Inbox poll finished", zap.Int("handled", n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
