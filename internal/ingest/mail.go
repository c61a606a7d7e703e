package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/inbox"
)

// EnvelopeFromEmail uses the plain-text body, or the HTML body flattened to text
func EnvelopeFromEmail(e inbox.Email) Envelope {
	return Envelope{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Body:    e.Text(),
	}
}

// HandleEmail is the inbox.Handler for polled replies. Messages that can
// never be ingested are discarded; store failures are left for the next poll.
func (s *Service) HandleEmail(ctx context.Context, e inbox.Email) inbox.Disposition {
	log := s.logger.With(zap.Uint32("uid", e.UID), zap.String("message_id", e.MessageID))

	_, err := s.Ingest(ctx, EnvelopeFromEmail(e))
	switch {
	case errors.Is(err, ErrSurveyNotIdentified), errors.Is(err, ErrSurveyNotFound):
		log.Warn("Discarding reply", zap.String("to", e.To), zap.Error(err))
		return inbox.Discard
	case err != nil:
		log.Error("Failed to ingest reply", zap.Error(err))
		return inbox.Retry
	}
	return inbox.Done
}
