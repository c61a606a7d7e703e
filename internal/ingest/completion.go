package ingest

import (
	"time"

	"github.com/enkat-io/enkat/internal/survey"
)

// CompletionThreshold is the share of answered questions at which a survey counts as completed
const CompletionThreshold = 0.5

// NextStatus computes the status after a reply was stored. Closed and
// completed are sticky; draft is handled like sent.
func NextStatus(current survey.Status, answered, questionCount int) survey.Status {
	switch current {
	case survey.StatusClosed, survey.StatusCompleted:
		return current
	}
	if questionCount <= 0 {
		return current
	}
	if float64(answered)/float64(questionCount) >= CompletionThreshold {
		return survey.StatusCompleted
	}
	return survey.StatusPartial
}

// Coverage is answered/questionCount, 0 for a survey without questions
func Coverage(answered, questionCount int) float64 {
	if questionCount <= 0 {
		return 0
	}
	return float64(answered) / float64(questionCount)
}

// completionStamp is the completed_at candidate for next; the store keeps
// an existing stamp
func completionStamp(next survey.Status, now time.Time) *time.Time {
	if next != survey.StatusCompleted {
		return nil
	}
	return &now
}
