package survey

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a survey id does not exist
var ErrNotFound = errors.New("survey not found")

// Status is the survey completion state
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPartial   Status = "partial"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

// QuestionType decides which response field an answer lands in
type QuestionType string

const (
	TypeRating   QuestionType = "rating"
	TypeYesNo    QuestionType = "yesno"
	TypeText     QuestionType = "text"
	TypeLongText QuestionType = "longtext"
)

// ParseQuestionType accepts the catalog spellings, case-insensitively
func ParseQuestionType(s string) (QuestionType, error) {
	switch t := QuestionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeRating, TypeYesNo, TypeText, TypeLongText:
		return t, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// SourceEmail marks responses that arrived as email replies
const SourceEmail = "EMAIL"

type Question struct {
	ID         int64
	TemplateID string
	Code       string
	Type       QuestionType
	Text       string
	Position   int
	MinValue   int
	MaxValue   int
}

// NormalizeCode is the canonical form used to compare question codes
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Survey struct {
	ID             string
	TemplateID     string
	Title          string
	Organization   string
	RecipientEmail string
	Status         Status
	AcceptsReplies bool
	QuestionCount  int
	SentAt         *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// Response is one persisted answer, unique per (SurveyID, QuestionID)
type Response struct {
	SurveyID        string
	QuestionID      int64
	Value           Value
	RespondentEmail string
	Source          string
	RawEmailContent string
	RespondedAt     time.Time
}
