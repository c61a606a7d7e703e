package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/store"
	"github.com/enkat-io/enkat/internal/survey"
)

var (
	// ErrSurveyNotIdentified means neither the recipient nor the subject carried a survey token
	ErrSurveyNotIdentified = errors.New("survey could not be identified from reply")

	// ErrSurveyNotFound wraps survey.ErrNotFound for tokens with no survey behind them
	ErrSurveyNotFound = fmt.Errorf("ingest: %w", survey.ErrNotFound)
)

// Tx is the set of writes one reply needs, all inside a single transaction
type Tx interface {
	UpsertResponse(ctx context.Context, r survey.Response) error
	CountResponses(ctx context.Context, surveyID string) (int, error)
	UpdateSurveyStatus(ctx context.Context, surveyID string, status survey.Status, completedAt *time.Time) error
}

// Store is what the service needs from persistence
type Store interface {
	FindSurveyWithQuestions(ctx context.Context, id string) (*survey.Survey, []survey.Question, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type sqlStore struct {
	*store.Store
}

func (s sqlStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.Store.InTx(ctx, func(tx *store.Tx) error { return fn(tx) })
}

// FromStore adapts the SQLite store to the service
func FromStore(s *store.Store) Store {
	return sqlStore{s}
}

// Envelope is an inbound reply, whatever transport delivered it
type Envelope struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Result summarizes what one reply changed
type Result struct {
	SurveyID           string
	// ResponsesProcessed counts stored structured answers. A free-text
	// fallback row is reported through FreeTextSaved and not counted here.
	ResponsesProcessed int
	FreeTextSaved      bool
	Skipped            int
	Status             survey.Status
	RepliesDisabled    bool
	Automated          inbox.AutomatedKind
}

// Service runs the reply pipeline: identify, load, parse, reconcile, recompute
type Service struct {
	store   Store
	parser  *inbox.Parser
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st Store, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		store:   st,
		parser:  inbox.NewParser(),
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest processes one reply. Identification and lookup failures return
// ErrSurveyNotIdentified or ErrSurveyNotFound and persist nothing. Store
// failures roll the reply back so a redelivery starts clean.
func (s *Service) Ingest(ctx context.Context, env Envelope) (Result, error) {
	surveyID, ok := inbox.ResolveSurveyID(env.To, env.Subject)
	if !ok {
		return Result{}, ErrSurveyNotIdentified
	}
	log := s.logger.With(zap.String("survey_id", surveyID), zap.String("from", env.From))

	sv, questions, err := s.load(ctx, surveyID)
	if err != nil {
		return Result{}, err
	}

	if kind := inbox.DetectAutomated(env.From, env.Subject); kind != inbox.NotAutomated {
		log.Info("Ignoring automated message", zap.String("kind", string(kind)))
		return Result{SurveyID: surveyID, Status: sv.Status, Automated: kind}, nil
	}
	if !sv.AcceptsReplies {
		log.Info("Survey does not accept replies")
		return Result{SurveyID: surveyID, Status: sv.Status, RepliesDisabled: true}, nil
	}

	reply := s.parser.ParseReply(surveyID, env.Body)
	plan := Reconcile(questions, reply.Answers, reply.FreeText)
	for _, skip := range plan.Skipped {
		log.Warn("Skipping answer", zap.String("code", skip.Code), zap.String("reason", skip.Reason))
	}

	result := Result{
		SurveyID:           surveyID,
		ResponsesProcessed: plan.Answered(),
		FreeTextSaved:      plan.FreeTextSaved,
		Skipped:            len(plan.Skipped),
		Status:             sv.Status,
	}
	if len(plan.Writes) == 0 {
		log.Info("Reply contained nothing to store", zap.Int("answers", len(reply.Answers)))
		return result, nil
	}

	now := s.now().UTC()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.store.InTx(ctx, func(tx Tx) error {
		for _, w := range plan.Writes {
			err := tx.UpsertResponse(ctx, survey.Response{
				SurveyID:        surveyID,
				QuestionID:      w.Question.ID,
				Value:           w.Value,
				RespondentEmail: env.From,
				Source:          survey.SourceEmail,
				RawEmailContent: reply.RawContent,
				RespondedAt:     now,
			})
			if err != nil {
				return fmt.Errorf("question %s: %w", w.Question.Code, err)
			}
		}

		answered, err := tx.CountResponses(ctx, surveyID)
		if err != nil {
			return err
		}

		next := NextStatus(sv.Status, answered, len(questions))
		if sv.Status != survey.StatusClosed {
			if err := tx.UpdateSurveyStatus(ctx, surveyID, next, completionStamp(next, now)); err != nil {
				return err
			}
		}
		result.Status = next
		log.Debug("Recomputed status",
			zap.Int("answered", answered),
			zap.Int("questions", len(questions)),
			zap.String("status", string(next)))
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to store reply for survey %s: %w", surveyID, err)
	}

	log.Info("Reply ingested",
		zap.Int("responses", result.ResponsesProcessed),
		zap.Bool("free_text", result.FreeTextSaved),
		zap.String("status", string(result.Status)))
	return result, nil
}

func (s *Service) load(ctx context.Context, surveyID string) (*survey.Survey, []survey.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sv, questions, err := s.store.FindSurveyWithQuestions(ctx, surveyID)
	if errors.Is(err, survey.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSurveyNotFound, surveyID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load survey %s: %w", surveyID, err)
	}
	return sv, questions, nil
}
