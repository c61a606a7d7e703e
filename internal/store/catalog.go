package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/enkat-io/enkat/internal/survey"
)

const surveyColumns = `s.id, s.template_id, s.title, s.organization, s.recipient_email, s.status,
	s.accepts_replies, s.sent_at, s.completed_at, s.created_at,
	(SELECT COUNT(*) FROM questions q WHERE q.template_id = s.template_id)`

// scanSurvey handles nullable columns when scanning a row
func scanSurvey(scanner interface{ Scan(...any) error }) (*survey.Survey, error) {
	var sv survey.Survey
	var status string
	var accepts int
	var sentAt, completedAt, createdAt sql.NullTime

	err := scanner.Scan(&sv.ID, &sv.TemplateID, &sv.Title, &sv.Organization, &sv.RecipientEmail, &status,
		&accepts, &sentAt, &completedAt, &createdAt, &sv.QuestionCount)
	if err != nil {
		return nil, err
	}

	sv.Status = survey.Status(status)
	sv.AcceptsReplies = accepts != 0
	sv.SentAt = timePtr(sentAt)
	sv.CompletedAt = timePtr(completedAt)
	sv.CreatedAt = createdAt.Time
	return &sv, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// GetSurvey returns survey.ErrNotFound if id does not exist
func (s *Store) GetSurvey(ctx context.Context, id string) (*survey.Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys s WHERE s.id = ?`

	sv, err := scanSurvey(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, survey.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query survey: %w", err)
	}
	return sv, nil
}

// FindSurveyWithQuestions loads a survey and its template's questions in position order
func (s *Store) FindSurveyWithQuestions(ctx context.Context, id string) (*survey.Survey, []survey.Question, error) {
	sv, err := s.GetSurvey(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	questions, err := s.ListQuestions(ctx, sv.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	return sv, questions, nil
}

func (s *Store) ListQuestions(ctx context.Context, templateID string) ([]survey.Question, error) {
	query := `
	SELECT id, template_id, code, type, text, position, min_value, max_value
	FROM questions WHERE template_id = ? ORDER BY position, id`

	rows, err := s.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []survey.Question
	for rows.Next() {
		var q survey.Question
		var qType string
		if err := rows.Scan(&q.ID, &q.TemplateID, &q.Code, &qType, &q.Text, &q.Position, &q.MinValue, &q.MaxValue); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Type = survey.QuestionType(qType)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListSurveys returns all surveys, optionally filtered by status
func (s *Store) ListSurveys(ctx context.Context, status survey.Status) ([]survey.Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys s`
	var args []any
	if status != "" {
		query += ` WHERE s.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY s.created_at DESC, s.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer rows.Close()

	var surveys []survey.Survey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		surveys = append(surveys, *sv)
	}
	return surveys, rows.Err()
}

// StoredResponse is a response joined with its question code
type StoredResponse struct {
	survey.Response
	QuestionCode string
}

func (s *Store) ListResponses(ctx context.Context, surveyID string) ([]StoredResponse, error) {
	query := `
	SELECT r.survey_id, r.question_id, q.code, r.rating_value, r.text_value, r.bool_value, r.na_value,
		r.respondent_email, r.source, r.raw_email_content, r.responded_at
	FROM survey_responses r JOIN questions q ON q.id = r.question_id
	WHERE r.survey_id = ? ORDER BY q.position, q.id`

	rows, err := s.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []StoredResponse
	for rows.Next() {
		var r StoredResponse
		var cols survey.Columns
		var boolVal sql.NullInt64
		var na int
		var raw sql.NullString
		var respondedAt sql.NullTime

		err := rows.Scan(&r.SurveyID, &r.QuestionID, &r.QuestionCode, &cols.Rating, &cols.Text, &boolVal, &na,
			&r.RespondentEmail, &r.Source, &raw, &respondedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		cols.Bool = sql.NullBool{Bool: boolVal.Int64 != 0, Valid: boolVal.Valid}
		cols.NA = na != 0
		r.Value = survey.FromColumns(cols)
		r.RawEmailContent = raw.String
		r.RespondedAt = respondedAt.Time
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// MarkSent moves a draft survey to sent and stamps sent_at; other statuses keep theirs
func (s *Store) MarkSent(ctx context.Context, surveyID string, at time.Time) error {
	query := `
	UPDATE surveys SET
		status = CASE WHEN status = 'draft' THEN 'sent' ELSE status END,
		sent_at = ?
	WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, at.UTC(), surveyID)
	if err != nil {
		return fmt.Errorf("failed to mark survey sent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return survey.ErrNotFound
	}
	return nil
}

// SetStatus is the administrative status override (closing, reopening)
func (s *Store) SetStatus(ctx context.Context, surveyID string, status survey.Status) error {
	result, err := s.db.ExecContext(ctx, `UPDATE surveys SET status = ? WHERE id = ?`, string(status), surveyID)
	if err != nil {
		return fmt.Errorf("failed to set survey status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return survey.ErrNotFound
	}
	return nil
}

// ImportStats reports what an import wrote
type ImportStats struct {
	Templates int
	Questions int
	Surveys   int
}

// ImportCatalog upserts templates, questions and surveys in one transaction.
// Existing surveys keep their status, completion and sent stamps.
func (s *Store) ImportCatalog(ctx context.Context, c *survey.Catalog) (ImportStats, error) {
	var stats ImportStats
	if err := c.Validate(); err != nil {
		return stats, err
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		for _, t := range c.Templates {
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO templates (id, name) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name`, t.ID, t.Name)
			if err != nil {
				return fmt.Errorf("failed to import template %s: %w", t.ID, err)
			}
			stats.Templates++

			for i, q := range t.Questions {
				_, err := tx.tx.ExecContext(ctx, `
					INSERT INTO questions (template_id, code, type, text, position, min_value, max_value)
					VALUES (?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT(template_id, code) DO UPDATE SET
						type = excluded.type, text = excluded.text, position = excluded.position,
						min_value = excluded.min_value, max_value = excluded.max_value`,
					t.ID, q.Code, q.Type, q.Text, i+1, q.MinValue, q.MaxValue)
				if err != nil {
					return fmt.Errorf("failed to import question %s/%s: %w", t.ID, q.Code, err)
				}
				stats.Questions++
			}
		}

		for _, sv := range c.Surveys {
			if sv.ID == "" {
				return fmt.Errorf("survey %q has no id", sv.Title)
			}
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO surveys (id, template_id, title, organization, recipient_email, accepts_replies, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					template_id = excluded.template_id, title = excluded.title,
					organization = excluded.organization, recipient_email = excluded.recipient_email,
					accepts_replies = excluded.accepts_replies`,
				sv.ID, sv.Template, sv.Title, sv.Organization, sv.RecipientEmail,
				boolToInt(sv.RepliesAccepted()), time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to import survey %s: %w", sv.ID, err)
			}
			stats.Surveys++
		}
		return nil
	})
	return stats, err
}
