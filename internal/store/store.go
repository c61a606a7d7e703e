package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/enkat-io/enkat/internal/survey"
)

// Store is the SQLite-backed survey catalog and response store
type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; transactions then never see SQLITE_BUSY
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		min_value INTEGER NOT NULL DEFAULT 0,
		max_value INTEGER NOT NULL DEFAULT 0,
		UNIQUE(template_id, code)
	);

	CREATE INDEX IF NOT EXISTS idx_q_template_id ON questions(template_id);

	CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL REFERENCES templates(id),
		title TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT '',
		recipient_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		accepts_replies INTEGER NOT NULL DEFAULT 1,
		sent_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_s_status ON surveys(status);

	-- At most one response per question per survey
	CREATE TABLE IF NOT EXISTS survey_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		question_id INTEGER NOT NULL REFERENCES questions(id),
		rating_value INTEGER,
		text_value TEXT,
		bool_value INTEGER,
		na_value INTEGER NOT NULL DEFAULT 0,
		respondent_email TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'EMAIL',
		raw_email_content TEXT,
		responded_at DATETIME NOT NULL,
		UNIQUE(survey_id, question_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sr_survey_id ON survey_responses(survey_id);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Tx is one ingestion transaction
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction, committing only if fn returns nil
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) UpsertResponse(ctx context.Context, r survey.Response) error {
	return upsertResponse(ctx, t.tx, r)
}

func (t *Tx) CountResponses(ctx context.Context, surveyID string) (int, error) {
	return countResponses(ctx, t.tx, surveyID)
}

func (t *Tx) UpdateSurveyStatus(ctx context.Context, surveyID string, status survey.Status, completedAt *time.Time) error {
	return updateSurveyStatus(ctx, t.tx, surveyID, status, completedAt)
}

// UpsertResponse writes a response outside of an ingestion transaction
func (s *Store) UpsertResponse(ctx context.Context, r survey.Response) error {
	return upsertResponse(ctx, s.db, r)
}

func (s *Store) CountResponses(ctx context.Context, surveyID string) (int, error) {
	return countResponses(ctx, s.db, surveyID)
}

func (s *Store) UpdateSurveyStatus(ctx context.Context, surveyID string, status survey.Status, completedAt *time.Time) error {
	return updateSurveyStatus(ctx, s.db, surveyID, status, completedAt)
}

// upsertResponse is a single conditional write: insert, or replace every
// field of the existing (survey_id, question_id) row
func upsertResponse(ctx context.Context, q querier, r survey.Response) error {
	cols := survey.ToColumns(r.Value)
	source := r.Source
	if source == "" {
		source = survey.SourceEmail
	}

	query := `
	INSERT INTO survey_responses (survey_id, question_id, rating_value, text_value, bool_value, na_value,
		respondent_email, source, raw_email_content, responded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(survey_id, question_id) DO UPDATE SET
		rating_value = excluded.rating_value,
		text_value = excluded.text_value,
		bool_value = excluded.bool_value,
		na_value = excluded.na_value,
		respondent_email = excluded.respondent_email,
		source = excluded.source,
		raw_email_content = excluded.raw_email_content,
		responded_at = excluded.responded_at
	`

	_, err := q.ExecContext(ctx, query,
		r.SurveyID, r.QuestionID,
		cols.Rating, cols.Text, nullBoolToInt(cols.Bool), boolToInt(cols.NA),
		r.RespondentEmail, source, r.RawEmailContent, r.RespondedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert response: %w", err)
	}
	return nil
}

func countResponses(ctx context.Context, q querier, surveyID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM survey_responses WHERE survey_id = ?`, surveyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}

// updateSurveyStatus is a single UPDATE that never touches a closed survey,
// never demotes a completed one and never moves completed_at once set
func updateSurveyStatus(ctx context.Context, q querier, surveyID string, status survey.Status, completedAt *time.Time) error {
	var stamp sql.NullTime
	if completedAt != nil {
		stamp = sql.NullTime{Time: completedAt.UTC(), Valid: true}
	}

	query := `
	UPDATE surveys SET
		status = CASE WHEN status = 'completed' THEN 'completed' ELSE ? END,
		completed_at = COALESCE(completed_at, ?)
	WHERE id = ? AND status != 'closed'
	`

	if _, err := q.ExecContext(ctx, query, string(status), stamp, surveyID); err != nil {
		return fmt.Errorf("failed to update survey status: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBoolToInt(b sql.NullBool) sql.NullInt64 {
	if !b.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(b.Bool)), Valid: true}
}
