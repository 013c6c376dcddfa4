// Package journal keeps a local SQL log of every attendance submission attempt.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the classified result of a submission attempt.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeLocation   Outcome = "location_error"
	OutcomeCapture    Outcome = "capture_error"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeNetwork    Outcome = "network"
	OutcomeValidation Outcome = "validation"
	OutcomeAuth       Outcome = "auth"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeError      Outcome = "error"
)

// Entry is one submission attempt.
type Entry struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	SessionID string    `json:"session_id"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	RecordID  *string   `json:"record_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows ListEntries.
type Filter struct {
	CourseID  string
	SessionID string
	Outcome   Outcome
	Limit     int
	Offset    int
}

// Repository persists journal entries. Queries use $n placeholders in
// ascending order so they run unchanged on Postgres and SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	course_id   TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	accuracy    DOUBLE PRECISION,
	record_id   TEXT,
	started_at  TIMESTAMP NOT NULL,
	elapsed_ms  BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_session_idx ON submissions (session_id, started_at);
`

// Migrate creates the journal table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Insert writes a new entry.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.SessionID == "" {
		return Entry{}, errors.New("session id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeError
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	e.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, course_id, session_id, outcome, message, latitude, longitude, accuracy, record_id, started_at, elapsed_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.CourseID, e.SessionID, string(e.Outcome), e.Message, e.Latitude, e.Longitude, e.Accuracy, e.RecordID, e.StartedAt.UTC(), e.Elapsed, e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

const columns = `id, course_id, session_id, outcome, message, latitude, longitude, accuracy, record_id, started_at, elapsed_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		outcome string
	)
	err := s.Scan(&e.ID, &e.CourseID, &e.SessionID, &outcome, &e.Message, &e.Latitude, &e.Longitude, &e.Accuracy, &e.RecordID, &e.StartedAt, &e.Elapsed, &e.CreatedAt)
	e.Outcome = Outcome(outcome)
	return e, err
}

// Get returns a single entry by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM submissions WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// List returns entries, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + columns + ` FROM submissions`
	args := []any{}
	clauses := []string{}
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		clauses = append(clauses, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		clauses = append(clauses, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Counts returns the number of attempts per outcome for a session.
func (r *Repository) Counts(ctx context.Context, sessionID string) (map[Outcome]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM submissions
		WHERE session_id = $1
		GROUP BY outcome
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Outcome]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[Outcome(outcome)] = n
	}
	return out, rows.Err()
}

// Prune deletes entries started before cutoff and reports how many went.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
