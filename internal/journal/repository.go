package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	CreateCommand(ctx context.Context, c *CommandRecord) error
	UpdateCommand(ctx context.Context, c *CommandRecord) error
	GetCommand(ctx context.Context, id string) (*CommandRecord, error)
	ListCommands(ctx context.Context, sessionID string) ([]*CommandRecord, error)
	DeleteCommand(ctx context.Context, id string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sessionColumns = `id, prompt, state, provenance, step_count, steps_applied, summary, error, created_at, updated_at`

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Prompt, s.State, nullString(s.Provenance), s.StepCount, s.StepsApplied,
		nullString(s.Summary), nullString(s.Error),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, provenance = ?, step_count = ?, steps_applied = ?,
			summary = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, s.State, nullString(s.Provenance), s.StepCount, s.StepsApplied,
		nullString(s.Summary), nullString(s.Error), formatTime(s.UpdatedAt), s.ID)
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var provenance, summary, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.Prompt, &s.State, &provenance, &s.StepCount, &s.StepsApplied,
		&summary, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.Provenance = provenance.String
	s.Summary = summary.String
	s.Error = errMsg.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

const commandColumns = `id, session_id, kind, description, phase, steps_done, steps_total, fraction, succeeded, failed, error, created_at, updated_at`

func (r *SQLiteRepository) CreateCommand(ctx context.Context, c *CommandRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (`+commandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, nullString(c.SessionID), c.Kind, c.Description, c.Phase,
		c.Progress.Done, c.Progress.Total, c.Progress.Fraction,
		c.Succeeded, c.Failed, nullString(c.Error),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return err
}

func (r *SQLiteRepository) UpdateCommand(ctx context.Context, c *CommandRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commands SET phase = ?, steps_done = ?, steps_total = ?, fraction = ?,
			succeeded = ?, failed = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, c.Phase, c.Progress.Done, c.Progress.Total, c.Progress.Fraction,
		c.Succeeded, c.Failed, nullString(c.Error), formatTime(c.UpdatedAt), c.ID)
	return err
}

func (r *SQLiteRepository) GetCommand(ctx context.Context, id string) (*CommandRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	c, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCommands returns the unacknowledged commands, oldest first. An empty
// sessionID lists every session's commands.
func (r *SQLiteRepository) ListCommands(ctx context.Context, sessionID string) ([]*CommandRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if sessionID == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+commandColumns+` FROM commands ORDER BY created_at ASC, id ASC`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+commandColumns+` FROM commands WHERE session_id = ? ORDER BY created_at ASC, id ASC
		`, sessionID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []*CommandRecord
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

func scanCommand(row scanner) (*CommandRecord, error) {
	var c CommandRecord
	var sessionID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &sessionID, &c.Kind, &c.Description, &c.Phase,
		&c.Progress.Done, &c.Progress.Total, &c.Progress.Fraction,
		&c.Succeeded, &c.Failed, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.SessionID = sessionID.String
	c.Error = errMsg.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) DeleteCommand(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM commands WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// rows touched by markInterrupted carry sqlite's datetime() format
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
