package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL DEFAULT '',
	preview          TEXT NOT NULL DEFAULT '',
	first_message_at TEXT NOT NULL,
	last_message_at  TEXT NOT NULL,
	total_turns      INTEGER NOT NULL DEFAULT 0,
	had_safety_flag  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	turn_number        INTEGER NOT NULL,
	user_message       TEXT NOT NULL,
	assistant_response TEXT NOT NULL,
	intake_anxiety     INTEGER,
	intake_shame       INTEGER,
	safety_flag        INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_logs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	turn_id     TEXT NOT NULL DEFAULT '',
	node        TEXT NOT NULL,
	summary     TEXT NOT NULL,
	status      TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id, turn_number);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, last_message_at);
CREATE INDEX IF NOT EXISTS idx_agent_logs_turn ON agent_logs(session_id, turn_id);
`

const turnColumns = `id, session_id, user_id, turn_number, user_message, assistant_response,
	intake_anxiety, intake_shame, safety_flag, created_at`

// SQLite persists conversations to an embedded SQLite database.
// It is suitable for single-process production use.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLite opens (creating if needed) the database at path.
// Use ":memory:" for testing.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// LoadHistory implements Store.
func (s *SQLite) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	turns, err := s.Turns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return historyFromTurns(turns), nil
}

// LoadSessionContext implements Store.
func (s *SQLite) LoadSessionContext(ctx context.Context, sessionID string) (SessionContext, error) {
	turns, err := s.Turns(ctx, sessionID, 1)
	if err != nil {
		return SessionContext{}, err
	}
	if len(turns) == 0 {
		return contextFromTurn(nil), nil
	}
	return contextFromTurn(&turns[0]), nil
}

// Turns implements Store.
func (s *SQLite) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+turnColumns+` FROM conversation_turns
			WHERE session_id = ?
			ORDER BY turn_number DESC
			LIMIT ?
		) ORDER BY turn_number ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t              Turn
			anxiety, shame sql.NullInt64
			created        string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserID, &t.Number, &t.UserMessage,
			&t.AssistantResponse, &anxiety, &shame, &t.SafetyFlag, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Anxiety, t.Shame = nullableInt(anxiety), nullableInt(shame)
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListSessions implements Store.
func (s *SQLite) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, preview, first_message_at, last_message_at, total_turns, had_safety_flag
		FROM sessions
		WHERE ? = '' OR user_id = ?
		ORDER BY last_message_at DESC, session_id ASC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess        Session
			first, last string
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Preview, &first, &last,
			&sess.TotalTurns, &sess.HadSafetyFlag); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.FirstMessageAt, sess.LastMessageAt = parseTime(first), parseTime(last)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendTurn implements Store.
func (s *SQLite) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.SessionID == "" {
		return Turn{}, ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Turn{}, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Turn{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if turn.Number == 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(turn_number), 0) + 1 FROM conversation_turns WHERE session_id = ?`,
			turn.SessionID,
		).Scan(&turn.Number); err != nil {
			return Turn{}, fmt.Errorf("next turn number: %w", err)
		}
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (`+turnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.SessionID, turn.UserID, turn.Number, turn.UserMessage, turn.AssistantResponse,
		turn.Anxiety, turn.Shame, turn.SafetyFlag, formatTime(turn.CreatedAt)); err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Turn{}, fmt.Errorf("commit turn: %w", err)
	}
	return turn, nil
}

// UpsertSession implements Store.
func (s *SQLite) UpsertSession(ctx context.Context, session Session) error {
	if session.ID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	session = normalizeSession(session, time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, preview, first_message_at, last_message_at, total_turns, had_safety_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id          = CASE WHEN sessions.user_id = '' THEN excluded.user_id ELSE sessions.user_id END,
			preview          = CASE WHEN sessions.preview = '' THEN excluded.preview ELSE sessions.preview END,
			first_message_at = MIN(sessions.first_message_at, excluded.first_message_at),
			last_message_at  = MAX(sessions.last_message_at, excluded.last_message_at),
			total_turns      = MAX(sessions.total_turns, excluded.total_turns),
			had_safety_flag  = MAX(sessions.had_safety_flag, excluded.had_safety_flag)
	`, session.ID, session.UserID, session.Preview, formatTime(session.FirstMessageAt),
		formatTime(session.LastMessageAt), session.TotalTurns, session.HadSafetyFlag)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AppendTrace implements Store.
func (s *SQLite) AppendTrace(ctx context.Context, sessionID, turnID string, entries []TraceEntry) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_logs (session_id, turn_id, node, summary, status, category, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, turnID, e.Node, e.Summary, e.Status, e.Category, e.DurationMs, formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("insert trace entry %s: %w", e.Node, err)
		}
	}
	return tx.Commit()
}

// TraceEntries implements Store.
func (s *SQLite) TraceEntries(ctx context.Context, sessionID, turnID string) ([]TraceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_id, node, summary, status, category, duration_ms, created_at
		FROM agent_logs
		WHERE session_id = ? AND (? = '' OR turn_id = ?)
		ORDER BY seq
	`, sessionID, turnID, turnID)
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}
	defer rows.Close()

	var entries []TraceEntry
	for rows.Next() {
		var (
			e       TraceEntry
			created string
		)
		if err := rows.Scan(&e.SessionID, &e.TurnID, &e.Node, &e.Summary, &e.Status,
			&e.Category, &e.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("scan trace entry: %w", err)
		}
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping implements Store.
func (s *SQLite) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

var _ Store = (*SQLite)(nil)
