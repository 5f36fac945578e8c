package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL DEFAULT '',
    preview          TEXT NOT NULL DEFAULT '',
    first_message_at TIMESTAMPTZ NOT NULL,
    last_message_at  TIMESTAMPTZ NOT NULL,
    total_turns      INTEGER NOT NULL DEFAULT 0,
    had_safety_flag  BOOLEAN NOT NULL DEFAULT FALSE
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
    safety_flag        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (session_id, turn_number)
);

CREATE TABLE IF NOT EXISTS agent_logs (
    seq         BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    turn_id     TEXT NOT NULL DEFAULT '',
    node        TEXT NOT NULL,
    summary     TEXT NOT NULL,
    status      TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user    ON sessions(user_id, last_message_at);
CREATE INDEX IF NOT EXISTS idx_agent_logs_turn  ON agent_logs(session_id, turn_id);
`

// Postgres implements Store on PostgreSQL via pgx.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a store backed by the given pgx connection pool.
// The caller owns the pool unless the store came from OpenPostgres.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to dsn and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := NewPostgres(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// CreateSchema creates the conversation tables if they don't exist.
func (s *Postgres) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return err
}

// DropSchema drops the conversation tables.
func (s *Postgres) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS agent_logs, conversation_turns, sessions CASCADE;`)
	return err
}

// LoadHistory implements Store.
func (s *Postgres) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	turns, err := s.Turns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return historyFromTurns(turns), nil
}

// LoadSessionContext implements Store.
func (s *Postgres) LoadSessionContext(ctx context.Context, sessionID string) (SessionContext, error) {
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
func (s *Postgres) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	var maxRows *int
	if limit > 0 {
		maxRows = &limit
	}
	rows, err := s.db.Query(ctx, `
		SELECT * FROM (
			SELECT `+turnColumns+` FROM conversation_turns
			WHERE session_id = $1
			ORDER BY turn_number DESC
			LIMIT $2
		) recent ORDER BY turn_number ASC
	`, sessionID, maxRows)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.Number, &t.UserMessage,
			&t.AssistantResponse, &t.Anxiety, &t.Shame, &t.SafetyFlag, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan turns: %w", err)
	}
	return turns, nil
}

// ListSessions implements Store.
func (s *Postgres) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	var maxRows *int
	if limit > 0 {
		maxRows = &limit
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, user_id, preview, first_message_at, last_message_at, total_turns, had_safety_flag
		FROM sessions
		WHERE $1 = '' OR user_id = $1
		ORDER BY last_message_at DESC, session_id ASC
		LIMIT $2
	`, userID, maxRows)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		var sess Session
		err := row.Scan(&sess.ID, &sess.UserID, &sess.Preview, &sess.FirstMessageAt,
			&sess.LastMessageAt, &sess.TotalTurns, &sess.HadSafetyFlag)
		return sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

// AppendTurn implements Store.
func (s *Postgres) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.SessionID == "" {
		return Turn{}, ErrSessionRequired
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes turn numbering per session.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, turn.SessionID); err != nil {
		return Turn{}, fmt.Errorf("lock session: %w", err)
	}
	if turn.Number == 0 {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(turn_number), 0) + 1 FROM conversation_turns WHERE session_id = $1`,
			turn.SessionID,
		).Scan(&turn.Number); err != nil {
			return Turn{}, fmt.Errorf("next turn number: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_turns (`+turnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, turn.ID, turn.SessionID, turn.UserID, turn.Number, turn.UserMessage, turn.AssistantResponse,
		turn.Anxiety, turn.Shame, turn.SafetyFlag, turn.CreatedAt); err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Turn{}, fmt.Errorf("commit turn: %w", err)
	}
	return turn, nil
}

// UpsertSession implements Store.
func (s *Postgres) UpsertSession(ctx context.Context, session Session) error {
	if session.ID == "" {
		return ErrSessionRequired
	}

	session = normalizeSession(session, time.Now().UTC())
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, preview, first_message_at, last_message_at, total_turns, had_safety_flag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id          = CASE WHEN sessions.user_id = '' THEN EXCLUDED.user_id ELSE sessions.user_id END,
			preview          = CASE WHEN sessions.preview = '' THEN EXCLUDED.preview ELSE sessions.preview END,
			first_message_at = LEAST(sessions.first_message_at, EXCLUDED.first_message_at),
			last_message_at  = GREATEST(sessions.last_message_at, EXCLUDED.last_message_at),
			total_turns      = GREATEST(sessions.total_turns, EXCLUDED.total_turns),
			had_safety_flag  = sessions.had_safety_flag OR EXCLUDED.had_safety_flag
	`, session.ID, session.UserID, session.Preview, session.FirstMessageAt,
		session.LastMessageAt, session.TotalTurns, session.HadSafetyFlag)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AppendTrace implements Store.
func (s *Postgres) AppendTrace(ctx context.Context, sessionID, turnID string, entries []TraceEntry) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		batch.Queue(`
			INSERT INTO agent_logs (session_id, turn_id, node, summary, status, category, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, sessionID, turnID, e.Node, e.Summary, e.Status, e.Category, e.DurationMs, e.CreatedAt)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return tx.Commit(ctx)
}

// TraceEntries implements Store.
func (s *Postgres) TraceEntries(ctx context.Context, sessionID, turnID string) ([]TraceEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, turn_id, node, summary, status, category, duration_ms, created_at
		FROM agent_logs
		WHERE session_id = $1 AND ($2 = '' OR turn_id = $2)
		ORDER BY seq
	`, sessionID, turnID)
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TraceEntry, error) {
		var e TraceEntry
		err := row.Scan(&e.SessionID, &e.TurnID, &e.Node, &e.Summary, &e.Status,
			&e.Category, &e.DurationMs, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	return entries, nil
}

// Ping implements Store.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements Store.
func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}

var _ Store = (*Postgres)(nil)
