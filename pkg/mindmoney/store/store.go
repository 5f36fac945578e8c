// Package store persists MindMoney conversations: turns, session metadata,
// and the per-node trace of every turn.
//
// Three backends implement Store. Memory is for tests and single-process
// demos, SQLite embeds a file database through modernc.org/sqlite, and
// Postgres runs against a pgx connection pool. Open selects one by driver
// name.
//
// The workflow treats persistence as best-effort. Wrap a Store with
// NewBestEffort to log failures and degrade to empty results instead of
// returning errors.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store: closed")

	// ErrSessionRequired is returned when a write has no session ID.
	ErrSessionRequired = errors.New("store: session id is required")
)

// Store is the durable conversation log.
//
// Listing operations return results oldest first. A non-positive limit
// means no limit.
type Store interface {
	// LoadHistory returns the most recent limit turns of a session as
	// alternating user and assistant messages.
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// LoadSessionContext summarizes the session's latest turn.
	LoadSessionContext(ctx context.Context, sessionID string) (SessionContext, error)

	// Turns returns the most recent limit turns of a session.
	Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// ListSessions returns sessions most recently active first. An empty
	// userID lists every session.
	ListSessions(ctx context.Context, userID string, limit int) ([]Session, error)

	// AppendTurn stores a turn. A missing ID, Number, or CreatedAt is
	// assigned and the stored turn is returned.
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)

	// UpsertSession creates or updates session metadata. FirstMessageAt,
	// Preview, and UserID keep their stored values once set, and
	// HadSafetyFlag never reverts to false.
	UpsertSession(ctx context.Context, session Session) error

	// AppendTrace stores the trace entries of one turn.
	AppendTrace(ctx context.Context, sessionID, turnID string, entries []TraceEntry) error

	// TraceEntries returns the trace of one turn, or of the whole session
	// when turnID is empty, in insertion order.
	TraceEntries(ctx context.Context, sessionID, turnID string) ([]TraceEntry, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Message is one side of a conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one user message and the assistant's reply.
type Turn struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id,omitempty"`
	Number            int       `json:"turn_number"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Anxiety           *int      `json:"intake_anxiety,omitempty"`
	Shame             *int      `json:"intake_shame,omitempty"`
	SafetyFlag        bool      `json:"safety_flag"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session is the metadata row of a conversation.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	TotalTurns     int       `json:"total_turns"`
	HadSafetyFlag  bool      `json:"had_safety_flag"`
}

// TraceEntry records what one node did during a turn.
type TraceEntry struct {
	SessionID  string    `json:"session_id,omitempty"`
	TurnID     string    `json:"turn_id,omitempty"`
	Node       string    `json:"node"`
	Summary    string    `json:"summary"`
	Status     string    `json:"status"`
	Category   string    `json:"category,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionContext summarizes where a session left off.
type SessionContext struct {
	TurnCount       int    `json:"turn_count"`
	LastUserMessage string `json:"last_user_message,omitempty"`
	LastAnxiety     *int   `json:"last_anxiety,omitempty"`
	LastShame       *int   `json:"last_shame,omitempty"`
	SafetyFlagged   bool   `json:"safety_flagged"`
}

// PreviewLength bounds Session.Preview.
const PreviewLength = 100

// Preview truncates a first message to PreviewLength runes.
func Preview(message string) string {
	runes := []rune(message)
	if len(runes) <= PreviewLength {
		return message
	}
	return string(runes[:PreviewLength])
}

// historyFromTurns flattens turns into chat messages.
func historyFromTurns(turns []Turn) []Message {
	history := make([]Message, 0, 2*len(turns))
	for _, t := range turns {
		history = append(history, Message{Role: RoleUser, Content: t.UserMessage})
		if t.AssistantResponse != "" {
			history = append(history, Message{Role: RoleAssistant, Content: t.AssistantResponse})
		}
	}
	return history
}

// contextFromTurn summarizes the latest turn. A nil turn yields the zero
// context.
func contextFromTurn(latest *Turn) SessionContext {
	if latest == nil {
		return SessionContext{}
	}
	return SessionContext{
		TurnCount:       latest.Number,
		LastUserMessage: latest.UserMessage,
		LastAnxiety:     latest.Anxiety,
		LastShame:       latest.Shame,
		SafetyFlagged:   latest.SafetyFlag,
	}
}

// mergeSession applies an upsert to the stored row.
func mergeSession(stored, update Session) Session {
	merged := update
	if !stored.FirstMessageAt.IsZero() && (merged.FirstMessageAt.IsZero() || stored.FirstMessageAt.Before(merged.FirstMessageAt)) {
		merged.FirstMessageAt = stored.FirstMessageAt
	}
	if stored.Preview != "" {
		merged.Preview = stored.Preview
	}
	if stored.UserID != "" {
		merged.UserID = stored.UserID
	}
	if merged.LastMessageAt.Before(stored.LastMessageAt) {
		merged.LastMessageAt = stored.LastMessageAt
	}
	if merged.TotalTurns < stored.TotalTurns {
		merged.TotalTurns = stored.TotalTurns
	}
	merged.HadSafetyFlag = stored.HadSafetyFlag || update.HadSafetyFlag
	return merged
}

// normalizeSession fills timestamps and the preview of a new session.
func normalizeSession(s Session, now time.Time) Session {
	if s.LastMessageAt.IsZero() {
		s.LastMessageAt = now
	}
	if s.FirstMessageAt.IsZero() {
		s.FirstMessageAt = s.LastMessageAt
	}
	s.Preview = Preview(s.Preview)
	return s
}
