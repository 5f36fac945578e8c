package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store for testing.
// Data is lost when the process exits.
type Memory struct {
	mu       sync.RWMutex
	turns    map[string][]Turn // sessionID -> turns by number
	sessions map[string]Session
	traces   []TraceEntry
	closed   bool
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		turns:    make(map[string][]Turn),
		sessions: make(map[string]Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LoadHistory implements Store.
func (m *Memory) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	turns, err := m.Turns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return historyFromTurns(turns), nil
}

// LoadSessionContext implements Store.
func (m *Memory) LoadSessionContext(ctx context.Context, sessionID string) (SessionContext, error) {
	turns, err := m.Turns(ctx, sessionID, 1)
	if err != nil {
		return SessionContext{}, err
	}
	if len(turns) == 0 {
		return contextFromTurn(nil), nil
	}
	return contextFromTurn(&turns[0]), nil
}

// Turns implements Store.
func (m *Memory) Turns(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return slices.Clone(tail(m.turns[sessionID], limit)), nil
}

// ListSessions implements Store.
func (m *Memory) ListSessions(_ context.Context, userID string, limit int) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var sessions []Session
	for _, s := range m.sessions {
		if userID == "" || s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	slices.SortFunc(sessions, func(a, b Session) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// AppendTurn implements Store.
func (m *Memory) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	if turn.SessionID == "" {
		return Turn{}, ErrSessionRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Turn{}, ErrStoreClosed
	}

	existing := m.turns[turn.SessionID]
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Number == 0 {
		turn.Number = 1
		if n := len(existing); n > 0 {
			turn.Number = existing[n-1].Number + 1
		}
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = m.now()
	}

	existing = append(existing, turn)
	slices.SortStableFunc(existing, func(a, b Turn) int { return cmp.Compare(a.Number, b.Number) })
	m.turns[turn.SessionID] = existing
	return turn, nil
}

// UpsertSession implements Store.
func (m *Memory) UpsertSession(_ context.Context, session Session) error {
	if session.ID == "" {
		return ErrSessionRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	session = normalizeSession(session, m.now())
	if stored, ok := m.sessions[session.ID]; ok {
		session = mergeSession(stored, session)
	}
	m.sessions[session.ID] = session
	return nil
}

// AppendTrace implements Store.
func (m *Memory) AppendTrace(_ context.Context, sessionID, turnID string, entries []TraceEntry) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	now := m.now()
	for _, e := range entries {
		e.SessionID, e.TurnID = sessionID, turnID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		m.traces = append(m.traces, e)
	}
	return nil
}

// TraceEntries implements Store.
func (m *Memory) TraceEntries(_ context.Context, sessionID, turnID string) ([]TraceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var entries []TraceEntry
	for _, e := range m.traces {
		if e.SessionID == sessionID && (turnID == "" || e.TurnID == turnID) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// tail returns the last n elements, or all of them when n <= 0.
func tail[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
