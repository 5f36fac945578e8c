package store

import (
	"context"
	"log/slog"
)

// BestEffort wraps a Store so that failures are logged and degrade to
// empty results. Every method except Ping returns a nil error.
type BestEffort struct {
	inner  Store
	logger *slog.Logger
}

// NewBestEffort wraps inner. A nil logger uses slog.Default().
func NewBestEffort(inner Store, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{inner: inner, logger: logger.With(slog.String("component", "store"))}
}

// Unwrap returns the wrapped store.
func (b *BestEffort) Unwrap() Store {
	return b.inner
}

func (b *BestEffort) warn(op, sessionID string, err error) {
	b.logger.Warn("store operation failed",
		slog.String("op", op),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
}

// LoadHistory returns no messages on failure.
func (b *BestEffort) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	history, err := b.inner.LoadHistory(ctx, sessionID, limit)
	if err != nil {
		b.warn("load_history", sessionID, err)
		return nil, nil
	}
	return history, nil
}

// LoadSessionContext returns the zero context on failure.
func (b *BestEffort) LoadSessionContext(ctx context.Context, sessionID string) (SessionContext, error) {
	sc, err := b.inner.LoadSessionContext(ctx, sessionID)
	if err != nil {
		b.warn("load_session_context", sessionID, err)
		return SessionContext{}, nil
	}
	return sc, nil
}

// Turns returns no turns on failure.
func (b *BestEffort) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	turns, err := b.inner.Turns(ctx, sessionID, limit)
	if err != nil {
		b.warn("turns", sessionID, err)
		return nil, nil
	}
	return turns, nil
}

// ListSessions returns no sessions on failure.
func (b *BestEffort) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	sessions, err := b.inner.ListSessions(ctx, userID, limit)
	if err != nil {
		b.logger.Warn("store operation failed",
			slog.String("op", "list_sessions"),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return sessions, nil
}

// AppendTurn returns the turn unchanged on failure.
func (b *BestEffort) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	stored, err := b.inner.AppendTurn(ctx, turn)
	if err != nil {
		b.warn("append_turn", turn.SessionID, err)
		return turn, nil
	}
	return stored, nil
}

// UpsertSession logs failures.
func (b *BestEffort) UpsertSession(ctx context.Context, session Session) error {
	if err := b.inner.UpsertSession(ctx, session); err != nil {
		b.warn("upsert_session", session.ID, err)
	}
	return nil
}

// AppendTrace logs failures.
func (b *BestEffort) AppendTrace(ctx context.Context, sessionID, turnID string, entries []TraceEntry) error {
	if err := b.inner.AppendTrace(ctx, sessionID, turnID, entries); err != nil {
		b.warn("append_trace", sessionID, err)
	}
	return nil
}

// TraceEntries returns no entries on failure.
func (b *BestEffort) TraceEntries(ctx context.Context, sessionID, turnID string) ([]TraceEntry, error) {
	entries, err := b.inner.TraceEntries(ctx, sessionID, turnID)
	if err != nil {
		b.warn("trace_entries", sessionID, err)
		return nil, nil
	}
	return entries, nil
}

// Ping reports the wrapped store's health unchanged.
func (b *BestEffort) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// Close closes the wrapped store.
func (b *BestEffort) Close() error {
	return b.inner.Close()
}

var _ Store = (*BestEffort)(nil)
