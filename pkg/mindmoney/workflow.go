package mindmoney

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/mindflow/pkg/flowgraph"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

// GraphName labels runs in logs, spans, and metrics.
const GraphName = "mindmoney"

// Request is one user turn.
type Request struct {
	Message string
	// History overrides the stored history when non-empty.
	History   []store.Message
	SessionID string
	UserID    string
}

// Result is the outcome of one turn.
type Result struct {
	Response   string       `json:"response"`
	ActionPlan *ActionPlan  `json:"action_plan,omitempty"`
	Trace      []TraceEntry `json:"agent_logs"`
	SessionID  string       `json:"session_id"`
	// TurnNumber is zero when the turn was not persisted.
	TurnNumber int `json:"turn_number,omitempty"`
}

// Workflow runs turns through the compiled graph and records them.
// It is safe for concurrent use.
type Workflow struct {
	graph    *flowgraph.CompiledGraph[State]
	deps     Deps
	settings Settings
	logger   *slog.Logger
}

// NewWorkflow compiles the graph for deps.
func NewWorkflow(deps Deps, settings Settings) (*Workflow, error) {
	graph, err := BuildGraph(deps, settings)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		graph:    graph,
		deps:     deps,
		settings: settings,
		logger:   logger.With(slog.String("graph", GraphName)),
	}, nil
}

// Graph returns the compiled graph.
func (w *Workflow) Graph() *flowgraph.CompiledGraph[State] {
	return w.graph
}

// Run executes one turn. Only engine faults are returned as errors;
// degraded nodes and store failures still produce a Result.
func (w *Workflow) Run(ctx context.Context, req Request) (*Result, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	turnID := uuid.New().String()
	logger := w.logger.With(slog.String("session_id", sessionID), slog.String("turn_id", turnID))

	history := req.History
	if len(history) == 0 {
		history = w.loadHistory(ctx, logger, sessionID)
	}

	initial := State{
		SessionID: sessionID,
		UserID:    req.UserID,
		Input:     req.Message,
		History:   history,
	}

	opts := []flowgraph.RunOption{
		flowgraph.WithRunID(turnID),
		flowgraph.WithGraphName(GraphName),
		flowgraph.WithObservabilityLogger(logger),
	}
	if w.settings.MaxConcurrency > 0 {
		opts = append(opts, flowgraph.WithMaxConcurrency(w.settings.MaxConcurrency))
	}
	if w.deps.Checkpoints != nil {
		opts = append(opts, flowgraph.WithCheckpointing(w.deps.Checkpoints))
	}

	fctx := flowgraph.NewContext(ctx, flowgraph.WithLogger(logger), flowgraph.WithContextRunID(turnID))
	final, err := w.graph.Run(fctx, initial, opts...)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Response:   final.Response,
		ActionPlan: final.ActionPlan,
		Trace:      final.Trace,
		SessionID:  sessionID,
	}
	result.TurnNumber = w.persist(ctx, logger, turnID, final)
	return result, nil
}

func (w *Workflow) loadHistory(ctx context.Context, logger *slog.Logger, sessionID string) []store.Message {
	if w.deps.Store == nil {
		return nil
	}
	history, err := w.deps.Store.LoadHistory(ctx, sessionID, w.settings.HistoryLimit)
	if err != nil {
		logger.Warn("history unavailable", slog.Any("error", err))
		return nil
	}
	return history
}

// persist records the turn, its session, and its trace. Failures are
// logged; the returned turn number is zero when the turn was not stored.
func (w *Workflow) persist(ctx context.Context, logger *slog.Logger, turnID string, s State) int {
	if w.deps.Store == nil {
		return 0
	}

	emotions := nested(s.IntakeProfile, "emotions")
	flagged, _ := s.IntakeProfile["safety_flag"].(bool)
	now := time.Now().UTC()

	turn, err := w.deps.Store.AppendTurn(ctx, store.Turn{
		ID:                turnID,
		SessionID:         s.SessionID,
		UserID:            s.UserID,
		UserMessage:       s.Input,
		AssistantResponse: s.Response,
		Anxiety:           optionalInt(emotions["anxiety"]),
		Shame:             optionalInt(emotions["shame"]),
		SafetyFlag:        flagged,
		CreatedAt:         now,
	})
	if err != nil {
		logger.Warn("turn not persisted", slog.Any("error", err))
		return 0
	}

	err = w.deps.Store.UpsertSession(ctx, store.Session{
		ID:             s.SessionID,
		UserID:         s.UserID,
		Preview:        store.Preview(s.Input),
		FirstMessageAt: now,
		LastMessageAt:  now,
		TotalTurns:     turn.Number,
		HadSafetyFlag:  flagged,
	})
	if err != nil {
		logger.Warn("session not updated", slog.Any("error", err))
	}

	entries := make([]store.TraceEntry, len(s.Trace))
	for i, e := range s.Trace {
		entries[i] = store.TraceEntry{
			Node:       e.Node,
			Summary:    e.Summary,
			Status:     e.Status,
			Category:   e.Category,
			DurationMs: e.DurationMs,
			CreatedAt:  now,
		}
	}
	if err := w.deps.Store.AppendTrace(ctx, s.SessionID, turn.ID, entries); err != nil {
		logger.Warn("trace not persisted", slog.Any("error", err))
	}

	return turn.Number
}

func optionalInt(v any) *int {
	n, ok := intValue(v)
	if !ok {
		return nil
	}
	return &n
}
