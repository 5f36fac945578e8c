package mindmoney

import (
	"github.com/randalmurphal/mindflow/pkg/flowgraph/reduce"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

// Route is the intake classification label.
type Route string

// Declared routes out of intake.
const (
	RouteGreeting  Route = "greeting"
	RouteFinancial Route = "financial"
)

// Node IDs.
const (
	NodeIntake          = "intake"
	NodeGreeting        = "greeting"
	NodeContext         = "context"
	NodeWealthArchitect = "wealth_architect"
	NodeMarketResearch  = "market_research"
	NodeCareManager     = "care_manager"
	NodeActionGenerator = "action_generator"
)

// Trace statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// State is threaded through every node of a turn.
type State struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Input     string          `json:"input"`
	History   []store.Message `json:"history,omitempty"`

	Classification   Route          `json:"classification,omitempty"`
	IntakeProfile    map[string]any `json:"intake_profile,omitempty"`
	FinancialProfile map[string]any `json:"financial_profile,omitempty"`
	Research         string         `json:"research,omitempty"`
	SessionContext   map[string]any `json:"session_context,omitempty"`

	Response   string       `json:"response,omitempty"`
	ActionPlan *ActionPlan  `json:"action_plan,omitempty"`
	Trace      []TraceEntry `json:"trace,omitempty"`
}

// TraceEntry records one node's outcome.
type TraceEntry struct {
	Node       string `json:"node"`
	Summary    string `json:"summary"`
	Status     string `json:"status"`
	Category   string `json:"category,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Failed reports whether the node degraded.
func (e TraceEntry) Failed() bool {
	return e.Status == StatusFailed
}

// ActionPlan is the structured next-steps output of a financial turn.
type ActionPlan struct {
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
	Items   []ActionItem `json:"items"`
}

// ActionItem is one step of an ActionPlan.
type ActionItem struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Priority string `json:"priority"`
}

// Schema declares the merge policy of every State field.
var Schema = reduce.MustSchema(
	reduce.Scalar("SessionID", func(s *State) *string { return &s.SessionID }),
	reduce.Scalar("UserID", func(s *State) *string { return &s.UserID }),
	reduce.Scalar("Input", func(s *State) *string { return &s.Input }),
	reduce.ScalarFunc("History", func(s *State) *[]store.Message { return &s.History },
		func(h []store.Message) bool { return len(h) > 0 }),
	reduce.Scalar("Classification", func(s *State) *Route { return &s.Classification }),
	reduce.Map("IntakeProfile", func(s *State) *map[string]any { return &s.IntakeProfile }),
	reduce.Map("FinancialProfile", func(s *State) *map[string]any { return &s.FinancialProfile }),
	reduce.Scalar("Research", func(s *State) *string { return &s.Research }),
	reduce.Map("SessionContext", func(s *State) *map[string]any { return &s.SessionContext }),
	reduce.Scalar("Response", func(s *State) *string { return &s.Response }),
	reduce.Scalar("ActionPlan", func(s *State) **ActionPlan { return &s.ActionPlan }),
	reduce.List("Trace", func(s *State) *[]TraceEntry { return &s.Trace }),
)

// Degraded returns the trace entries of nodes that failed.
func (s State) Degraded() []TraceEntry {
	var failed []TraceEntry
	for _, e := range s.Trace {
		if e.Failed() {
			failed = append(failed, e)
		}
	}
	return failed
}

// Visited returns the node of every trace entry in order.
func (s State) Visited() []string {
	nodes := make([]string, 0, len(s.Trace))
	for _, e := range s.Trace {
		nodes = append(nodes, e.Node)
	}
	return nodes
}
