package mindmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/mindflow/pkg/flowgraph"
	flowerrors "github.com/randalmurphal/mindflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/search"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

// Searcher looks up current information for a query. Implementations
// report failure in the returned text.
type Searcher interface {
	Search(ctx context.Context, query string) string
}

// agents holds the collaborators shared by the node functions.
type agents struct {
	llm      llm.Client
	search   Searcher
	store    store.Store
	settings Settings
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func complete(node, summary string, start time.Time) []TraceEntry {
	return []TraceEntry{{Node: node, Summary: summary, Status: StatusComplete, DurationMs: elapsedMs(start)}}
}

// ask sends one completion and returns its trimmed text.
func (a *agents) ask(ctx context.Context, system string, messages []llm.Message, temperature float64, format llm.Format) (string, error) {
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     messages,
		Temperature:  llm.Temperature(temperature),
		Format:       format,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// conversation renders prior turns followed by the current input.
func conversation(history []store.Message, input string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: input})
}

func (a *agents) intake(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	text, err := a.ask(ctx, intakePrompt, conversation(s.History, s.Input), a.settings.IntakeTemperature, llm.FormatJSON)
	if err != nil {
		return State{}, err
	}

	data := ParseJSON(text)
	if len(data) == 0 {
		return State{}, &flowerrors.JSONParseError{Input: text, Message: "intake returned no JSON object"}
	}
	label, _ := data["classification"].(string)
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return State{}, &flowerrors.ValidationError{Field: "classification", Message: "missing from intake output"}
	}

	summary := "Classified " + label
	if anxiety, ok := intValue(nested(data, "emotions")["anxiety"]); ok {
		summary += fmt.Sprintf(", anxiety %d", anxiety)
	}
	if flagged, _ := data["safety_flag"].(bool); flagged {
		summary += ", safety flag raised"
	}

	return State{
		Classification: Route(label),
		IntakeProfile:  data,
		Trace:          complete(NodeIntake, summary, start),
	}, nil
}

// routeIntake sends the turn down the branch intake classified it into.
func routeIntake(_ flowgraph.Context, s State) string {
	return string(s.Classification)
}

func (a *agents) greeting(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	text, err := a.ask(ctx, greetingPrompt, conversation(s.History, s.Input), a.settings.SynthesizerTemperature, llm.FormatText)
	if err != nil {
		return State{}, err
	}
	if text == "" {
		text = fallbackGreeting
	}

	return State{
		Response: text,
		Trace:    complete(NodeGreeting, "Greeted user", start),
	}, nil
}

func (a *agents) sessionContext(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	if a.store == nil || s.SessionID == "" {
		return State{Trace: complete(NodeContext, "No prior session", start)}, nil
	}

	sc, err := a.store.LoadSessionContext(ctx, s.SessionID)
	if err != nil {
		return State{}, err
	}
	if sc.TurnCount == 0 {
		return State{Trace: complete(NodeContext, "New session", start)}, nil
	}

	loaded := map[string]any{
		"turn_count":     sc.TurnCount,
		"safety_flagged": sc.SafetyFlagged,
	}
	if sc.LastUserMessage != "" {
		loaded["last_user_message"] = sc.LastUserMessage
	}
	if sc.LastAnxiety != nil {
		loaded["last_anxiety"] = *sc.LastAnxiety
	}
	if sc.LastShame != nil {
		loaded["last_shame"] = *sc.LastShame
	}

	return State{
		SessionContext: loaded,
		Trace:          complete(NodeContext, fmt.Sprintf("Loaded context from %d prior turns", sc.TurnCount), start),
	}, nil
}

func (a *agents) wealthArchitect(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	text, err := a.ask(ctx, wealthPrompt, conversation(s.History, s.Input), a.settings.PlannerTemperature, llm.FormatJSON)
	if err != nil {
		return State{}, err
	}

	data := ParseJSON(text)
	if len(data) == 0 {
		return State{}, &flowerrors.JSONParseError{Input: text, Message: "financial profile returned no JSON object"}
	}
	entities, _ := data["entities"].([]any)

	return State{
		FinancialProfile: data,
		Trace:            complete(NodeWealthArchitect, fmt.Sprintf("Found %d entities", len(entities)), start),
	}, nil
}

// researchQuery derives the search query from the user's message.
func researchQuery(input string) string {
	const maxQuery = 300
	q := strings.Join(strings.Fields(input), " ")
	if runes := []rune(q); len(runes) > maxQuery {
		q = string(runes[:maxQuery])
	}
	return "personal finance resources: " + q
}

func (a *agents) marketResearch(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	if a.search == nil {
		return State{Research: search.Disabled, Trace: complete(NodeMarketResearch, search.Disabled, start)}, nil
	}

	text := a.search.Search(ctx, researchQuery(s.Input))
	summary := text
	if !search.IsDegraded(text) {
		summary = fmt.Sprintf("Found %d sources", strings.Count(text, "\n")+1)
	}

	return State{
		Research: text,
		Trace:    complete(NodeMarketResearch, summary, start),
	}, nil
}

// reportJSON renders a report section, treating a missing one as empty.
func reportJSON(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (a *agents) careManager(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	var report strings.Builder
	fmt.Fprintf(&report, "USER: %s\n", s.Input)
	fmt.Fprintf(&report, "INTAKE: %s\n", reportJSON(s.IntakeProfile))
	fmt.Fprintf(&report, "WEALTH: %s\n", reportJSON(s.FinancialProfile))
	fmt.Fprintf(&report, "SESSION: %s\n", reportJSON(s.SessionContext))
	if s.Research != "" {
		fmt.Fprintf(&report, "MARKET RESEARCH:\n%s\n", s.Research)
	}

	text, err := a.ask(ctx, carePrompt, conversation(s.History, report.String()), a.settings.SynthesizerTemperature, llm.FormatText)
	if err != nil {
		return State{}, err
	}
	if text == "" {
		text = fallbackBusy
	}

	return State{
		Response: text,
		Trace:    complete(NodeCareManager, "Response synthesized", start),
	}, nil
}

func (a *agents) actionGenerator(ctx flowgraph.Context, s State) (State, error) {
	start := time.Now()

	prompt := fmt.Sprintf("USER: %s\nCOACH RESPONSE: %s\nWEALTH: %s", s.Input, s.Response, reportJSON(s.FinancialProfile))
	text, err := a.ask(ctx, actionPrompt, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, a.settings.PlannerTemperature, llm.FormatJSON)
	if err != nil {
		return State{}, err
	}

	data := ParseJSON(text)
	if len(data) == 0 {
		return State{}, &flowerrors.JSONParseError{Input: text, Message: "action plan returned no JSON object"}
	}
	var plan ActionPlan
	if err := decodeInto(data, &plan); err != nil {
		return State{}, &flowerrors.JSONParseError{Input: text, Message: err.Error()}
	}
	if len(plan.Items) == 0 {
		return State{}, &flowerrors.ValidationError{Field: "items", Message: "action plan has no items"}
	}
	for i := range plan.Items {
		plan.Items[i].Priority = normalizePriority(plan.Items[i].Priority)
	}

	return State{
		ActionPlan: &plan,
		Trace:      complete(NodeActionGenerator, fmt.Sprintf("Generated %d action items", len(plan.Items)), start),
	}, nil
}

func normalizePriority(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "high", "medium", "low":
		return p
	default:
		return "medium"
	}
}

// onFailure turns a node error into a failed trace entry plus the safe
// defaults downstream nodes depend on.
func (a *agents) onFailure(ctx flowgraph.Context, nodeID string, err error) State {
	cause := err
	var nodeErr *flowgraph.NodeError
	if errors.As(err, &nodeErr) {
		cause = nodeErr.Err
	}
	category := flowerrors.Categorize(err)

	ctx.Logger().Debug("applying node fallback",
		slog.String("node_id", nodeID),
		slog.String("category", category.String()),
	)

	update := State{Trace: []TraceEntry{{
		Node:       nodeID,
		Summary:    "Error: " + cause.Error(),
		Status:     StatusFailed,
		Category:   category.String(),
		DurationMs: flowgraph.NodeDuration(err).Milliseconds(),
	}}}

	switch nodeID {
	case NodeIntake:
		update.Classification = RouteFinancial
	case NodeGreeting:
		update.Response = fallbackGreeting
	case NodeMarketResearch:
		update.Research = search.Unavailable(cause)
	case NodeCareManager:
		update.Response = fallbackError
	}
	return update
}
