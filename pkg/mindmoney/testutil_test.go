package mindmoney

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
)

// Canned completions for a financial turn.
const (
	intakeGreeting  = `{"classification": "greeting", "emotions": {"anxiety": 1, "shame": 0}}`
	intakeFinancial = `{"classification": "Financial", "emotions": {"anxiety": 7, "shame": 3}, "safety_flag": false, "validation_hook": "That sounds stressful."}`
	wealthReply     = "```json\n{\"entities\": [{\"item\": \"Credit card\", \"amount\": 5000, \"type\": \"debt\"}, {\"item\": \"Salary\", \"amount\": 4000, \"type\": \"income\"}], \"missing_info\": [\"expenses\"]}\n```"
	careReply       = "You have more room than it feels like. Let's start with the card."
	actionReply     = `{"title": "Debt plan", "summary": "Pay down the card", "items": [{"title": "List expenses", "detail": "Track a month", "priority": "HIGH"}, {"title": "Extra payment", "detail": "$300 a month", "priority": "asap"}]}`
)

// script answers completions by system prompt. A missing entry fails the
// call; an error entry is returned as the error.
type script map[string]any

func (s script) client() *llm.MockClient {
	return llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		switch v := s[req.SystemPrompt].(type) {
		case string:
			return &llm.CompletionResponse{Content: v, FinishReason: "stop"}, nil
		case error:
			return nil, v
		case func() string:
			return &llm.CompletionResponse{Content: v(), FinishReason: "stop"}, nil
		default:
			return nil, errors.New("unscripted prompt")
		}
	})
}

func financialScript() script {
	return script{
		intakePrompt: intakeFinancial,
		wealthPrompt: wealthReply,
		carePrompt:   careReply,
		actionPrompt: actionReply,
	}
}

// callsFor returns the recorded requests sent with system prompt.
func callsFor(m *llm.MockClient, prompt string) []llm.CompletionRequest {
	var out []llm.CompletionRequest
	for _, c := range m.Calls {
		if c.SystemPrompt == prompt {
			out = append(out, c)
		}
	}
	return out
}

// fakeSearch records queries and answers with a fixed text.
type fakeSearch struct {
	mu      sync.Mutex
	text    string
	queries []string
	panics  bool
	delay   time.Duration
}

func (f *fakeSearch) Search(_ context.Context, query string) string {
	time.Sleep(f.delay)
	if f.panics {
		panic("search exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.text
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lastMessage(req llm.CompletionRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}
