package flowgraph

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/reduce"
)

// Test state types used across tests

// Counter is a simple state for testing sequential flows.
type Counter struct {
	Value int
}

var counterSchema = reduce.MustSchema(
	reduce.Scalar("Value", func(c *Counter) *int { return &c.Value }),
)

// State exercises every merge policy.
type State struct {
	Input  string
	Output string
	Route  string
	Trace  []string
	Notes  map[string]string
}

var stateSchema = reduce.MustSchema(
	reduce.Scalar("Input", func(s *State) *string { return &s.Input }),
	reduce.Scalar("Output", func(s *State) *string { return &s.Output }),
	reduce.Scalar("Route", func(s *State) *string { return &s.Route }),
	reduce.List("Trace", func(s *State) *[]string { return &s.Trace }),
	reduce.Map("Notes", func(s *State) *map[string]string { return &s.Notes }),
)

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Counter, error) {
	return Counter{Value: s.Value + 1}, nil
}

// traceNode returns a node that appends its name to the trace.
func traceNode(name string) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		return State{Trace: []string{name}}, nil
	}
}

// failNode returns a node that fails with err.
func failNode(err error) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		return State{}, err
	}
}

// panicNode returns a node that panics with value.
func panicNode(value any) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		panic(value)
	}
}

// traceFailure records the failed node in the trace.
func traceFailure(ctx Context, nodeID string, err error) State {
	return State{Trace: []string{"failed:" + nodeID}}
}

// diamond builds start -> {left, right} -> join -> END.
func diamond(left, right NodeFunc[State]) *Graph[State] {
	return NewGraph[State]().
		AddNode("start", traceNode("start")).
		AddNode("left", left).
		AddNode("right", right).
		AddNode("join", traceNode("join")).
		AddEdge("start", "left").
		AddEdge("start", "right").
		AddEdge("left", "join").
		AddEdge("right", "join").
		AddEdge("join", END).
		SetEntry("start").
		SetReducer(stateSchema.Reduce)
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// recordSink collects log records from a recordHandler and its children.
type recordSink struct {
	mu      sync.Mutex
	records []map[string]any
}

// recordHandler captures log records. Safe for concurrent nodes.
type recordHandler struct {
	sink  *recordSink
	attrs []slog.Attr
}

func newRecordHandler() *recordHandler {
	return &recordHandler{sink: &recordSink{}}
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	rec := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		rec[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec[a.Key] = a.Value.Any()
		return true
	})

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.records = append(h.sink.records, rec)
	return nil
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &recordHandler{sink: h.sink, attrs: merged}
}

func (h *recordHandler) WithGroup(string) slog.Handler { return h }

// find returns every record with the given message.
func (h *recordHandler) find(msg string) []map[string]any {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	var out []map[string]any
	for _, r := range h.sink.records {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

// mustJSON marshals v for test fixtures.
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// slogFor wraps a recordHandler in a logger.
func slogFor(h *recordHandler) *slog.Logger {
	return slog.New(h)
}
