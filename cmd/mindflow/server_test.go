package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mindflow/pkg/flowgraph"
	"github.com/randalmurphal/mindflow/pkg/mindmoney"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

type fakeTurner struct {
	got    mindmoney.Request
	result *mindmoney.Result
	err    error
}

func (f *fakeTurner) Run(_ context.Context, req mindmoney.Request) (*mindmoney.Result, error) {
	f.got = req
	return f.result, f.err
}

func testServer(t *testing.T, turns Turner, st store.Store) func(*http.Request) (int, map[string]any) {
	t.Helper()
	app := newServer(turns, st, mindmoney.DefaultSettings(), newLogger("error", "text", io.Discard))

	return func(req *http.Request) (int, map[string]any) {
		t.Helper()
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}
}

func postJSON(path string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChat(t *testing.T) {
	turner := &fakeTurner{result: &mindmoney.Result{
		Response:  "Let's look at it together.",
		SessionID: "s-1",
		Trace: []mindmoney.TraceEntry{
			{Node: mindmoney.NodeIntake, Summary: "Classified financial", Status: mindmoney.StatusComplete},
		},
		ActionPlan: &mindmoney.ActionPlan{Title: "Plan", Items: []mindmoney.ActionItem{{Title: "Budget", Priority: "high"}}},
	}}
	do := testServer(t, turner, store.NewMemory())

	status, body := do(postJSON("/api/chat", map[string]any{
		"message":    "I owe $5000",
		"session_id": "s-1",
		"user_id":    "u-1",
		"history":    []map[string]string{{"role": "user", "content": "earlier"}},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Let's look at it together.", body["response"])
	assert.Equal(t, "s-1", body["session_id"])
	logs, ok := body["agent_logs"].([]any)
	require.True(t, ok)
	assert.Len(t, logs, 1)
	assert.NotNil(t, body["action_plan"])

	assert.Equal(t, "I owe $5000", turner.got.Message)
	assert.Equal(t, "u-1", turner.got.UserID)
	assert.Equal(t, []store.Message{{Role: "user", Content: "earlier"}}, turner.got.History)
}

func TestChat_BadRequests(t *testing.T) {
	do := testServer(t, &fakeTurner{}, store.NewMemory())

	status, body := do(postJSON("/api/chat", map[string]any{"message": "  "}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "message is required", body["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	status, body = do(req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid body", body["error"])
}

func TestChat_EngineFailure(t *testing.T) {
	turner := &fakeTurner{err: &flowgraph.RouterError{
		FromNode: mindmoney.NodeIntake,
		Returned: "crypto",
		Err:      flowgraph.ErrUndeclaredRoute,
	}}
	do := testServer(t, turner, store.NewMemory())

	status, body := do(postJSON("/api/chat", map[string]any{"message": "hi"}))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["error"], "crypto")
}

func TestSessionsAndHistory(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	_, err := db.AppendTurn(ctx, store.Turn{SessionID: "s-1", UserID: "u-1", UserMessage: "hello", AssistantResponse: "hi"})
	require.NoError(t, err)
	require.NoError(t, db.UpsertSession(ctx, store.Session{ID: "s-1", UserID: "u-1", Preview: "hello", TotalTurns: 1}))
	require.NoError(t, db.UpsertSession(ctx, store.Session{ID: "s-2", UserID: "u-2", Preview: "other", TotalTurns: 1}))

	do := testServer(t, &fakeTurner{}, db)

	status, body := do(httptest.NewRequest(http.MethodGet, "/api/sessions?user_id=u-1", nil))
	assert.Equal(t, http.StatusOK, status)
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].(map[string]any)["session_id"])

	status, body = do(httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["sessions"], 2)

	status, body = do(httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/history", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "s-1", body["session_id"])
	assert.Equal(t, []any{
		map[string]any{"role": "user", "content": "hello"},
		map[string]any{"role": "assistant", "content": "hi"},
	}, body["history"])

	status, body = do(httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/history", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["history"])
}

type downStore struct{ store.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	do := testServer(t, &fakeTurner{}, store.NewMemory())
	status, body := do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	do = testServer(t, &fakeTurner{}, downStore{store.NewMemory()})
	status, body = do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestCORS(t *testing.T) {
	app := newServer(&fakeTurner{}, store.NewMemory(), mindmoney.DefaultSettings(), newLogger("error", "text", io.Discard))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNewCompletionClient(t *testing.T) {
	s := mindmoney.DefaultSettings()

	s.Provider = "claude"
	client, err := newCompletionClient(context.Background(), s)
	require.NoError(t, err)
	assert.NotNil(t, client)

	s.Provider = "gemini"
	s.GeminiAPIKey = ""
	_, err = newCompletionClient(context.Background(), s)
	assert.Error(t, err)

	s.Provider = "openai"
	_, err = newCompletionClient(context.Background(), s)
	assert.ErrorContains(t, err, "unknown llm provider")
}
