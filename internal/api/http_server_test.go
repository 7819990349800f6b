package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tablechat/internal/config"
	"tablechat/internal/dialogue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	messages []string
	resets   []string
	known    map[string]bool
	err      error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{known: map[string]bool{}}
}

func (f *fakeEngine) HandleTurn(_ context.Context, message, sessionID string) (dialogue.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID == "" {
		sessionID = "generated-id"
	}
	if f.err != nil {
		return dialogue.Reply{SessionID: sessionID}, f.err
	}
	f.messages = append(f.messages, message)
	f.known[sessionID] = true
	return dialogue.Reply{Text: "echo: " + message, SessionID: sessionID, RequestID: "req-1"}, nil
}

func (f *fakeEngine) Reset(_ context.Context, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, sessionID)
	existed := f.known[sessionID]
	delete(f.known, sessionID)
	return existed
}

func (f *fakeEngine) ResetReply() string { return "Conversation cleared." }

func (f *fakeEngine) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.known)
}

func baseConfig() config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Port: 0},
		CORS: config.APICORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestChat(t *testing.T) {
	engine := newFakeEngine()
	h := NewHTTPServer(baseConfig(), engine, "none", nil).Handler()

	rec := do(t, h, http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
	body := decode(t, rec)
	assert.Equal(t, "echo: hi", body["response"])
	assert.Equal(t, "generated-id", body["session_id"])

	rec = do(t, h, http.MethodPost, "/chat", `{"message":"again","session_id":"abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", decode(t, rec)["session_id"])
	assert.Equal(t, []string{"hi", "again"}, engine.messages)
}

func TestChat_BadRequests(t *testing.T) {
	h := NewHTTPServer(baseConfig(), newFakeEngine(), "none", nil).Handler()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"not json", `hello`, http.StatusBadRequest},
		{"unknown field", `{"message":"hi","extra":1}`, http.StatusBadRequest},
		{"blank message", `{"message":"   "}`, http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/chat", tt.body, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestChat_Cancelled(t *testing.T) {
	engine := newFakeEngine()
	engine.err = context.Canceled
	h := NewHTTPServer(baseConfig(), engine, "none", nil).Handler()

	rec := do(t, h, http.MethodPost, "/chat", `{"message":"hi","session_id":"s1"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReset(t *testing.T) {
	engine := newFakeEngine()
	h := NewHTTPServer(baseConfig(), engine, "none", nil).Handler()

	do(t, h, http.MethodPost, "/chat", `{"message":"hi","session_id":"s1"}`, nil)

	rec := do(t, h, http.MethodPost, "/reset/s1", ``, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["reset"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "Conversation cleared.", body["message"])

	rec = do(t, h, http.MethodPost, "/reset/s1", ``, nil)
	body = decode(t, rec)
	assert.Equal(t, false, body["reset"])
	assert.Equal(t, "session not found", body["message"])
}

func TestHealth(t *testing.T) {
	engine := newFakeEngine()
	h := NewHTTPServer(baseConfig(), engine, "ollama", nil).Handler()
	do(t, h, http.MethodPost, "/chat", `{"message":"hi","session_id":"s1"}`, nil)

	rec := do(t, h, http.MethodGet, "/health", ``, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ollama", body["oracle"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHTTPServer(baseConfig(), newFakeEngine(), "none", nil).Handler()
	rec := do(t, h, http.MethodGet, "/chat", ``, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS.AllowedOrigins = []string{"https://example.com"}
	h := NewHTTPServer(cfg, newFakeEngine(), "none", nil).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "chat", endpointLabel("/chat"))
	assert.Equal(t, "health", endpointLabel("/health"))
	assert.Equal(t, "reset", endpointLabel("/reset/{session_id}"))
	assert.Equal(t, "other", endpointLabel("/nope"))
}
