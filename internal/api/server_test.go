// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Runs against a real SQLite store and the in-memory broadcaster

package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-desk/internal/autoreply"
	"github.com/2389/coven-desk/internal/classify"
	"github.com/2389/coven-desk/internal/realtime"
	"github.com/2389/coven-desk/internal/routing"
	"github.com/2389/coven-desk/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bc := realtime.NewBroadcaster(nil)
	t.Cleanup(bc.Close)

	srv := New(realtime.NewPublishingStore(db, bc, nil), bc, routing.NewRouter(nil), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createConversation(t *testing.T, ts *httptest.Server, id string) ConversationResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/conversations", CreateConversationRequest{ID: id, VisitorID: "visitor-1"})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, resp.StatusCode)
	var conv ConversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	return conv
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		req        ClassifyRequest
		category   classify.Category
		department string
	}{
		{"greeting stays with the bot", ClassifyRequest{Text: "Olá, bom dia"}, classify.Greeting, ""},
		{"human request is routed", ClassifyRequest{Text: "Quero falar com um atendente"}, classify.ContactRequest, "support"},
		{"override wins", ClassifyRequest{Text: "Quero falar com um atendente", DepartmentID: "vip"}, classify.ContactRequest, "vip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/classify", tt.req)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var got ClassifyResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.department, got.DepartmentID)
			assert.Equal(t, autoreply.CanonicalReply(tt.category, tt.department), got.Reply)
		})
	}
}

func TestClassify_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/classify", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateConversation(t *testing.T) {
	ts := newTestServer(t)

	t.Run("mints an id", func(t *testing.T) {
		conv := createConversation(t, ts, "")
		assert.NotEmpty(t, conv.ID)
		assert.Equal(t, "widget", conv.OriginChannel)
		assert.Equal(t, "active", conv.Status)
		assert.False(t, conv.HasHumanAgent)
	})

	t.Run("existing id is idempotent", func(t *testing.T) {
		first := postJSON(t, ts.URL+"/api/conversations", CreateConversationRequest{ID: "conv-1", VisitorID: "visitor-1"})
		assert.Equal(t, http.StatusCreated, first.StatusCode)
		again := postJSON(t, ts.URL+"/api/conversations", CreateConversationRequest{ID: "conv-1", VisitorID: "visitor-1"})
		assert.Equal(t, http.StatusOK, again.StatusCode)
	})

	t.Run("existing id of another visitor", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/conversations", CreateConversationRequest{ID: "conv-1", VisitorID: "visitor-2"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("visitor required", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/conversations", CreateConversationRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetConversation(t *testing.T) {
	ts := newTestServer(t)
	createConversation(t, ts, "conv-1")

	var conv ConversationResponse
	resp := getJSON(t, ts.URL+"/api/conversations/conv-1", &conv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "conv-1", conv.ID)
	assert.False(t, conv.HasHumanAgent)

	postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{SenderID: "agent-7", Body: "Oi, sou a Ana"})

	resp = getJSON(t, ts.URL+"/api/conversations/conv-1", &conv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, conv.HasHumanAgent)

	resp = getJSON(t, ts.URL+"/api/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostAndListMessages(t *testing.T) {
	ts := newTestServer(t)
	createConversation(t, ts, "conv-1")

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{ID: "m1", SenderID: "visitor-1", Body: "Olá"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{ID: "m2", SenderID: store.SenderBot, Body: "Olá! Como posso ajudar?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msgs []MessageResponse
	resp = getJSON(t, ts.URL+"/api/conversations/conv-1/messages", &msgs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, store.RoleVisitor, msgs[0].Role)
	assert.Equal(t, store.RoleBot, msgs[1].Role)
}

func TestPostMessage_Errors(t *testing.T) {
	ts := newTestServer(t)
	createConversation(t, ts, "conv-1")
	postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{ID: "m1", SenderID: "visitor-1", Body: "Olá"})

	tests := []struct {
		name string
		path string
		req  PostMessageRequest
		want int
	}{
		{"missing conversation", "/api/conversations/missing/messages", PostMessageRequest{SenderID: "visitor-1", Body: "oi"}, http.StatusNotFound},
		{"blank body", "/api/conversations/conv-1/messages", PostMessageRequest{SenderID: "visitor-1", Body: "   "}, http.StatusBadRequest},
		{"missing sender", "/api/conversations/conv-1/messages", PostMessageRequest{Body: "oi"}, http.StatusBadRequest},
		{"duplicate id", "/api/conversations/conv-1/messages", PostMessageRequest{ID: "m1", SenderID: "visitor-1", Body: "Olá"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tt.path, tt.req)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCloseConversation(t *testing.T) {
	ts := newTestServer(t)
	createConversation(t, ts, "conv-1")

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/close", struct{}{})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{SenderID: "visitor-1", Body: "ainda aí?"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/conversations/missing/close", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses SSE frames from body onto a channel until it ends.
func readEvents(body *bufio.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		var ev sseEvent
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream ended")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return sseEvent{}
	}
}

func TestStream(t *testing.T) {
	ts := newTestServer(t)
	createConversation(t, ts, "conv-1")

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/api/conversations/conv-1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(bufio.NewReader(resp.Body))
	ready := nextEvent(t, events)
	assert.Equal(t, "ready", ready.name)

	postJSON(t, ts.URL+"/api/conversations/conv-1/messages", PostMessageRequest{ID: "m1", SenderID: "agent-7", Body: "Oi!"})

	ev := nextEvent(t, events)
	require.Equal(t, "message", ev.name)
	var msg MessageResponse
	require.NoError(t, json.Unmarshal([]byte(ev.data), &msg))
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, store.RoleAgent, msg.Role)
}

func TestStream_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := getJSON(t, ts.URL+"/api/conversations/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
