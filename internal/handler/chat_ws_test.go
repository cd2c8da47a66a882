package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/jkindrix/coral/internal/errors"
)

type socketCounter struct {
	open atomic.Int32
}

func (c *socketCounter) WebSocketOpened() { c.open.Add(1) }
func (c *socketCounter) WebSocketClosed() { c.open.Add(-1) }

func newSocketServer(t *testing.T, engine Responder, origins []string, counter SocketRecorder) *httptest.Server {
	t.Helper()
	chat := newTestChatHandler(engine)
	ws := NewChatSocketHandler(chat, origins, counter, zap.NewNop())

	r := chi.NewRouter()
	ws.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialSocket(t *testing.T, srv *httptest.Server, sessionID string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestChatSocket_AnswersTurns(t *testing.T) {
	engine := &mockResponder{reply: "Here are our services."}
	counter := &socketCounter{}
	srv := newSocketServer(t, engine, []string{"*"}, counter)
	conn := dialSocket(t, srv, "sock-1", nil)

	for _, frame := range []string{`{"text":"services"}`, `{"message":{"event":"WELCOME"}}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		var resp ChatResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if resp.Response != "Here are our services." {
			t.Errorf("response = %q", resp.Response)
		}
	}

	calls := engine.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(calls))
	}
	for _, c := range calls {
		if c.sessionID != "sock-1" {
			t.Errorf("session = %q, want sock-1", c.sessionID)
		}
	}
	if !calls[1].input.IsWelcome() {
		t.Error("second frame should be a welcome event")
	}
	if counter.open.Load() != 1 {
		t.Errorf("open sockets = %d, want 1", counter.open.Load())
	}
}

func TestChatSocket_ErrorFramesKeepConnectionOpen(t *testing.T) {
	engine := &mockResponder{reply: "ok"}
	srv := newSocketServer(t, engine, []string{"*"}, nil)
	conn := dialSocket(t, srv, "sock-2", nil)

	bad := []string{
		`not json`,
		`{"text":"hi","sessionId":"someone-else"}`,
		`{"event":"GOODBYE"}`,
	}
	for _, frame := range bad {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		var resp socketError
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if resp.Error.Code != apperrors.CodeInvalidInput {
			t.Errorf("frame %q: code = %s", frame, resp.Error.Code)
		}
	}

	// The connection is still usable.
	if err := conn.WriteJSON(map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var resp ChatResponse
	if err := conn.ReadJSON(&resp); err != nil || resp.Response != "ok" {
		t.Errorf("follow-up turn: resp=%+v err=%v", resp, err)
	}
	if len(engine.Calls()) != 1 {
		t.Errorf("engine calls = %d, want 1", len(engine.Calls()))
	}
}

func TestChatSocket_RejectsForeignOrigin(t *testing.T) {
	srv := newSocketServer(t, &mockResponder{}, []string{"https://codeit.example"}, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/s"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	conn := dialSocket(t, srv, "s", http.Header{"Origin": []string{"https://codeit.example"}})
	if conn == nil {
		t.Fatal("allowed origin should connect")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://codeit.example/"})

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "api.codeit.example", true},
		{"https://codeit.example", "api.codeit.example", true},
		{"https://CODEIT.example", "api.codeit.example", true},
		{"https://api.codeit.example", "api.codeit.example", true},
		{"https://evil.example", "api.codeit.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws/chat/s", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}
