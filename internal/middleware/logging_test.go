package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LevelsByStatusAndPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  zapcore.Level
	}{
		{"ok", "/api/chat", http.StatusOK, zapcore.InfoLevel},
		{"client error", "/api/chat", http.StatusBadRequest, zapcore.InfoLevel},
		{"server error", "/api/chat", http.StatusInternalServerError, zapcore.WarnLevel},
		{"health probe", "/health", http.StatusOK, zapcore.DebugLevel},
		{"metrics scrape", "/metrics", http.StatusOK, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rr.Code)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.level)
			}
			fields := entries[0].ContextMap()
			if fields["status"] != int64(tt.status) {
				t.Errorf("status field = %v", fields["status"])
			}
			if fields["bytes"] != int64(4) {
				t.Errorf("bytes field = %v", fields["bytes"])
			}
		})
	}
}

func TestRequestLogger_DurationFromChainEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	ctx := context.WithValue(req.Context(), requestStartTimeKey{}, time.Now().Add(-time.Minute))
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got, ok := entries[0].ContextMap()["duration"].(time.Duration); !ok || got < time.Minute {
		t.Errorf("duration = %v, want at least 1m", entries[0].ContextMap()["duration"])
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())

	if rw.statusCode != http.StatusOK {
		t.Errorf("expected default status %d, got %d", http.StatusOK, rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusTeapot)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected first status %d to stick, got %d", http.StatusNotFound, rw.statusCode)
	}
}

func TestResponseWriter_WrapIsIdempotent(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())
	if wrapResponseWriter(rw) != rw {
		t.Error("expected an already wrapped writer to be reused")
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected error hijacking a recorder")
	}
}
