package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jkindrix/coral/internal/audit"
)

// fakeLevel implements LevelController for testing
type fakeLevel struct {
	level string
}

func (f *fakeLevel) GetLevel() string { return f.level }

func (f *fakeLevel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		if lvl := r.URL.Query().Get("level"); lvl != "" && lvl != "bogus" {
			f.level = lvl
		} else {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	_, _ = w.Write([]byte(`{"level":"` + f.level + `"}`))
}

func TestLogLevelHandler_Get(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewLogLevelHandler(&fakeLevel{level: "info"}, audit.NewLogger(zap.New(core)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/log-level", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"info"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if logs.Len() != 0 {
		t.Errorf("reading the level should not be audited, got %d entries", logs.Len())
	}
}

func TestLogLevelHandler_PutAuditsChange(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	level := &fakeLevel{level: "info"}
	h := NewLogLevelHandler(level, audit.NewLogger(zap.New(core)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/admin/log-level?level=debug", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if level.level != "debug" {
		t.Errorf("level = %q, want debug", level.level)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != string(audit.EventConfigChanged) {
		t.Errorf("event_type = %v", fields["event_type"])
	}
}

func TestLogLevelHandler_NoAuditWithoutChange(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewLogLevelHandler(&fakeLevel{level: "info"}, audit.NewLogger(zap.New(core)))

	for _, target := range []string{"/admin/log-level?level=info", "/admin/log-level?level=bogus"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, target, nil))
	}

	if logs.Len() != 0 {
		t.Errorf("expected no audit entries, got %d", logs.Len())
	}
}

func TestLogLevelHandler_NilAuditLogger(t *testing.T) {
	h := NewLogLevelHandler(&fakeLevel{level: "info"}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/admin/log-level?level=warn", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}
