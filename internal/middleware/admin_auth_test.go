package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkindrix/coral/internal/audit"
	"github.com/jkindrix/coral/internal/service"
)

type authCounter struct {
	ok, failed int
}

func (c *authCounter) RecordAuthAttempt(success bool) {
	if success {
		c.ok++
	} else {
		c.failed++
	}
}

func newAdminAuthService(t *testing.T) *service.AdminAuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return service.NewAdminAuthService("admin", string(hash), zap.NewNop())
}

func adminRequest(user, pass string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	return req
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
		wantStatus int
		wantUser   string
		wantOK     int
		wantFailed int
		challenge  bool
	}{
		{"valid credentials", "admin", "s3cret", http.StatusOK, "admin", 1, 0, false},
		{"wrong password", "admin", "nope", http.StatusUnauthorized, "", 0, 1, true},
		{"wrong username", "root", "s3cret", http.StatusUnauthorized, "", 0, 1, true},
		{"no credentials", "", "", http.StatusUnauthorized, "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			counter := &authCounter{}
			var gotUser string

			handler := AdminAuth(newAdminAuthService(t), audit.NewLogger(zap.New(core)), counter, zap.NewNop())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					gotUser = AdminUser(r.Context())
				}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, adminRequest(tt.user, tt.pass))

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("AdminUser = %q, want %q", gotUser, tt.wantUser)
			}
			if counter.ok != tt.wantOK || counter.failed != tt.wantFailed {
				t.Errorf("auth attempts ok=%d failed=%d", counter.ok, counter.failed)
			}
			if got := rr.Header().Get("WWW-Authenticate") != ""; got != tt.challenge {
				t.Errorf("challenge header present = %v, want %v", got, tt.challenge)
			}
			if logs.Len() != 1 {
				t.Errorf("expected one audit entry, got %d", logs.Len())
			}
		})
	}
}

func TestAdminAuth_LockoutReturns429(t *testing.T) {
	auth := newAdminAuthService(t)
	handler := AdminAuth(auth, audit.NewLogger(zap.NewNop()), nil, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var rr *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, adminRequest("admin", "wrong"))
	}

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on lockout")
	}

	// Correct credentials stay blocked while locked out.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, adminRequest("admin", "s3cret"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status after lockout = %d, want 429", rr.Code)
	}
}

func TestAdminAuth_LogsRemainingAttempts(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handler := AdminAuth(newAdminAuthService(t), audit.NewLogger(zap.NewNop()), nil, zap.New(core))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, want := range []int64{4, 3} {
		logs.TakeAll()
		handler.ServeHTTP(httptest.NewRecorder(), adminRequest("admin", "wrong"))

		entries := logs.FilterMessage("admin authentication failed").All()
		if len(entries) != 1 {
			t.Fatalf("expected one failure log, got %d", len(entries))
		}
		if got := entries[0].ContextMap()["remaining_attempts"]; got != want {
			t.Errorf("remaining_attempts = %v, want %d", got, want)
		}
	}
}

func TestAdminAuth_DisabledHidesRoutes(t *testing.T) {
	auth := service.NewAdminAuthService("admin", "", zap.NewNop())
	called := false
	handler := AdminAuth(auth, audit.NewLogger(zap.NewNop()), nil, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, adminRequest("admin", "anything"))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if called {
		t.Error("handler should not run when admin is disabled")
	}
}
