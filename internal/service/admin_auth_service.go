package service

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkindrix/coral/internal/clock"
)

// AuthError represents an authentication error.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Common auth errors
var (
	ErrInvalidCredentials = &AuthError{Message: "invalid username or password"}
	ErrLockedOut          = &AuthError{Message: "too many failed attempts"}
	ErrAdminDisabled      = &AuthError{Message: "admin access is not configured"}
)

// Lockout defaults for repeated failures from one client.
const (
	maxLoginAttempts = 5
	loginWindow      = 15 * time.Minute
)

// LockoutDuration is how long a client stays blocked after too many failures.
const LockoutDuration = 30 * time.Minute

type loginAttempts struct {
	count     int
	firstTry  time.Time
	blockedAt time.Time
}

// AdminAuthService checks basic-auth credentials for the admin endpoints
// against a bcrypt hash and locks out clients that keep guessing.
type AdminAuthService struct {
	username     string
	passwordHash []byte
	clock        clock.Clock
	logger       *zap.Logger

	mu       sync.Mutex
	attempts map[string]*loginAttempts
}

// NewAdminAuthService creates the service. An empty hash disables admin
// access entirely.
func NewAdminAuthService(username, passwordHash string, logger *zap.Logger) *AdminAuthService {
	return &AdminAuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		clock:        clock.New(),
		logger:       logger.Named("admin_auth"),
		attempts:     make(map[string]*loginAttempts),
	}
}

// WithClock sets the clock used for lockout windows.
func (s *AdminAuthService) WithClock(c clock.Clock) *AdminAuthService {
	s.clock = c
	return s
}

// Enabled reports whether a password hash is configured.
func (s *AdminAuthService) Enabled() bool {
	return len(s.passwordHash) > 0
}

// Authenticate verifies username and password for the client at ip.
func (s *AdminAuthService) Authenticate(_ context.Context, username, password, ip string) error {
	if !s.Enabled() {
		return ErrAdminDisabled
	}
	if s.blocked(ip) {
		s.logger.Warn("admin login blocked", zap.String("ip", ip))
		return ErrLockedOut
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		s.recordFailure(ip)
		s.logger.Warn("invalid admin credentials", zap.String("ip", ip))
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	delete(s.attempts, ip)
	s.mu.Unlock()
	return nil
}

// RemainingAttempts returns how many failures ip may still make.
func (s *AdminAuthService) RemainingAttempts(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[ip]
	if !ok || s.clock.Since(a.firstTry) > loginWindow {
		return maxLoginAttempts
	}
	if !a.blockedAt.IsZero() {
		return 0
	}
	if remaining := maxLoginAttempts - a.count; remaining > 0 {
		return remaining
	}
	return 0
}

func (s *AdminAuthService) blocked(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[ip]
	if !ok || a.blockedAt.IsZero() {
		return false
	}
	if s.clock.Since(a.blockedAt) < LockoutDuration {
		return true
	}
	delete(s.attempts, ip)
	return false
}

func (s *AdminAuthService) recordFailure(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	a, ok := s.attempts[ip]
	if !ok || now.Sub(a.firstTry) > loginWindow {
		s.attempts[ip] = &loginAttempts{count: 1, firstTry: now}
		return
	}

	a.count++
	if a.count >= maxLoginAttempts {
		a.blockedAt = now
		s.logger.Warn("admin login rate limit exceeded, blocking",
			zap.String("ip", ip),
			zap.Int("attempts", a.count),
		)
	}
}

// CleanupAttempts drops expired lockout entries.
func (s *AdminAuthService) CleanupAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for ip, a := range s.attempts {
		if (!a.blockedAt.IsZero() && now.Sub(a.blockedAt) > LockoutDuration) ||
			(a.blockedAt.IsZero() && now.Sub(a.firstTry) > loginWindow) {
			delete(s.attempts, ip)
		}
	}
}
