// Package auth provides the bearer credential collaborator for the
// realtime client. The core never fetches or refreshes credentials; it
// consumes a TokenSource and waits on refresh notifications when the
// server rejects a credential.
package auth

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = errors.New("auth: empty token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenSource supplies the bearer credential for the realtime connection.
type TokenSource interface {
	// Token returns the current bearer token, or "" when none is available.
	Token() string

	// OnRefresh registers a callback invoked whenever a fresh token is
	// installed. It returns an unregister function.
	OnRefresh(fn func(token string)) func()
}

// StaticToken is a TokenSource with a fixed credential. Useful for tools
// and tests; it never refreshes.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

func (s StaticToken) OnRefresh(func(token string)) func() { return func() {} }

// Store is a refreshable credential store. Installed tokens that look like
// JWTs have their registered claims inspected (unverified; verification is
// the server's job) so expired credentials are rejected up front and the
// subject is available for logging.
type Store struct {
	logger *slog.Logger

	mu        sync.Mutex
	token     string
	subject   string
	expiresAt time.Time
	listeners map[uint64]func(string)
	nextID    uint64
}

// NewStore creates an empty credential store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger,
		listeners: make(map[uint64]func(string)),
	}
}

// Token returns the current bearer token, or "" if none is installed.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subject returns the subject claim of the current token, if it was a JWT.
func (s *Store) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// ExpiresAt returns the expiry of the current token. Zero when unknown.
func (s *Store) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Valid reports whether a token is installed and not known to be expired.
func (s *Store) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || time.Now().Before(s.expiresAt)
}

// SetToken installs a fresh credential and notifies refresh listeners.
// JWT-shaped tokens are inspected: an already-expired token is rejected
// with ErrTokenExpired. Opaque tokens are accepted as-is.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	var subject string
	var expiresAt time.Time
	if strings.Count(token, ".") == 2 {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
		if err == nil {
			if sub, err := parsed.Claims.GetSubject(); err == nil {
				subject = sub
			}
			if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
				expiresAt = exp.Time
				if time.Now().After(expiresAt) {
					return ErrTokenExpired
				}
			}
		}
	}

	s.mu.Lock()
	s.token = token
	s.subject = subject
	s.expiresAt = expiresAt
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("credential installed",
		"subject", subject,
		"expires_at", expiresAt,
		"listeners", len(listeners),
	)

	for _, fn := range listeners {
		fn(token)
	}
	return nil
}

// Clear removes the current credential without notifying listeners.
// Called on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.subject = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// OnRefresh registers a callback for fresh credentials and returns its
// unregister function.
func (s *Store) OnRefresh(fn func(token string)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
