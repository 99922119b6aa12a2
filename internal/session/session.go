// Package session holds the authenticated identity of one user at a time.
//
// A Session is created closed. Open scopes it to an identity, Close tears it
// down. Components that cache per-user data subscribe with OnChange and drop
// their state whenever the identity changes.
package session

import (
	"sync"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

// Session is the explicit session context shared by the aggregator and the coordinator
type Session struct {
	mu        sync.RWMutex
	identity  models.Identity
	token     string
	open      bool
	listeners []func()
}

// New returns a closed session
func New() *Session {
	return &Session{}
}

// Open scopes the session to identity. Listeners are notified when the
// identity differs from the current one, or when the session was closed.
func (s *Session) Open(identity models.Identity, token string) {
	s.mu.Lock()
	changed := !s.open || s.identity.UserID != identity.UserID
	s.identity = identity
	s.token = token
	s.open = true
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if changed {
		notify(listeners)
	}
}

// Close ends the session and notifies listeners. Closing a closed session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.identity = models.Identity{}
	s.token = ""
	s.open = false
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners)
}

// CurrentUserID returns the identity's user ID, or false when no one is signed in
func (s *Session) CurrentUserID() (models.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return 0, false
	}
	return s.identity.UserID, true
}

// Identity returns the signed-in identity
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.open
}

// Token returns the bearer token, empty when closed
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores a bearer token before the identity is known, so the
// identity lookup itself can be authenticated.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// OnChange registers fn to run after every identity change or sign-out.
// fn runs on the goroutine that called Open or Close, outside the session lock.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) snapshotListeners() []func() {
	out := make([]func(), len(s.listeners))
	copy(out, s.listeners)
	return out
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
