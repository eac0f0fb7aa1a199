// Package session owns the authenticated-session state: who is logged
// in, under which bearer token, and whether that has been settled yet.
// All session mutations go through Store; nothing else writes the
// persisted credential.
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openshelf/shelfctl/pkg/library"
)

// Session is a point-in-time snapshot of the session state.
// IsAuthenticated is true iff both User and Token are set.
type Session struct {
	User            *library.User
	Token           string
	IsAuthenticated bool
	IsLoading       bool
}

// CredentialStore persists the bearer token and user across runs.
type CredentialStore interface {
	Save(token string, user *library.User) error
	Load() (token string, user *library.User, err error)
	Clear() error
}

// Store is the single source of truth for session state. It is safe
// for concurrent use; cache refetch goroutines read it while commands
// mutate it.
type Store struct {
	log   logrus.FieldLogger
	creds CredentialStore

	mu      sync.RWMutex
	user    *library.User
	token   string
	loading bool
}

// NewStore creates a session store backed by the given credential
// store. The store starts in the loading state until a bootstrapper
// resolves it.
func NewStore(log logrus.FieldLogger, creds CredentialStore) *Store {
	return &Store{
		log:     log.WithField("component", "session"),
		creds:   creds,
		loading: true,
	}
}

// Login records a successful sign-in and persists the credential.
func (s *Store) Login(user *library.User, token string) {
	s.mu.Lock()
	s.user = user
	s.token = token
	s.loading = false
	s.mu.Unlock()

	if err := s.creds.Save(token, user); err != nil {
		s.log.WithError(err).Warn("Failed to persist credentials")
	}
}

// SetToken replaces only the bearer token, keeping the current user.
// Used when a response carries a refreshed credential.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	user := s.user
	s.mu.Unlock()

	if err := s.creds.Save(token, user); err != nil {
		s.log.WithError(err).Warn("Failed to persist refreshed token")
	}
}

// Logout clears the session and removes persisted credentials.
func (s *Store) Logout() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	if err := s.creds.Clear(); err != nil {
		s.log.WithError(err).Warn("Failed to clear persisted credentials")
	}
}

// SetUser replaces the current user without touching the token. Used
// when bootstrap confirms identity against the server.
func (s *Store) SetUser(user *library.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// SetLoading toggles the loading flag that gates protected routes
// until bootstrap completes.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// CheckAuth reconciles in-memory state with persisted storage and
// returns the restored snapshot. No network call is made; the result
// still needs server-side validation by the bootstrapper.
func (s *Store) CheckAuth() Session {
	token, user, err := s.creds.Load()
	if err != nil {
		s.log.WithError(err).Debug("No persisted credentials")

		return s.Snapshot()
	}

	s.mu.Lock()
	if token != "" {
		s.token = token
	}

	if user != nil {
		s.user = user
	}
	s.mu.Unlock()

	return s.Snapshot()
}

// Token returns the current bearer token, empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// User returns the current user, nil when logged out.
func (s *Store) User() *library.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Session{
		User:            s.user,
		Token:           s.token,
		IsAuthenticated: s.user != nil && s.token != "",
		IsLoading:       s.loading,
	}
}
