// Package session ties logged-in users to their ledgers.
//
// Login hydrates a Ledger from the store and keeps it for the session's
// lifetime; logout flushes unsynced changes and drops it. One ledger per
// user, shared by every request of that user.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"financas/internal/ledger"
	"financas/internal/store"
)

var ErrNoSession = errors.New("no active session")

type Session struct {
	UserID    string
	Ledger    *ledger.Ledger
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns when the session last served a request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type Manager struct {
	store    store.Store
	autoSync bool

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Manager)

// WithAutoSync makes every session's ledger push each mutation to the store.
func WithAutoSync() Option {
	return func(m *Manager) { m.autoSync = true }
}

func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login returns the user's session, creating and hydrating it on first use.
func (m *Manager) Login(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("empty user id")
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		s.touch()
		return s, nil
	}
	m.mu.Unlock()

	var opts []ledger.Option
	if m.autoSync {
		opts = append(opts, ledger.WithAutoSync())
	}
	l := ledger.New(userID, m.store, opts...)
	if err := l.LoadFromStore(ctx); err != nil {
		return nil, fmt.Errorf("hydrate ledger: %w", err)
	}

	s := &Session{
		UserID:    userID,
		Ledger:    l,
		CreatedAt: time.Now(),
		lastSeen:  time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have logged in concurrently; keep the first.
	if existing, ok := m.sessions[userID]; ok {
		return existing, nil
	}
	m.sessions[userID] = s

	slog.InfoContext(ctx, "Session opened", "user_id", userID)
	return s, nil
}

// Get returns the active session for userID, touching its last-seen time.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}
	s.touch()
	return s, nil
}

// Logout flushes the session's unsynced changes and discards it. The session
// is dropped even when the flush fails; the error reports the divergence.
func (m *Manager) Logout(ctx context.Context, userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	err := s.Ledger.Sync(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Logout flush failed, remote state diverged",
			"user_id", userID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "Session closed", "user_id", userID)
	return nil
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExpireIdle logs out every session idle for longer than maxIdle, flushing
// its unsynced changes. It returns the expired user ids; flush errors are
// joined but never keep a session alive.
func (m *Manager) ExpireIdle(ctx context.Context, maxIdle time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []string
	for userID, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, userID)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, userID := range idle {
		err := m.Logout(ctx, userID)
		if err != nil && !errors.Is(err, ErrNoSession) {
			errs = append(errs, fmt.Errorf("expire %s: %w", userID, err))
		}
		slog.InfoContext(ctx, "Idle session expired", "user_id", userID)
	}
	return idle, errors.Join(errs...)
}

// CloseAll flushes and drops every session, joining flush errors. Used at
// shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.Unlock()

	var errs []error
	for _, userID := range users {
		if err := m.Logout(ctx, userID); err != nil && !errors.Is(err, ErrNoSession) {
			errs = append(errs, fmt.Errorf("logout %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}
