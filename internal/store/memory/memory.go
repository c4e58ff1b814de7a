// Package memory provides an in-process Store used for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"financas/internal/store"
)

type Store struct {
	mu     sync.Mutex
	tables map[key]store.Table
	saves  int

	// Optional failure hook for tests: when set, Save returns this error.
	failSave error
}

type key struct {
	userID string
	kind   store.Kind
}

func New() *Store {
	return &Store{tables: make(map[key]store.Table)}
}

// Save replaces the stored table for user+kind with a copy of t.
func (s *Store) Save(_ context.Context, userID string, kind store.Kind, t store.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.tables[key{userID, kind}] = t.Clone()
	s.saves++
	return nil
}

// Load returns a copy of the stored table; absence yields an empty table.
func (s *Store) Load(_ context.Context, userID string, kind store.Kind) (store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[key{userID, kind}]
	if !ok {
		return store.Table{}, nil
	}
	return t.Clone(), nil
}

// Users lists every user holding at least one table, sorted.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var users []string
	for k := range s.tables {
		if !seen[k.userID] {
			seen[k.userID] = true
			users = append(users, k.userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// FailSaves makes subsequent Save calls return err. Pass nil to heal.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = err
}

// SaveCount returns how many Save calls have succeeded.
func (s *Store) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
