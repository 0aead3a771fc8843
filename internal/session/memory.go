// Package session stores analysis sessions. The memory backend keeps them
// for the life of the process; the sqlite backend also persists snapshots so
// finished reports survive restarts.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aether-labs/aether/internal/core"
)

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*core.Session)}
}

// Create implements core.SessionStore.
func (m *MemoryStore) Create(_ context.Context, s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return core.ErrValidation(core.CodeDuplicateSession, fmt.Sprintf("session %s already exists", s.ID()))
	}
	m.sessions[s.ID()] = s
	return nil
}

// Get implements core.SessionStore.
func (m *MemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &core.SessionNotFoundError{ID: id}
	}
	return s, nil
}

// Save is a no-op beyond an existence check: the store holds the live pointer.
func (m *MemoryStore) Save(_ context.Context, s *core.Session) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[s.ID()]; !ok {
		return &core.SessionNotFoundError{ID: s.ID()}
	}
	return nil
}

// Delete implements core.SessionStore.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return &core.SessionNotFoundError{ID: id}
	}
	delete(m.sessions, id)
	return nil
}

// List implements core.SessionStore.
func (m *MemoryStore) List(_ context.Context) ([]core.SessionSnapshot, error) {
	m.mu.RLock()
	out := make([]core.SessionSnapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Sweep implements core.SessionStore.
func (m *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.State().IsTerminal() && s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close implements core.SessionStore.
func (m *MemoryStore) Close() error { return nil }

func sortNewestFirst(snaps []core.SessionSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}
