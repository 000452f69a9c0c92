package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/utils"
)

// MemoryStore keeps sessions in process memory. Used by tests and
// single-node deployments; snapshots are cloned on the way in and out so an
// in-flight caller never shares mutable state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func cloneSession(s *models.Session) (*models.Session, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out models.Session
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	s.LastActivity = time.Now().UTC()
	return cloneSession(s)
}

func (m *MemoryStore) Put(_ context.Context, s *models.Session) error {
	cp, err := cloneSession(s)
	if err != nil {
		return err
	}
	cp.LastActivity = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[cp.ID] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context, idleThreshold time.Duration) (int, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > idleThreshold {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}
