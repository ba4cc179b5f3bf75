package session

import (
	"context"
	"sync"
	"time"

	"github.com/BimaHajer/APIAutome/internal/model"
)

// MemoryStateStore implements StateStore using an in-memory map.
type MemoryStateStore struct {
	states map[string]model.AuthorizationState
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]model.AuthorizationState),
		now:    time.Now,
	}
}

func (m *MemoryStateStore) Issue(ctx context.Context, st model.AuthorizationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[st.SessionID] = st
	return nil
}

func (m *MemoryStateStore) Consume(ctx context.Context, sessionID string) (*model.AuthorizationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(m.states, sessionID)

	if st.ExpiresAt < m.now().Unix() {
		return nil, ErrStateNotFound
	}
	return &st, nil
}

func (m *MemoryStateStore) Discard(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, sessionID)
	return nil
}
