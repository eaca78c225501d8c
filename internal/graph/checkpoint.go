package graph

import "sync"

// Checkpointer persists the latest state per session id. The contract
// is "last state per session is retrievable"; there is no branching
// history. Implementations must tolerate concurrent use across
// distinct sessions.
type Checkpointer[S any] interface {
	Put(sessionID string, state S) error
	Get(sessionID string) (S, bool, error)
}

// MemorySaver keeps checkpoints in process memory. It is the default
// checkpointer; state does not survive a restart.
type MemorySaver[S any] struct {
	mu     sync.RWMutex
	states map[string]S
}

func NewMemorySaver[S any]() *MemorySaver[S] {
	return &MemorySaver[S]{states: make(map[string]S)}
}

func (m *MemorySaver[S]) Put(sessionID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = state
	return nil
}

func (m *MemorySaver[S]) Get(sessionID string) (S, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[sessionID]
	return state, ok, nil
}
