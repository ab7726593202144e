package storage

import (
	"context"
	"sync"

	"argus/core"
)

// MemoryBaselineStore is an in-memory BaselineStore used in tests and when
// no durable storage is configured.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*core.UserBehaviorBaseline
}

// NewMemoryBaselineStore creates an empty in-memory store.
func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{
		baselines: make(map[string]*core.UserBehaviorBaseline),
	}
}

// Save stores a deep copy of the baseline.
func (m *MemoryBaselineStore) Save(_ context.Context, b *core.UserBehaviorBaseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[b.ActorID] = b.Clone()
	return nil
}

// Load returns copies of all stored baselines.
func (m *MemoryBaselineStore) Load(_ context.Context) (map[string]*core.UserBehaviorBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*core.UserBehaviorBaseline, len(m.baselines))
	for id, b := range m.baselines {
		out[id] = b.Clone()
	}
	return out, nil
}

// Get returns a copy of one actor's baseline, or nil if absent.
func (m *MemoryBaselineStore) Get(_ context.Context, actorID string) (*core.UserBehaviorBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.baselines[actorID]; ok {
		return b.Clone(), nil
	}
	return nil, nil
}

// Len returns the number of stored baselines.
func (m *MemoryBaselineStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.baselines)
}
