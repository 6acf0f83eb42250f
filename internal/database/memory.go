package database

import (
	"context"
	"sync"

	"gatedrop-bot/internal/models"
)

// MemoryStateStore keeps the snapshot in process memory. It is used when no
// MongoDB URI is configured and in tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	snap  *models.Snapshot
	saves int
	// Err, when set, is returned by every call.
	Err error
}

// NewMemoryStateStore returns an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) SaveAll(_ context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.snap = snap.Clone()
	m.saves++
	return nil
}

func (m *MemoryStateStore) LoadAll(_ context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.snap == nil {
		return nil, nil
	}
	return m.snap.Clone(), nil
}

// Saves returns how many successful saves happened.
func (m *MemoryStateStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
