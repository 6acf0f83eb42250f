package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/models"
)

// ErrNotSaved marks a failed save. The in-memory data still holds the mutation
// and the next successful save persists it.
var ErrNotSaved = errors.New("state not saved")

// State owns the bot's domain data. Every component reads and mutates it through
// View and Update; Update persists a full snapshot after each mutation.
type State struct {
	mu   sync.RWMutex
	data *models.Snapshot

	// saveMu orders saves so a later save always carries every earlier mutation.
	saveMu sync.Mutex
	store  database.StateStore
}

// New creates a State with empty data backed by store.
func New(store database.StateStore, baseURL string, autoDelete time.Duration) *State {
	return &State{
		data:  models.NewSnapshot(baseURL, autoDelete),
		store: store,
	}
}

// Load replaces the in-memory data with the persisted snapshot, if any.
// Defaults from New are kept for fields the stored snapshot leaves empty.
func (s *State) Load(ctx context.Context) error {
	snap, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if snap == nil {
		return nil
	}
	snap.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.BaseURL == "" {
		snap.BaseURL = s.data.BaseURL
	}
	if snap.AutoDeleteAfter <= 0 {
		snap.AutoDeleteAfter = s.data.AutoDeleteAfter
	}
	s.data = snap
	return nil
}

// View runs fn with read access to the data. fn must not retain references.
func (s *State) View(fn func(d *models.Snapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// Mutate runs fn with write access without persisting.
func (s *State) Mutate(fn func(d *models.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Update runs fn with write access and persists the result. If fn returns an
// error nothing is saved and the error is returned as is. A failed save
// returns an error matching ErrNotSaved; the mutation is kept in memory.
func (s *State) Update(ctx context.Context, fn func(d *models.Snapshot) error) error {
	if err := s.Mutate(fn); err != nil {
		return err
	}
	return s.Save(ctx)
}

// Save persists the current data.
func (s *State) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snap := s.data.Clone()
	s.mu.RUnlock()

	if err := s.store.SaveAll(ctx, snap); err != nil {
		return fmt.Errorf("failed to save state: %w: %w", ErrNotSaved, err)
	}
	return nil
}

// Snapshot returns a deep copy of the current data.
func (s *State) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}
