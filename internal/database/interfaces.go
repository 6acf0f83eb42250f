package database

import (
	"context"

	"gatedrop-bot/internal/models"
)

// StateStore persists the whole domain snapshot.
type StateStore interface {
	// SaveAll replaces the stored snapshot.
	SaveAll(ctx context.Context, snap *models.Snapshot) error
	// LoadAll returns the stored snapshot, or nil when nothing has been saved yet.
	LoadAll(ctx context.Context) (*models.Snapshot, error)
}

// ActivityLogger records user-visible outcomes for later auditing.
type ActivityLogger interface {
	// LogUserAction logs an action performed by a user.
	LogUserAction(ctx context.Context, userID int64, action string, details map[string]interface{}) error
}
