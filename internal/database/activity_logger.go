package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	actionsCollection = "user_actions"
	logTimeout        = 5 * time.Second
)

// MongoActivityLogger writes user actions to the user_actions collection.
type MongoActivityLogger struct {
	db *mongo.Database
}

// NewMongoActivityLogger creates and returns a new MongoActivityLogger.
func NewMongoActivityLogger(db *mongo.Database) *MongoActivityLogger {
	return &MongoActivityLogger{db: db}
}

// LogUserAction records the user ID, action type, details and timestamp.
func (m *MongoActivityLogger) LogUserAction(ctx context.Context, userID int64, action string, details map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, logTimeout)
	defer cancel()

	_, err := m.db.Collection(actionsCollection).InsertOne(ctx, map[string]interface{}{
		"user_id": userID,
		"action":  action,
		"details": details,
		"time":    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert user action log for user %d: %w", userID, err)
	}
	return nil
}

// SlogActivityLogger writes user actions to a structured logger. It stands in
// for MongoActivityLogger when no database is configured.
type SlogActivityLogger struct {
	log *slog.Logger
}

// NewSlogActivityLogger creates a logger-backed activity logger.
func NewSlogActivityLogger(log *slog.Logger) *SlogActivityLogger {
	return &SlogActivityLogger{log: log}
}

func (s *SlogActivityLogger) LogUserAction(_ context.Context, userID int64, action string, details map[string]interface{}) error {
	args := []any{"user_id", userID, "action", action}
	for k, v := range details {
		args = append(args, k, v)
	}
	s.log.Info("user action", args...)
	return nil
}
