package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatedrop-bot/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const stateCollection = "bot_state"

// MongoStateStore keeps the snapshot in three documents of the bot_state collection.
type MongoStateStore struct {
	collection *mongo.Collection
	log        *slog.Logger
}

// NewMongoStateStore creates a store over db.
func NewMongoStateStore(db *mongo.Database, log *slog.Logger) *MongoStateStore {
	return &MongoStateStore{collection: db.Collection(stateCollection), log: log}
}

// SaveAll replaces all three documents with the contents of snap.
func (s *MongoStateStore) SaveAll(ctx context.Context, snap *models.Snapshot) error {
	users, data, misc := encodeSnapshot(snap)
	docs := []struct {
		id  string
		doc interface{}
	}{
		{usersDocID, users},
		{dataDocID, data},
		{miscDocID, misc},
	}
	for _, d := range docs {
		_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": d.id}, d.doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to save %s document: %w", d.id, err)
		}
	}
	return nil
}

// LoadAll reads the three documents. It returns nil when none of them exist.
func (s *MongoStateStore) LoadAll(ctx context.Context) (*models.Snapshot, error) {
	var users usersDoc
	foundUsers, err := s.find(ctx, usersDocID, &users)
	if err != nil {
		return nil, err
	}
	var data dataDoc
	foundData, err := s.find(ctx, dataDocID, &data)
	if err != nil {
		return nil, err
	}
	var misc miscDoc
	foundMisc, err := s.find(ctx, miscDocID, &misc)
	if err != nil {
		return nil, err
	}
	if !foundUsers && !foundData && !foundMisc {
		return nil, nil
	}

	var up *usersDoc
	if foundUsers {
		up = &users
	}
	var dp *dataDoc
	if foundData {
		dp = &data
	}
	var mp *miscDoc
	if foundMisc {
		mp = &misc
	}
	return decodeSnapshot(up, dp, mp, s.log), nil
}

func (s *MongoStateStore) find(ctx context.Context, id string, out interface{}) (bool, error) {
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s document: %w", id, err)
	}
	return true, nil
}
