// internal/storage/mongo/mongo.go
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
)

const (
	databaseName   = "signalbot"
	collectionName = "engine_state"
	documentID     = "ledger"

	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

// Store persists the engine snapshot as a single replaced document.
// After any save/load failure the store marks itself inactive and the
// engine continues memory-only.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	active atomic.Bool
	logger *zap.Logger
}

type stateDocument struct {
	ID       string          `bson:"_id"`
	Snapshot ledger.Snapshot `bson:"snapshot"`
	SavedAt  time.Time       `bson:"saved_at"`
}

// NewStore connects to MongoDB and verifies reachability with a ping.
func NewStore(ctx context.Context, uri string, logger *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	store := &Store{
		client: client,
		coll:   client.Database(databaseName).Collection(collectionName),
		logger: logger.Named("storage"),
	}
	store.active.Store(true)

	store.logger.Info("💾 Mongo persistence initialized",
		zap.String("database", databaseName),
		zap.String("collection", collectionName))
	return store, nil
}

// IsActive reports whether the store is still usable.
func (s *Store) IsActive() bool {
	return s.active.Load()
}

// Save replaces the whole state document.
func (s *Store) Save(ctx context.Context, snapshot *ledger.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := stateDocument{
		ID:       documentID,
		Snapshot: *snapshot,
		SavedAt:  time.Now().UTC(),
	}

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": documentID},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		s.active.Store(false)
		s.logger.Error("❌ Snapshot save failed, persistence disabled", zap.Error(err))
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted state document; nil means no prior state.
func (s *Store) Load(ctx context.Context) (*ledger.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc stateDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		s.active.Store(false)
		s.logger.Error("❌ Snapshot load failed, persistence disabled", zap.Error(err))
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &doc.Snapshot, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	s.active.Store(false)
	return s.client.Disconnect(ctx)
}
