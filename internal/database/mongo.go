package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dinostats/internal/config"
	"dinostats/internal/stats"
)

const maxUpdateAttempts = 10

// MongoStore keeps one document per period in a MongoDB collection. The
// period key is the document _id and the snapshot is stored as a nested
// document so it stays queryable.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to the configured MongoDB deployment.
func NewMongoStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to reach mongo: %w", err)
	}

	collection := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updatedAt", Value: -1}},
		Options: options.Index(),
	})
	if err != nil {
		logger.Warn("Error creating indexes",
			slog.String("collection", cfg.MongoCollection),
			slog.Any("error", err))
	}

	logger.Info("Connected to MongoDB",
		slog.String("database", cfg.MongoDatabase),
		slog.String("collection", cfg.MongoCollection))

	return &MongoStore{client: client, collection: collection, logger: logger}, nil
}

// Health pings the deployment.
func (m *MongoStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		m.logger.Error("Database health error", slog.Any("error", err))
		return err
	}
	return nil
}

// Close disconnects the client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Save replaces the snapshot of key.
func (m *MongoStore) Save(ctx context.Context, key string, s *stats.Snapshot) error {
	_, err := m.Update(ctx, key, func(*stats.Snapshot) *stats.Snapshot { return s })
	return err
}

func (m *MongoStore) Load(ctx context.Context, key string) (*stats.Snapshot, error) {
	s, _, err := m.load(ctx, key)
	return s, err
}

// Update reads the document with its revision and writes the result back only
// if the revision is unchanged, retrying when another writer got there first.
func (m *MongoStore) Update(ctx context.Context, key string, fn stats.UpdateFunc) (*stats.Snapshot, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, revision, err := m.load(ctx, key)
		exists := err == nil
		if errors.Is(err, stats.ErrNotFound) {
			current = stats.Empty(key)
		} else if err != nil {
			return nil, err
		}

		updated := fn(current)
		doc, err := snapshotDocument(key, updated, revision+1)
		if err != nil {
			return nil, err
		}

		if !exists {
			_, err = m.collection.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				m.logger.Debug("Snapshot created concurrently, retrying",
					slog.String("key", key), slog.Int("attempt", attempt))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to save snapshot %s: %w", key, err)
			}
			return updated, nil
		}

		result, err := m.collection.ReplaceOne(ctx, revisionFilter(key, revision), doc)
		if err != nil {
			return nil, fmt.Errorf("failed to save snapshot %s: %w", key, err)
		}
		if result.MatchedCount == 1 {
			return updated, nil
		}
		m.logger.Debug("Snapshot changed during update, retrying",
			slog.String("key", key), slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("%w: %s", stats.ErrConflict, key)
}

func (m *MongoStore) load(ctx context.Context, key string) (*stats.Snapshot, int64, error) {
	raw, err := m.collection.FindOne(ctx, bson.M{"_id": key}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, stats.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}

	s, err := snapshotFromDocument(raw)
	if err != nil {
		return nil, 0, err
	}
	return s, documentRevision(raw), nil
}

func (m *MongoStore) Range(ctx context.Context, from, to string) ([]*stats.Snapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, rangeFilter(from, to), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []*stats.Snapshot
	for cursor.Next(ctx) {
		s, err := snapshotFromDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

func snapshotDocument(key string, s *stats.Snapshot, revision int64) (bson.D, error) {
	data, err := stats.Encode(s)
	if err != nil {
		return nil, err
	}

	var payload bson.D
	if err := bson.UnmarshalExtJSON(data, false, &payload); err != nil {
		return nil, fmt.Errorf("failed to convert snapshot %s: %w", key, err)
	}

	return bson.D{
		{Key: "_id", Value: key},
		{Key: "version", Value: int32(stats.CurrentVersion)},
		{Key: "revision", Value: revision},
		{Key: "payload", Value: payload},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}, nil
}

func snapshotFromDocument(raw bson.Raw) (*stats.Snapshot, error) {
	value, err := raw.LookupErr("payload")
	if err != nil {
		return nil, fmt.Errorf("snapshot document without payload: %w", err)
	}
	payload, ok := value.DocumentOK()
	if !ok {
		return nil, fmt.Errorf("snapshot payload is a %s, not a document", value.Type)
	}

	data, err := bson.MarshalExtJSON(payload, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert snapshot document: %w", err)
	}
	return stats.DecodeCurrent(data)
}

// documentRevision returns the revision of a stored document. Documents
// written before revisions existed read as 0.
func documentRevision(raw bson.Raw) int64 {
	value, err := raw.LookupErr("revision")
	if err != nil {
		return 0
	}
	if revision, ok := value.Int64OK(); ok {
		return revision
	}
	if revision, ok := value.Int32OK(); ok {
		return int64(revision)
	}
	return 0
}

// revisionFilter matches the document of key only while it still has revision.
func revisionFilter(key string, revision int64) bson.M {
	if revision == 0 {
		return bson.M{"_id": key, "revision": bson.M{"$exists": false}}
	}
	return bson.M{"_id": key, "revision": revision}
}

func rangeFilter(from, to string) bson.M {
	bounds := bson.M{}
	if from != "" {
		bounds["$gte"] = from
	}
	if to != "" {
		bounds["$lte"] = to
	}
	if len(bounds) == 0 {
		return bson.M{}
	}
	return bson.M{"_id": bounds}
}
