package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const activityCollection = "activity_log"

// MongoActivityStore keeps the activity log in a MongoDB collection. It is
// insert-only: nothing here updates or deletes entries.
type MongoActivityStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoActivityStore connects to MongoDB, verifies the connection and
// makes sure the lookup index exists.
func NewMongoActivityStore(ctx context.Context, uri, database string) (*MongoActivityStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoActivityStore{
		client:     client,
		collection: client.Database(database).Collection(activityCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoActivityStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "resourceId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

func (s *MongoActivityStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivityByResource returns a resource's entries newest first. A limit
// of zero or less returns every entry.
func (s *MongoActivityStore) ListActivityByResource(ctx context.Context, resourceID string, limit int) ([]ActivityEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"resourceId": resourceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find activity: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]ActivityEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return entries, nil
}

func (s *MongoActivityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoActivityStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
