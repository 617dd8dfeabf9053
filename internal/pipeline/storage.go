package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Sink persists extracted Records. Distinct from frontier.Persister: a
// Sink stores the crawl's output data, not its dedup/resume state.
type Sink interface {
	Store(records []*Record) error
	Close() error
}

// MongoSink writes Records to a MongoDB collection, one document per
// Record with its extracted fields flattened alongside source metadata.
// Grounded on the teacher's storage.MongoStorage, retargeted at the
// generic Record type instead of types.Item.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoSink connects to uri and resolves database.collection.
func NewMongoSink(uri, database, collection string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("pipeline: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pipeline: mongo ping: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "pipeline_mongo_sink"),
	}, nil
}

// Store inserts records as a batch.
func (s *MongoSink) Store(records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(records))
	for i, r := range records {
		doc := make(map[string]any, len(r.Fields)+4)
		doc["_source_url"] = r.SourceURL
		doc["_kind"] = r.Kind.String()
		doc["_fetched_at"] = r.FetchedAt
		doc["_checksum"] = r.Checksum
		for k, v := range r.Fields {
			doc[k] = v
		}
		docs[i] = doc
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("pipeline: mongo insert: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records stored", "count", len(records), "total", s.count)
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoSink) Close() error {
	s.logger.Info("mongo sink closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// MemorySink is an in-memory Sink for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Store(records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// All returns a snapshot of every Record stored so far.
func (s *MemorySink) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}
