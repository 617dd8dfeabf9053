package frontier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// pendingDoc and deadDoc are the two document shapes persisted: a pending
// entry carries the original link text (needed to re-dispense it later),
// a dead entry only needs to exist for membership checks on Recover.
type pendingDoc struct {
	ID   string `bson:"_id"`
	Link string `bson:"link"`
}

type deadDoc struct {
	ID string `bson:"_id"`
}

// MongoStore persists the Frontier's pending and dead fingerprints to
// four collections, one pending/dead pair per link class: frontier_links
// / frontier_dead_links for LINK, frontier_topic_links /
// frontier_dead_topic_links for TOPIC_LINK. Grounded on the teacher's
// MongoStorage: connect-once with a connect timeout; each pending or
// dead fingerprint is written as its own UpdateByID upsert.
type MongoStore struct {
	client *mongo.Client
	logger *slog.Logger

	pending map[rpcwire.Class]*mongo.Collection
	dead    map[rpcwire.Class]*mongo.Collection

	maxRetries int
	retryDelay time.Duration
}

// MongoStoreConfig names the Mongo connection and retry budget. Field
// names echo spec.md §6's PIPELINE_CONFIG keys verbatim even though the
// backing store is Mongo, not LevelDB.
type MongoStoreConfig struct {
	URI               string
	Database          string
	LevelDBMaxRetries int
	LevelDBRetryDelay time.Duration
}

// NewMongoStore connects and resolves the four frontier collections:
// frontier_links, frontier_dead_links, frontier_topic_links,
// frontier_dead_topic_links.
func NewMongoStore(cfg MongoStoreConfig, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("frontier: mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("frontier: mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	linkPending := db.Collection("frontier_links")
	topicPending := db.Collection("frontier_topic_links")

	maxRetries := cfg.LevelDBMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.LevelDBRetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &MongoStore{
		client: client,
		logger: logger.With("component", "frontier_mongo_store"),
		pending: map[rpcwire.Class]*mongo.Collection{
			rpcwire.ClassLink:      linkPending,
			rpcwire.ClassTopicLink: topicPending,
		},
		dead: map[rpcwire.Class]*mongo.Collection{
			rpcwire.ClassLink:      db.Collection("frontier_dead_links"),
			rpcwire.ClassTopicLink: db.Collection("frontier_dead_topic_links"),
		},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Close disconnects the Mongo client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// PersistPending writes link as an upsert keyed by fp, bounded-retried so
// a transient network blip does not surface as a submit failure.
func (m *MongoStore) PersistPending(ctx context.Context, class rpcwire.Class, fp Fingerprint, link rpcwire.Link) error {
	coll := m.pending[class]
	doc := pendingDoc{ID: string(fp), Link: string(link)}
	return m.withRetry(ctx, func(ctx context.Context) error {
		opts := options.UpdateOne().SetUpsert(true)
		_, err := coll.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, opts)
		return err
	})
}

// PersistDead upserts fp into the class's dead collection and removes it
// from pending. Both are best-effort: a crash between the two leaves fp
// in both collections, and the next Recover skips pending entries that
// are also dead, so fp is not dispensed again.
func (m *MongoStore) PersistDead(ctx context.Context, class rpcwire.Class, fp Fingerprint) error {
	dead := m.dead[class]
	pending := m.pending[class]
	return m.withRetry(ctx, func(ctx context.Context) error {
		if _, err := dead.UpdateByID(ctx, string(fp), bson.M{"$set": deadDoc{ID: string(fp)}}, options.UpdateOne().SetUpsert(true)); err != nil {
			return err
		}
		_, err := pending.DeleteOne(ctx, bson.M{"_id": string(fp)})
		return err
	})
}

// Recover loads every pending and dead fingerprint for class.
func (m *MongoStore) Recover(ctx context.Context, class rpcwire.Class) ([]PendingEntry, []Fingerprint, error) {
	var pending []PendingEntry
	cur, err := m.pending[class].Find(ctx, bson.M{})
	if err != nil {
		return nil, nil, fmt.Errorf("frontier: recover pending %s: %w", class, err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc pendingDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("frontier: decode pending %s: %w", class, err)
		}
		pending = append(pending, PendingEntry{Fingerprint: Fingerprint(doc.ID), Link: rpcwire.Link(doc.Link)})
	}

	var dead []Fingerprint
	deadCur, err := m.dead[class].Find(ctx, bson.M{})
	if err != nil {
		return nil, nil, fmt.Errorf("frontier: recover dead %s: %w", class, err)
	}
	defer deadCur.Close(ctx)
	for deadCur.Next(ctx) {
		var doc deadDoc
		if err := deadCur.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("frontier: decode dead %s: %w", class, err)
		}
		dead = append(dead, Fingerprint(doc.ID))
	}

	m.logger.Info("frontier recovered", "class", class.String(), "pending", len(pending), "dead", len(dead))
	return pending, dead, nil
}

func (m *MongoStore) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		m.logger.Warn("frontier mongo write failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("frontier: exceeded %d retries: %w", m.maxRetries, err)
}
