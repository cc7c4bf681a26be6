// Package mongo implements docstore.Store on MongoDB. Each namespace is a MongoDB
// database and collections map one to one.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
)

// defaultConnectTimeout bounds the initial connect and ping.
const defaultConnectTimeout = 10 * time.Second

func init() {
	docstore.Register("mongo", func(ctx context.Context, cfg *config.Config) (docstore.Store, func(context.Context) error, error) {
		s, err := Connect(ctx, cfg.DocStore.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	})
}

// Store is a docstore.Store backed by a MongoDB client.
type Store struct {
	client *mongo.Client
}

var _ docstore.Store = (*Store)(nil)

// New wraps an already connected client.
func New(client *mongo.Client) *Store {
	return &Store{client: client}
}

// Connect dials MongoDB and verifies the connection against the primary.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return New(client), nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(ns namespace.ID, coll string) *mongo.Collection {
	return s.client.Database(string(ns)).Collection(coll)
}

// ListCollections implements docstore.Store. MongoDB's own system collections are omitted.
func (s *Store) ListCollections(ctx context.Context, ns namespace.ID) ([]string, error) {
	names, err := s.client.Database(string(ns)).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, mapError(err)
	}
	out := names[:0]
	for _, name := range names {
		if !strings.HasPrefix(name, "system.") {
			out = append(out, name)
		}
	}
	return out, nil
}

// IterateDocuments implements docstore.Store with a server-side cursor.
func (s *Store) IterateDocuments(ctx context.Context, ns namespace.ID, coll string, fn func(docstore.Document) error) error {
	cursor, err := s.collection(ns, coll).Find(ctx, bson.D{})
	if err != nil {
		return mapError(err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		if err := fn(docstore.Document(doc)); err != nil {
			return err
		}
	}
	return mapError(cursor.Err())
}

// InsertDocument implements docstore.Store.
func (s *Store) InsertDocument(ctx context.Context, ns namespace.ID, coll string, doc docstore.Document) error {
	_, err := s.collection(ns, coll).InsertOne(ctx, bson.M(doc))
	return mapError(err)
}

// DropCollection implements docstore.Store.
func (s *Store) DropCollection(ctx context.Context, ns namespace.ID, coll string) error {
	return mapError(s.collection(ns, coll).Drop(ctx))
}

// DropNamespace implements docstore.Store.
func (s *Store) DropNamespace(ctx context.Context, ns namespace.ID) error {
	return mapError(s.client.Database(string(ns)).Drop(ctx))
}

// FindOne implements docstore.Store.
func (s *Store) FindOne(ctx context.Context, ns namespace.ID, coll string, filter docstore.Filter) (docstore.Document, error) {
	var doc bson.M
	if err := s.collection(ns, coll).FindOne(ctx, toFilter(filter)).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return docstore.Document(doc), nil
}

// InsertOne implements docstore.Store. MongoDB assigns an ObjectID when _id is absent.
func (s *Store) InsertOne(ctx context.Context, ns namespace.ID, coll string, doc docstore.Document) (any, error) {
	res, err := s.collection(ns, coll).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return nil, mapError(err)
	}
	return res.InsertedID, nil
}

// UpdateOne implements docstore.Store.
func (s *Store) UpdateOne(ctx context.Context, ns namespace.ID, coll string, filter docstore.Filter, set docstore.Document) error {
	res, err := s.collection(ns, coll).UpdateOne(ctx, toFilter(filter), bson.M{"$set": bson.M(set)})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// DeleteOne implements docstore.Store.
func (s *Store) DeleteOne(ctx context.Context, ns namespace.ID, coll string, filter docstore.Filter) error {
	res, err := s.collection(ns, coll).DeleteOne(ctx, toFilter(filter))
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// EnsureUniqueIndex implements docstore.Store.
func (s *Store) EnsureUniqueIndex(ctx context.Context, ns namespace.ID, coll, field string) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(indexName(field)),
	}
	if _, err := s.collection(ns, coll).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create unique index on %s.%s: %w", coll, field, mapError(err))
	}
	return nil
}

// Ping implements docstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func indexName(field string) string {
	return field + "_unique"
}

// toFilter converts an equality filter to BSON. A string _id that parses as an
// ObjectID matches either representation, since ids round-trip through URLs
// as hex strings.
func toFilter(filter docstore.Filter) bson.M {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	if s, ok := out[docstore.IDField].(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			out[docstore.IDField] = bson.M{"$in": bson.A{oid, s}}
		}
	}
	return out
}

// mapError translates driver errors into docstore sentinels, keeping the
// driver error in the chain.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", docstore.ErrDuplicateKey, err)
	default:
		return err
	}
}
