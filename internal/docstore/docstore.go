// Package docstore defines the document store capability the tenant lifecycle
// consumes. A namespace is the store's own isolation unit (a MongoDB database, for
// example) and holds any number of named collections of schemaless documents.
//
// The interface is injected everywhere it is used; there is no package-level client.
// Backends live in sub-packages and register themselves with the factory:
//
//	import _ "github.com/orgspace/orgspace/internal/docstore/mongo"
package docstore

import (
	"context"
	"errors"

	"github.com/orgspace/orgspace/internal/namespace"
)

var (
	// ErrNotFound is returned when a filter matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
)

// IDField is the primary key field of every document.
const IDField = "_id"

// Document is a single schemaless record. Values are whatever the backend decodes
// (for MongoDB, bson primitives).
type Document map[string]any

// ID returns the document's primary key, or nil if it has none.
func (d Document) ID() any {
	return d[IDField]
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Filter selects documents by equality on top-level fields.
type Filter map[string]any

// ByID returns a Filter matching the given primary key.
func ByID(id any) Filter {
	return Filter{IDField: id}
}

// Store is the capability interface over the physical document store.
// Every method is a blocking call against the store.
type Store interface {
	// ListCollections returns the collection names present in ns. A namespace
	// that was never written to has no collections.
	ListCollections(ctx context.Context, ns namespace.ID) ([]string, error)

	// IterateDocuments calls fn for each document in coll, in store order.
	// Iteration stops at the first error returned by fn.
	IterateDocuments(ctx context.Context, ns namespace.ID, coll string, fn func(Document) error) error

	// InsertDocument writes doc verbatim, keeping its existing _id.
	InsertDocument(ctx context.Context, ns namespace.ID, coll string, doc Document) error

	// DropCollection removes coll and all its documents.
	DropCollection(ctx context.Context, ns namespace.ID, coll string) error

	// DropNamespace removes ns entirely. Dropping an absent namespace is not an error.
	DropNamespace(ctx context.Context, ns namespace.ID) error

	// FindOne returns the first document matching filter, or ErrNotFound.
	FindOne(ctx context.Context, ns namespace.ID, coll string, filter Filter) (Document, error)

	// InsertOne stores doc, generating an _id if it has none, and returns the id.
	InsertOne(ctx context.Context, ns namespace.ID, coll string, doc Document) (any, error)

	// UpdateOne sets the given fields on the first document matching filter.
	UpdateOne(ctx context.Context, ns namespace.ID, coll string, filter Filter, set Document) error

	// DeleteOne removes the first document matching filter, or returns ErrNotFound.
	DeleteOne(ctx context.Context, ns namespace.ID, coll string, filter Filter) error

	// EnsureUniqueIndex makes field unique within coll. Writes that would create a
	// second document with the same value fail with ErrDuplicateKey.
	EnsureUniqueIndex(ctx context.Context, ns namespace.ID, coll, field string) error

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey reports whether err is or wraps ErrDuplicateKey.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
