// Package memory implements an in-process document store. It is intended for tests
// and single-node development; data does not survive a restart.
//
// Unique indexes are enforced under the store lock, so it models the uniqueness
// guarantee a real backend provides and concurrent inserts of the same key fail
// deterministically for all but one caller.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
)

func init() {
	docstore.Register("memory", func(_ context.Context, _ *config.Config) (docstore.Store, func(context.Context) error, error) {
		return New(), func(context.Context) error { return nil }, nil
	})
}

// Op names a store operation for fault injection.
type Op string

const (
	OpListCollections Op = "list_collections"
	OpIterate         Op = "iterate"
	OpInsertDocument  Op = "insert_document"
	OpDropCollection  Op = "drop_collection"
	OpDropNamespace   Op = "drop_namespace"
	OpFindOne         Op = "find_one"
	OpInsertOne       Op = "insert_one"
	OpUpdateOne       Op = "update_one"
	OpDeleteOne       Op = "delete_one"
	OpEnsureUniqueIdx Op = "ensure_unique_index"
)

// FaultFunc is consulted before every operation; a non-nil return value is
// returned to the caller instead of performing the operation.
type FaultFunc func(op Op, ns namespace.ID, coll string) error

type collection struct {
	docs   []docstore.Document
	unique []string
}

// Store is an in-memory docstore.Store.
type Store struct {
	mu         sync.RWMutex
	namespaces map[namespace.ID]map[string]*collection
	fault      FaultFunc
}

var _ docstore.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{namespaces: make(map[namespace.ID]map[string]*collection)}
}

// SetFault installs fn as the fault hook. Pass nil to clear it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) check(op Op, ns namespace.ID, coll string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, ns, coll)
}

// HasNamespace reports whether ns currently exists.
func (s *Store) HasNamespace(ns namespace.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.namespaces[ns]
	return ok
}

// ListCollections returns the sorted collection names in ns.
func (s *Store) ListCollections(_ context.Context, ns namespace.ID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(OpListCollections, ns, ""); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.namespaces[ns]))
	for name := range s.namespaces[ns] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// IterateDocuments calls fn over a snapshot of coll so fn may write back into the store.
func (s *Store) IterateDocuments(ctx context.Context, ns namespace.ID, coll string, fn func(docstore.Document) error) error {
	s.mu.RLock()
	if err := s.check(OpIterate, ns, coll); err != nil {
		s.mu.RUnlock()
		return err
	}
	var snapshot []docstore.Document
	if c := s.namespaces[ns][coll]; c != nil {
		snapshot = make([]docstore.Document, len(c.docs))
		for i, d := range c.docs {
			snapshot[i] = d.Clone()
		}
	}
	s.mu.RUnlock()

	for _, d := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// InsertDocument stores doc keeping its _id; a missing _id is generated.
func (s *Store) InsertDocument(_ context.Context, ns namespace.ID, coll string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertDocument, ns, coll); err != nil {
		return err
	}
	_, err := s.insertLocked(ns, coll, doc)
	return err
}

// DropCollection removes coll from ns. Dropping an absent collection is a no-op.
func (s *Store) DropCollection(_ context.Context, ns namespace.ID, coll string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDropCollection, ns, coll); err != nil {
		return err
	}
	colls, ok := s.namespaces[ns]
	if !ok {
		return nil
	}
	delete(colls, coll)
	if len(colls) == 0 {
		delete(s.namespaces, ns)
	}
	return nil
}

// DropNamespace removes ns and everything in it.
func (s *Store) DropNamespace(_ context.Context, ns namespace.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDropNamespace, ns, ""); err != nil {
		return err
	}
	delete(s.namespaces, ns)
	return nil
}

// FindOne returns a copy of the first document matching filter.
func (s *Store) FindOne(_ context.Context, ns namespace.ID, coll string, filter docstore.Filter) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(OpFindOne, ns, coll); err != nil {
		return nil, err
	}
	c := s.namespaces[ns][coll]
	if c == nil {
		return nil, docstore.ErrNotFound
	}
	if i := c.find(filter); i >= 0 {
		return c.docs[i].Clone(), nil
	}
	return nil, docstore.ErrNotFound
}

// InsertOne stores doc and returns its _id.
func (s *Store) InsertOne(_ context.Context, ns namespace.ID, coll string, doc docstore.Document) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertOne, ns, coll); err != nil {
		return nil, err
	}
	return s.insertLocked(ns, coll, doc)
}

// UpdateOne applies set to the first document matching filter.
func (s *Store) UpdateOne(_ context.Context, ns namespace.ID, coll string, filter docstore.Filter, set docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpUpdateOne, ns, coll); err != nil {
		return err
	}
	c := s.namespaces[ns][coll]
	if c == nil {
		return docstore.ErrNotFound
	}
	i := c.find(filter)
	if i < 0 {
		return docstore.ErrNotFound
	}

	updated := c.docs[i].Clone()
	for k, v := range set {
		updated[k] = v
	}
	if err := c.checkUnique(updated, i); err != nil {
		return err
	}
	c.docs[i] = updated
	return nil
}

// DeleteOne removes the first document matching filter.
func (s *Store) DeleteOne(_ context.Context, ns namespace.ID, coll string, filter docstore.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDeleteOne, ns, coll); err != nil {
		return err
	}
	c := s.namespaces[ns][coll]
	if c == nil {
		return docstore.ErrNotFound
	}
	i := c.find(filter)
	if i < 0 {
		return docstore.ErrNotFound
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return nil
}

// EnsureUniqueIndex registers field as unique in coll, creating coll if needed.
func (s *Store) EnsureUniqueIndex(_ context.Context, ns namespace.ID, coll, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpEnsureUniqueIdx, ns, coll); err != nil {
		return err
	}
	c := s.collectionLocked(ns, coll)
	for _, f := range c.unique {
		if f == field {
			return nil
		}
	}
	seen := make(map[string]bool, len(c.docs))
	for _, d := range c.docs {
		v, ok := d[field]
		if !ok {
			continue
		}
		k := indexKey(v)
		if seen[k] {
			return fmt.Errorf("cannot build unique index on %s.%s: %w", coll, field, docstore.ErrDuplicateKey)
		}
		seen[k] = true
	}
	c.unique = append(c.unique, field)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) collectionLocked(ns namespace.ID, coll string) *collection {
	colls, ok := s.namespaces[ns]
	if !ok {
		colls = make(map[string]*collection)
		s.namespaces[ns] = colls
	}
	c, ok := colls[coll]
	if !ok {
		c = &collection{}
		colls[coll] = c
	}
	return c
}

func (s *Store) insertLocked(ns namespace.ID, coll string, doc docstore.Document) (any, error) {
	d := doc.Clone()
	if d.ID() == nil {
		d[docstore.IDField] = uuid.NewString()
	}

	// Check before creating the collection so a rejected write leaves no trace.
	if c := s.namespaces[ns][coll]; c != nil {
		if err := c.checkUnique(d, -1); err != nil {
			return nil, err
		}
	}
	c := s.collectionLocked(ns, coll)
	c.docs = append(c.docs, d)
	return d.ID(), nil
}

func (c *collection) find(filter docstore.Filter) int {
	for i, d := range c.docs {
		if matches(d, filter) {
			return i
		}
	}
	return -1
}

// checkUnique verifies d against _id and every unique index, ignoring the document at skip.
func (c *collection) checkUnique(d docstore.Document, skip int) error {
	fields := append([]string{docstore.IDField}, c.unique...)
	for _, field := range fields {
		v, ok := d[field]
		if !ok {
			continue
		}
		k := indexKey(v)
		for i, other := range c.docs {
			if i == skip {
				continue
			}
			if ov, ok := other[field]; ok && indexKey(ov) == k {
				return fmt.Errorf("%s=%v: %w", field, v, docstore.ErrDuplicateKey)
			}
		}
	}
	return nil
}

func matches(d docstore.Document, filter docstore.Filter) bool {
	for k, want := range filter {
		got, ok := d[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func indexKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
