package tenant

import (
	"context"
	"errors"

	"github.com/orgspace/orgspace/internal/docstore"
)

// DefaultListLimit caps ListDocuments when no limit is given.
const DefaultListLimit = 100

// InsertDocument writes doc into one of the principal's collections and returns
// its id. Writing to a collection of a namespace that does not exist yet creates it.
func (m *Manager) InsertDocument(ctx context.Context, p *Principal, coll string, doc docstore.Document) (id any, err error) {
	defer func() { observe("insert_document", err) }()

	if err := ValidateCollectionName(coll); err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return nil, validationf("document must not be empty")
	}

	release, err := m.acquire(ctx, "insert_document", orgLockKey(p.OrgName))
	if err != nil {
		return nil, err
	}
	defer release()

	org, err := m.resolve(ctx, p.AdminID, p.OrgName)
	if err != nil {
		return nil, err
	}
	id, err = m.store.InsertOne(ctx, org.NamespaceID, coll, doc)
	if err != nil {
		if docstore.IsDuplicateKey(err) {
			return nil, validationf("document with this _id already exists")
		}
		return nil, internal("failed to insert document", err)
	}
	return id, nil
}

// ListCollections returns the collection names in the principal's namespace.
func (m *Manager) ListCollections(ctx context.Context, p *Principal) ([]string, error) {
	colls, err := m.store.ListCollections(ctx, p.NamespaceID)
	if err != nil {
		return nil, internal("failed to list collections", err)
	}
	return colls, nil
}

// ListDocuments returns up to limit documents of coll in store order.
func (m *Manager) ListDocuments(ctx context.Context, p *Principal, coll string, limit int) ([]docstore.Document, error) {
	if err := ValidateCollectionName(coll); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	errLimit := errors.New("limit reached")
	docs := make([]docstore.Document, 0)
	err := m.store.IterateDocuments(ctx, p.NamespaceID, coll, func(d docstore.Document) error {
		docs = append(docs, d)
		if len(docs) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, internal("failed to list documents", err)
	}
	return docs, nil
}

// GetDocument returns the document with the given id.
func (m *Manager) GetDocument(ctx context.Context, p *Principal, coll string, id any) (docstore.Document, error) {
	if err := ValidateCollectionName(coll); err != nil {
		return nil, err
	}
	doc, err := m.store.FindOne(ctx, p.NamespaceID, coll, docstore.ByID(id))
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internal("failed to get document", err)
	}
	return doc, nil
}

// DeleteDocument removes the document with the given id.
func (m *Manager) DeleteDocument(ctx context.Context, p *Principal, coll string, id any) (err error) {
	defer func() { observe("delete_document", err) }()

	if err := ValidateCollectionName(coll); err != nil {
		return err
	}
	release, err := m.acquire(ctx, "delete_document", orgLockKey(p.OrgName))
	if err != nil {
		return err
	}
	defer release()

	org, err := m.resolve(ctx, p.AdminID, p.OrgName)
	if err != nil {
		return err
	}
	if err := m.store.DeleteOne(ctx, org.NamespaceID, coll, docstore.ByID(id)); err != nil {
		if docstore.IsNotFound(err) {
			return ErrNotFound
		}
		return internal("failed to delete document", err)
	}
	return nil
}
