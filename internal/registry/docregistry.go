// docregistry.go implements Catalog on top of a docstore.Store, keeping both
// collections in a fixed master namespace.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
)

const (
	// OrganizationsCollection holds one document per organization.
	OrganizationsCollection = "organizations"
	// AdminsCollection holds one document per admin.
	AdminsCollection = "admins"
)

// Document field names.
const (
	fieldID             = docstore.IDField
	fieldOrgName        = "org_name"
	fieldOrgNameCI      = "org_name_ci"
	fieldCollectionName = "collection_name"
	fieldAdminID        = "admin_id"
	fieldCreatedAt      = "created_at"
	fieldEmail          = "email"
	fieldEmailCI        = "email_ci"
	fieldPassword       = "password"
	fieldOrg            = "org"
)

// DocRegistry stores the catalog in the document store's master namespace.
type DocRegistry struct {
	store  docstore.Store
	master namespace.ID
	now    func() time.Time
}

var _ Catalog = (*DocRegistry)(nil)

// NewDocRegistry creates a registry in the given master namespace. An empty
// master selects namespace.MasterID.
func NewDocRegistry(store docstore.Store, master namespace.ID) *DocRegistry {
	if master == "" {
		master = namespace.MasterID
	}
	return &DocRegistry{store: store, master: master, now: time.Now}
}

// EnsureIndexes creates the unique indexes the registry relies on. It is
// idempotent and must run before the registry serves writes.
func (r *DocRegistry) EnsureIndexes(ctx context.Context) error {
	indexes := []struct{ coll, field string }{
		{OrganizationsCollection, fieldOrgNameCI},
		{OrganizationsCollection, fieldCollectionName},
		{AdminsCollection, fieldEmailCI},
	}
	for _, idx := range indexes {
		if err := r.store.EnsureUniqueIndex(ctx, r.master, idx.coll, idx.field); err != nil {
			return fmt.Errorf("failed to create unique index %s.%s: %w", idx.coll, idx.field, err)
		}
	}
	return nil
}

// Register implements Registry.
func (r *DocRegistry) Register(ctx context.Context, name string, ns namespace.ID, adminID string) (*Organization, error) {
	org := &Organization{
		ID:          uuid.NewString(),
		Name:        name,
		NamespaceID: ns,
		AdminID:     adminID,
		CreatedAt:   r.now().UTC(),
	}
	doc := docstore.Document{
		fieldID:             org.ID,
		fieldOrgName:        org.Name,
		fieldOrgNameCI:      namespace.Key(org.Name),
		fieldCollectionName: string(org.NamespaceID),
		fieldAdminID:        org.AdminID,
		fieldCreatedAt:      org.CreatedAt,
	}
	if _, err := r.store.InsertOne(ctx, r.master, OrganizationsCollection, doc); err != nil {
		if docstore.IsDuplicateKey(err) {
			return nil, ErrDuplicateOrg
		}
		return nil, fmt.Errorf("failed to register organization: %w", err)
	}
	return org, nil
}

// Lookup implements Registry.
func (r *DocRegistry) Lookup(ctx context.Context, name string) (*Organization, error) {
	doc, err := r.store.FindOne(ctx, r.master, OrganizationsCollection, docstore.Filter{fieldOrgNameCI: namespace.Key(name)})
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	return orgFromDocument(doc), nil
}

// Rename implements Registry.
func (r *DocRegistry) Rename(ctx context.Context, oldName, newName string, newNS namespace.ID) error {
	err := r.store.UpdateOne(ctx, r.master, OrganizationsCollection,
		docstore.Filter{fieldOrgNameCI: namespace.Key(oldName)},
		docstore.Document{
			fieldOrgName:        newName,
			fieldOrgNameCI:      namespace.Key(newName),
			fieldCollectionName: string(newNS),
		})
	switch {
	case err == nil:
		return nil
	case docstore.IsNotFound(err):
		return ErrNotFound
	case docstore.IsDuplicateKey(err):
		return ErrDuplicateOrg
	default:
		return fmt.Errorf("failed to rename organization: %w", err)
	}
}

// Remove implements Registry.
func (r *DocRegistry) Remove(ctx context.Context, name string) error {
	err := r.store.DeleteOne(ctx, r.master, OrganizationsCollection, docstore.Filter{fieldOrgNameCI: namespace.Key(name)})
	if err != nil {
		if docstore.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove organization: %w", err)
	}
	return nil
}

// List implements Registry.
func (r *DocRegistry) List(ctx context.Context) ([]*Organization, error) {
	var orgs []*Organization
	err := r.store.IterateDocuments(ctx, r.master, OrganizationsCollection, func(doc docstore.Document) error {
		orgs = append(orgs, orgFromDocument(doc))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	sort.Slice(orgs, func(i, j int) bool {
		return namespace.Key(orgs[i].Name) < namespace.Key(orgs[j].Name)
	})
	return orgs, nil
}

// CreateAdmin implements AdminStore. A missing ID is generated.
func (r *DocRegistry) CreateAdmin(ctx context.Context, admin *Admin) error {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = r.now().UTC()
	}
	doc := docstore.Document{
		fieldID:        admin.ID,
		fieldEmail:     admin.Email,
		fieldEmailCI:   EmailKey(admin.Email),
		fieldPassword:  admin.PasswordDigest,
		fieldOrg:       admin.OrgName,
		fieldCreatedAt: admin.CreatedAt,
	}
	if _, err := r.store.InsertOne(ctx, r.master, AdminsCollection, doc); err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrDuplicateAdmin
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// AdminByEmail implements AdminStore.
func (r *DocRegistry) AdminByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.findAdmin(ctx, docstore.Filter{fieldEmailCI: EmailKey(email)})
}

// AdminByID implements AdminStore.
func (r *DocRegistry) AdminByID(ctx context.Context, id string) (*Admin, error) {
	return r.findAdmin(ctx, docstore.ByID(id))
}

func (r *DocRegistry) findAdmin(ctx context.Context, filter docstore.Filter) (*Admin, error) {
	doc, err := r.store.FindOne(ctx, r.master, AdminsCollection, filter)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return adminFromDocument(doc), nil
}

// UpdateAdminOrg implements AdminStore.
func (r *DocRegistry) UpdateAdminOrg(ctx context.Context, id, orgName string) error {
	err := r.store.UpdateOne(ctx, r.master, AdminsCollection, docstore.ByID(id), docstore.Document{fieldOrg: orgName})
	if err != nil {
		if docstore.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update admin: %w", err)
	}
	return nil
}

// DeleteAdmin implements AdminStore.
func (r *DocRegistry) DeleteAdmin(ctx context.Context, id string) error {
	err := r.store.DeleteOne(ctx, r.master, AdminsCollection, docstore.ByID(id))
	if err != nil {
		if docstore.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	return nil
}

// Ping implements Catalog.
func (r *DocRegistry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func orgFromDocument(doc docstore.Document) *Organization {
	return &Organization{
		ID:          stringField(doc, fieldID),
		Name:        stringField(doc, fieldOrgName),
		NamespaceID: namespace.ID(stringField(doc, fieldCollectionName)),
		AdminID:     stringField(doc, fieldAdminID),
		CreatedAt:   timeField(doc, fieldCreatedAt),
	}
}

func adminFromDocument(doc docstore.Document) *Admin {
	return &Admin{
		ID:             stringField(doc, fieldID),
		Email:          stringField(doc, fieldEmail),
		PasswordDigest: stringField(doc, fieldPassword),
		OrgName:        stringField(doc, fieldOrg),
		CreatedAt:      timeField(doc, fieldCreatedAt),
	}
}

func stringField(doc docstore.Document, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// timeField decodes a timestamp whether the backend returned a time.Time or a
// driver-specific date type exposing Time().
func timeField(doc docstore.Document, key string) time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return v
	case interface{ Time() time.Time }:
		return v.Time().UTC()
	default:
		return time.Time{}
	}
}
