// Package registry is the master catalog mapping organization names to their
// namespace and admin. It is the single source of truth for tenant identity and
// lives outside every tenant namespace.
//
// Names are matched case-insensitively (namespace.Key). Implementations enforce
// uniqueness of the folded name, the namespace identifier and the admin email
// in the backing store itself, so concurrent writers cannot both succeed.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/orgspace/orgspace/internal/namespace"
)

var (
	// ErrDuplicateOrg is returned when a name or namespace is already registered.
	ErrDuplicateOrg = errors.New("organization already exists")
	// ErrDuplicateAdmin is returned when an admin email is already registered.
	ErrDuplicateAdmin = errors.New("admin already exists")
	// ErrNotFound is returned when no matching record exists.
	ErrNotFound = errors.New("not found")
)

// Organization is a catalog entry.
type Organization struct {
	ID          string       `json:"id"`
	Name        string       `json:"org_name"`
	NamespaceID namespace.ID `json:"collection_name"`
	AdminID     string       `json:"admin_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Admin is the single administrator of an organization. OrgName is a
// denormalized reference kept in sync on rename.
type Admin struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	OrgName        string    `json:"org"`
	CreatedAt      time.Time `json:"created_at"`
}

// Registry is the organization catalog contract.
type Registry interface {
	// Register persists a new entry. ErrDuplicateOrg if the name (folded) or the
	// namespace identifier is already taken.
	Register(ctx context.Context, name string, ns namespace.ID, adminID string) (*Organization, error)
	// Lookup finds an organization by case-insensitive name.
	Lookup(ctx context.Context, name string) (*Organization, error)
	// Rename moves the entry for oldName to newName/newNS. It does not move data.
	Rename(ctx context.Context, oldName, newName string, newNS namespace.ID) error
	// Remove deletes the entry for name.
	Remove(ctx context.Context, name string) error
	// List returns every organization ordered by name.
	List(ctx context.Context) ([]*Organization, error)
}

// AdminStore persists admin identities.
type AdminStore interface {
	CreateAdmin(ctx context.Context, admin *Admin) error
	AdminByEmail(ctx context.Context, email string) (*Admin, error)
	AdminByID(ctx context.Context, id string) (*Admin, error)
	UpdateAdminOrg(ctx context.Context, id, orgName string) error
	DeleteAdmin(ctx context.Context, id string) error
}

// Catalog is a complete registry backend.
type Catalog interface {
	Registry
	AdminStore
	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// EmailKey returns the case-insensitive uniqueness key for an email address.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
