// Package postgres implements registry.Catalog in PostgreSQL. Uniqueness of the
// folded organization name, the namespace identifier and the folded admin email
// is enforced by unique indexes (see internal/db/migrations).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/registry"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Registry is a registry.Catalog backed by PostgreSQL.
type Registry struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ registry.Catalog = (*Registry)(nil)

// New creates a PostgreSQL registry.
func New(db *sqlx.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

type orgRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	NamespaceID string    `db:"namespace_id"`
	AdminID     string    `db:"admin_id"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r orgRow) toModel() *registry.Organization {
	return &registry.Organization{
		ID:          r.ID,
		Name:        r.Name,
		NamespaceID: namespace.ID(r.NamespaceID),
		AdminID:     r.AdminID,
		CreatedAt:   r.CreatedAt,
	}
}

type adminRow struct {
	ID             string    `db:"id"`
	Email          string    `db:"email"`
	PasswordDigest string    `db:"password_digest"`
	OrgName        string    `db:"org_name"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r adminRow) toModel() *registry.Admin {
	return &registry.Admin{
		ID:             r.ID,
		Email:          r.Email,
		PasswordDigest: r.PasswordDigest,
		OrgName:        r.OrgName,
		CreatedAt:      r.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Register implements registry.Registry.
func (r *Registry) Register(ctx context.Context, name string, ns namespace.ID, adminID string) (*registry.Organization, error) {
	query := `
		INSERT INTO organizations (id, name, name_ci, namespace_id, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	org := &registry.Organization{
		ID:          uuid.NewString(),
		Name:        name,
		NamespaceID: ns,
		AdminID:     adminID,
		CreatedAt:   r.now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, query,
		org.ID, org.Name, namespace.Key(org.Name), string(org.NamespaceID), org.AdminID, org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, registry.ErrDuplicateOrg
		}
		return nil, fmt.Errorf("failed to register organization: %w", err)
	}
	return org, nil
}

// Lookup implements registry.Registry.
func (r *Registry) Lookup(ctx context.Context, name string) (*registry.Organization, error) {
	query := `
		SELECT id, name, namespace_id, admin_id, created_at
		FROM organizations
		WHERE name_ci = $1
	`

	var row orgRow
	if err := r.db.GetContext(ctx, &row, query, namespace.Key(name)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	return row.toModel(), nil
}

// Rename implements registry.Registry.
func (r *Registry) Rename(ctx context.Context, oldName, newName string, newNS namespace.ID) error {
	query := `
		UPDATE organizations
		SET name = $1, name_ci = $2, namespace_id = $3
		WHERE name_ci = $4
	`

	result, err := r.db.ExecContext(ctx, query, newName, namespace.Key(newName), string(newNS), namespace.Key(oldName))
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrDuplicateOrg
		}
		return fmt.Errorf("failed to rename organization: %w", err)
	}
	return expectOneRow(result)
}

// Remove implements registry.Registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE name_ci = $1`, namespace.Key(name))
	if err != nil {
		return fmt.Errorf("failed to remove organization: %w", err)
	}
	return expectOneRow(result)
}

// List implements registry.Registry.
func (r *Registry) List(ctx context.Context) ([]*registry.Organization, error) {
	query := `
		SELECT id, name, namespace_id, admin_id, created_at
		FROM organizations
		ORDER BY name_ci
	`

	var rows []orgRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	orgs := make([]*registry.Organization, 0, len(rows))
	for _, row := range rows {
		orgs = append(orgs, row.toModel())
	}
	return orgs, nil
}

// CreateAdmin implements registry.AdminStore.
func (r *Registry) CreateAdmin(ctx context.Context, admin *registry.Admin) error {
	query := `
		INSERT INTO admins (id, email, email_ci, password_digest, org_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		admin.ID, admin.Email, registry.EmailKey(admin.Email), admin.PasswordDigest, admin.OrgName, admin.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrDuplicateAdmin
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// AdminByEmail implements registry.AdminStore.
func (r *Registry) AdminByEmail(ctx context.Context, email string) (*registry.Admin, error) {
	return r.getAdmin(ctx, `
		SELECT id, email, password_digest, org_name, created_at
		FROM admins
		WHERE email_ci = $1
	`, registry.EmailKey(email))
}

// AdminByID implements registry.AdminStore.
func (r *Registry) AdminByID(ctx context.Context, id string) (*registry.Admin, error) {
	return r.getAdmin(ctx, `
		SELECT id, email, password_digest, org_name, created_at
		FROM admins
		WHERE id = $1
	`, id)
}

func (r *Registry) getAdmin(ctx context.Context, query string, arg any) (*registry.Admin, error) {
	var row adminRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return row.toModel(), nil
}

// UpdateAdminOrg implements registry.AdminStore.
func (r *Registry) UpdateAdminOrg(ctx context.Context, id, orgName string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE admins SET org_name = $1 WHERE id = $2`, orgName, id)
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", err)
	}
	return expectOneRow(result)
}

// DeleteAdmin implements registry.AdminStore.
func (r *Registry) DeleteAdmin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	return expectOneRow(result)
}

// Ping implements registry.Catalog.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}
