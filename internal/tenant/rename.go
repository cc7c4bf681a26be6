package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/telemetry"
)

// Rename gives the principal's organization a new name, moving every collection
// from the old namespace to the new one before the registry is updated.
//
// The registry keeps the old name until all data is under the new namespace. A
// failed migration returns a *MigrationError and leaves the registry untouched.
// Once migration starts the operation runs to completion even if ctx is
// cancelled.
func (m *Manager) Rename(ctx context.Context, p *Principal, newName string) (org *registry.Organization, err error) {
	defer func() { observe("rename", err) }()

	newName = strings.TrimSpace(newName)
	if err := validateOrgName(newName); err != nil {
		return nil, err
	}
	if namespace.SameName(p.OrgName, newName) {
		return nil, ErrNoOpRename
	}
	newNS := namespace.Derive(newName)

	release, err := m.acquire(ctx, "rename",
		orgLockKey(p.OrgName), nsLockKey(p.NamespaceID),
		orgLockKey(newName), nsLockKey(newNS))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := m.resolve(ctx, p.AdminID, p.OrgName)
	if err != nil {
		return nil, err
	}
	if err := m.checkTargetFree(ctx, current, newName, newNS); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	oldNS := current.NamespaceID
	if oldNS != newNS {
		if err := m.migrate(ctx, oldNS, newNS); err != nil {
			m.logger.Error("organization rename aborted during migration",
				"org_name", current.Name, "new_name", newName, "error", err)
			return nil, err
		}
		if err := m.store.DropNamespace(ctx, oldNS); err != nil {
			m.logger.Warn("failed to drop old namespace after rename",
				"namespace", oldNS, "error", err)
		}
	}

	if err := m.catalog.Rename(ctx, current.Name, newName, newNS); err != nil {
		m.logger.Error("data migrated but registry rename failed",
			"org_name", current.Name, "new_name", newName, "namespace", newNS, "error", err)
		return nil, internal("failed to update registry", err)
	}
	if err := m.catalog.UpdateAdminOrg(ctx, current.AdminID, newName); err != nil {
		m.logger.Error("registry renamed but admin reference not updated",
			"admin_id", current.AdminID, "new_name", newName, "error", err)
		return nil, internal("failed to update admin", err)
	}

	m.logger.Info("organization renamed",
		"old_name", current.Name, "new_name", newName, "old_namespace", oldNS, "new_namespace", newNS)

	renamed := *current
	renamed.Name = newName
	renamed.NamespaceID = newNS
	return &renamed, nil
}

// checkTargetFree rejects a rename onto a name or namespace owned by another organization.
func (m *Manager) checkTargetFree(ctx context.Context, current *registry.Organization, newName string, newNS namespace.ID) error {
	switch other, err := m.catalog.Lookup(ctx, newName); {
	case err == nil && other.ID != current.ID:
		return ErrOrgAlreadyExists
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		return internal("failed to check organization", err)
	}

	if newNS == current.NamespaceID {
		return nil
	}
	orgs, err := m.catalog.List(ctx)
	if err != nil {
		return internal("failed to list organizations", err)
	}
	for _, o := range orgs {
		if o.ID != current.ID && o.NamespaceID == newNS {
			return ErrOrgAlreadyExists
		}
	}
	return nil
}

// migrate copies every collection of from into to, dropping each source
// collection once its copy is complete.
func (m *Manager) migrate(ctx context.Context, from, to namespace.ID) error {
	start := time.Now()
	defer func() {
		telemetry.MigrationDuration.Observe(time.Since(start).Seconds())
	}()

	colls, err := m.store.ListCollections(ctx, from)
	if err != nil {
		return &MigrationError{From: from, To: to, Err: err}
	}

	moved := make([]string, 0, len(colls))
	for _, coll := range colls {
		copied := 0
		err := m.store.IterateDocuments(ctx, from, coll, func(doc docstore.Document) error {
			if err := m.store.InsertDocument(ctx, to, coll, doc); err != nil {
				return err
			}
			copied++
			telemetry.MigrationDocumentsTotal.Inc()
			return nil
		})
		if err == nil {
			err = m.store.DropCollection(ctx, from, coll)
		}
		if err != nil {
			return &MigrationError{From: from, To: to, Collection: coll, Copied: copied, Moved: moved, Err: err}
		}
		moved = append(moved, coll)
		m.logger.Debug("collection migrated", "from", from, "to", to, "collection", coll, "documents", copied)
	}
	return nil
}
