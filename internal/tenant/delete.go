package tenant

import (
	"context"
)

// Delete removes the principal's organization: its namespace, registry entry and
// admin. When an archiver is configured the namespace is snapshotted first and a
// failed snapshot aborts the delete with nothing removed.
func (m *Manager) Delete(ctx context.Context, p *Principal) (err error) {
	defer func() { observe("delete", err) }()

	release, err := m.acquire(ctx, "delete", orgLockKey(p.OrgName), nsLockKey(p.NamespaceID))
	if err != nil {
		return err
	}
	defer release()

	org, err := m.resolve(ctx, p.AdminID, p.OrgName)
	if err != nil {
		return err
	}

	if m.archiver != nil {
		res, err := m.archiver.Snapshot(ctx, org.Name, org.NamespaceID)
		if err != nil {
			m.logger.Error("archive before delete failed", "org_name", org.Name, "error", err)
			return internal("failed to archive namespace", err)
		}
		m.logger.Info("namespace archived", "org_name", org.Name, "key", res.Key, "documents", res.Documents)
	}

	ctx = context.WithoutCancel(ctx)
	if err := m.store.DropNamespace(ctx, org.NamespaceID); err != nil {
		m.logger.Warn("failed to drop namespace, removing registry entry anyway",
			"namespace", org.NamespaceID, "error", err)
	}
	if err := m.catalog.Remove(ctx, org.Name); err != nil {
		m.logger.Error("failed to remove organization from registry", "org_name", org.Name, "error", err)
		return internal("failed to remove organization", err)
	}
	if err := m.catalog.DeleteAdmin(ctx, org.AdminID); err != nil {
		m.logger.Error("organization removed but admin not deleted", "admin_id", org.AdminID, "error", err)
		return internal("failed to delete admin", err)
	}

	m.logger.Info("organization deleted", "org_name", org.Name, "namespace", org.NamespaceID)
	return nil
}
