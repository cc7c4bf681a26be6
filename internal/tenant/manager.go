// Package tenant orchestrates the organization lifecycle: creation, login,
// rename with namespace migration, and teardown. It keeps the registry and the
// document store consistent and owns the error taxonomy the transport maps to
// status codes.
//
// Mutations of one organization are serialized with lock.Locker on the folded
// organization name and on the namespace identifier; the registry's unique
// indexes remain the final guard against duplicates.
//
// A Principal is re-resolved against the registry under the lock before every
// mutation, so a token minted before a rename or delete can never act on a
// name that no longer belongs to it.
package tenant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/orgspace/orgspace/internal/archive"
	"github.com/orgspace/orgspace/internal/credential"
	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/lock"
	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/telemetry"
)

// DefaultTokenTTL is the session lifetime when none is configured.
const DefaultTokenTTL = 60 * time.Minute

// DefaultLockWait bounds how long an operation waits for an organization lock.
const DefaultLockWait = 30 * time.Second

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(adminID, orgName string, ttl time.Duration) (string, error)
}

// Archiver snapshots a namespace before it is dropped.
type Archiver interface {
	Snapshot(ctx context.Context, orgName string, ns namespace.ID) (*archive.Result, error)
}

// Principal is an authenticated admin bound to the organization it administers.
type Principal struct {
	AdminID     string
	OrgName     string
	NamespaceID namespace.ID
}

// CreateResult is returned by Create.
type CreateResult struct {
	OrgName     string       `json:"org_name"`
	NamespaceID namespace.ID `json:"collection_name"`
	AdminID     string       `json:"-"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	AdminID     string `json:"-"`
	OrgName     string `json:"-"`
}

// Manager is the tenant lifecycle manager.
type Manager struct {
	store    docstore.Store
	catalog  registry.Catalog
	hasher   credential.Hasher
	tokens   TokenIssuer
	locker   lock.Locker
	archiver Archiver
	tokenTTL time.Duration
	validate *validator.Validate
	logger   *slog.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocker sets the lock implementation. The default is an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithArchiver enables the snapshot taken before Delete.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithTokenTTL sets the lifetime of tokens issued by Login. Zero issues tokens
// that are already expired.
func WithTokenTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.tokenTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager.
func NewManager(store docstore.Store, catalog registry.Catalog, hasher credential.Hasher, tokens TokenIssuer, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		catalog:  catalog,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: DefaultTokenTTL,
		validate: newValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		m.locker = lock.NewLocal(DefaultLockWait)
	}
	return m
}

func observe(op string, err error) {
	telemetry.TenantOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func orgLockKey(name string) string { return "org:" + namespace.Key(name) }
func nsLockKey(ns namespace.ID) string { return "ns:" + ns.String() }

// acquire takes the given lock keys, recording the wait time.
func (m *Manager) acquire(ctx context.Context, op string, keys ...string) (lock.Release, error) {
	start := time.Now()
	release, err := m.locker.Acquire(ctx, keys...)
	telemetry.LockWaitSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		// Lockers report a cancelled caller as a timeout too; only a wait that
		// ran out while the caller was still there means the org is busy.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, lock.ErrTimeout) {
			return nil, ErrBusy
		}
		return nil, internal("failed to acquire organization lock", err)
	}
	return release, nil
}

// Create registers a new organization and its admin. The namespace itself is not
// created: it materializes on the first write into it.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (res *CreateResult, err error) {
	defer func() { observe("create", err) }()

	if err := checkStruct(m.validate, req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.OrgName)
	email := strings.TrimSpace(req.AdminEmail)
	if err := validateOrgName(name); err != nil {
		return nil, err
	}
	if err := validatePassword(req.AdminPassword); err != nil {
		return nil, err
	}
	ns := namespace.Derive(name)

	release, err := m.acquire(ctx, "create", orgLockKey(name), nsLockKey(ns))
	if err != nil {
		return nil, err
	}
	defer release()

	switch _, err := m.catalog.Lookup(ctx, name); {
	case err == nil:
		return nil, ErrOrgAlreadyExists
	case !errors.Is(err, registry.ErrNotFound):
		return nil, internal("failed to check organization", err)
	}

	digest, err := m.hasher.Hash(req.AdminPassword)
	if err != nil {
		if errors.Is(err, credential.ErrPasswordTooLong) || errors.Is(err, credential.ErrEmptyPassword) {
			return nil, validationf("%v", err)
		}
		return nil, internal("failed to hash password", err)
	}

	admin := &registry.Admin{Email: email, PasswordDigest: digest, OrgName: name}
	if err := m.catalog.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, registry.ErrDuplicateAdmin) {
			return nil, ErrAdminExists
		}
		return nil, internal("failed to create admin", err)
	}

	org, err := m.catalog.Register(ctx, name, ns, admin.ID)
	if err != nil {
		m.rollbackAdmin(ctx, admin)
		if errors.Is(err, registry.ErrDuplicateOrg) {
			return nil, ErrOrgAlreadyExists
		}
		return nil, internal("failed to register organization", err)
	}

	m.logger.Info("organization created", "org_name", org.Name, "namespace", org.NamespaceID, "admin_id", admin.ID)
	return &CreateResult{OrgName: org.Name, NamespaceID: org.NamespaceID, AdminID: admin.ID}, nil
}

// rollbackAdmin removes an admin whose organization could not be registered.
func (m *Manager) rollbackAdmin(ctx context.Context, admin *registry.Admin) {
	if err := m.catalog.DeleteAdmin(context.WithoutCancel(ctx), admin.ID); err != nil {
		m.logger.Error("failed to roll back admin after registration failure",
			"admin_id", admin.ID, "email", admin.Email, "error", err)
	}
}

// Get returns the public record of an organization.
func (m *Manager) Get(ctx context.Context, name string) (*registry.Organization, error) {
	org, err := m.catalog.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internal("failed to look up organization", err)
	}
	return org, nil
}

// List returns every organization ordered by name.
func (m *Manager) List(ctx context.Context) ([]*registry.Organization, error) {
	orgs, err := m.catalog.List(ctx)
	if err != nil {
		return nil, internal("failed to list organizations", err)
	}
	return orgs, nil
}

// Login verifies an admin's password and issues a session token bound to the
// admin's organization. Unknown emails and wrong passwords are indistinguishable.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	defer func() { observe("login", err) }()

	if err := checkStruct(m.validate, req); err != nil {
		return nil, ErrInvalidCredentials
	}

	admin, err := m.catalog.AdminByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			m.hasher.Verify(req.Password, m.dummy())
			return nil, ErrInvalidCredentials
		}
		return nil, internal("failed to look up admin", err)
	}
	if !m.hasher.Verify(req.Password, admin.PasswordDigest) {
		return nil, ErrInvalidCredentials
	}

	token, err := m.tokens.Issue(admin.ID, admin.OrgName, m.tokenTTL)
	if err != nil {
		return nil, internal("failed to issue token", err)
	}
	m.logger.Info("admin logged in", "admin_id", admin.ID, "org_name", admin.OrgName)
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(m.tokenTTL / time.Second),
		AdminID:     admin.ID,
		OrgName:     admin.OrgName,
	}, nil
}

// dummy returns a digest to verify against when the email is unknown, so both
// failure paths cost one hash comparison.
func (m *Manager) dummy() string {
	m.dummyOnce.Do(func() {
		d, err := m.hasher.Hash("orgspace-timing-equalizer")
		if err == nil {
			m.dummyDigest = d
		}
	})
	return m.dummyDigest
}

// Authorize resolves a token's claims to a Principal. The organization named by
// the token must still exist and still be administered by the token's admin.
func (m *Manager) Authorize(ctx context.Context, adminID, orgName string) (*Principal, error) {
	org, err := m.resolve(ctx, adminID, orgName)
	if err != nil {
		return nil, err
	}
	return &Principal{AdminID: adminID, OrgName: org.Name, NamespaceID: org.NamespaceID}, nil
}

// resolve loads the organization for a principal and checks ownership.
func (m *Manager) resolve(ctx context.Context, adminID, orgName string) (*registry.Organization, error) {
	org, err := m.catalog.Lookup(ctx, orgName)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, internal("failed to resolve organization", err)
	}
	if org.AdminID != adminID {
		return nil, ErrUnauthorized
	}
	return org, nil
}

// Ping checks the document store and the registry.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return err
	}
	return m.catalog.Ping(ctx)
}
