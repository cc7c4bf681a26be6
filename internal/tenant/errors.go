package tenant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orgspace/orgspace/internal/namespace"
)

// Error taxonomy. Every error returned by Manager wraps exactly one of these;
// transports classify with errors.Is.
var (
	// ErrValidation is malformed input, rejected before any state is touched.
	ErrValidation = errors.New("validation failed")
	// ErrOrgAlreadyExists is returned when a name (or its namespace) is taken.
	ErrOrgAlreadyExists = errors.New("organization name already exists")
	// ErrNotFound is returned when an organization or document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoOpRename is returned when the new name equals the current one.
	ErrNoOpRename = errors.New("new name is same as old name")
	// ErrInvalidCredentials is returned by Login for any authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a principal no longer matches the registry.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBusy is returned when the organization lock could not be acquired in time.
	ErrBusy = errors.New("organization is busy, retry later")
	// ErrInternal is an unexpected store, lock or signing failure.
	ErrInternal = errors.New("internal error")
)

// ErrAdminExists is returned by Create when the admin email is already registered.
var ErrAdminExists = fmt.Errorf("%w: admin email already registered", ErrValidation)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func internal(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, msg, err)
}

// MigrationError reports a rename whose data migration stopped partway. The
// collections in Moved are complete under To and gone from From; Collection was
// being copied and has Copied documents under To. The registry still names From.
type MigrationError struct {
	From       namespace.ID
	To         namespace.ID
	Collection string
	Copied     int
	Moved      []string
	Err        error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %s -> %s failed", e.From, e.To)
	if e.Collection != "" {
		fmt.Fprintf(&b, " at collection %q after %d documents", e.Collection, e.Copied)
	}
	if len(e.Moved) > 0 {
		fmt.Fprintf(&b, " (moved: %s)", strings.Join(e.Moved, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap exposes both the classification and the store error.
func (e *MigrationError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// resultLabel maps an operation outcome to the tenant_operations_total result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInternal):
		return "internal"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrOrgAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoOpRename):
		return "no_op"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "internal"
	}
}
