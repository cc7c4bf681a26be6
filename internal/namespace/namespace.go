// Package namespace owns the mapping from an organization name to the storage
// namespace that holds its collections.
//
// Every namespace identifier in the service is produced by Derive. Call sites never
// build "org_..." strings themselves, so the mapping rule can change in exactly one
// place and is testable without a document store.
package namespace

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Prefix is prepended to every derived tenant namespace.
const Prefix = "org_"

// MasterID is the default namespace holding the organization catalog. It never
// carries Prefix, so no organization name can derive it.
const MasterID ID = "master_db"

const (
	// MinNameLength is the minimum organization name length in runes after trimming.
	MinNameLength = 3
	// MaxNameLength keeps Prefix+name below MongoDB's 63-byte database-name limit
	// for the common ASCII case.
	MaxNameLength = 48
	// maxIDBytes is the hard limit MongoDB applies to database names.
	maxIDBytes = 63
)

var (
	// ErrNameTooShort is returned when a trimmed name has fewer than MinNameLength runes.
	ErrNameTooShort = errors.New("organization name is too short")
	// ErrNameTooLong is returned when a trimmed name exceeds MaxNameLength runes
	// or its derived identifier would not fit the store's limit.
	ErrNameTooLong = errors.New("organization name is too long")
	// ErrNameInvalidChars is returned when a name contains characters that cannot
	// appear in a namespace identifier.
	ErrNameInvalidChars = errors.New("organization name may only contain letters, digits, spaces, '-' and '_'")
)

// ID identifies a tenant namespace in the document store.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// IsTenant reports whether id was produced by Derive.
func (id ID) IsTenant() bool {
	return strings.HasPrefix(string(id), Prefix) && len(id) > len(Prefix)
}

// Derive returns the namespace identifier for an organization name:
// trimmed, lowercased, each whitespace rune replaced with '_', prefixed with Prefix.
//
//	Derive("Acme Corp") == "org_acme_corp"
func Derive(orgName string) ID {
	var b strings.Builder
	b.Grow(len(Prefix) + len(orgName))
	b.WriteString(Prefix)
	for _, r := range strings.ToLower(strings.TrimSpace(orgName)) {
		if unicode.IsSpace(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return ID(b.String())
}

// Key returns the case-insensitive comparison key for an organization name.
// Two names with the same Key are the same organization for uniqueness purposes.
func Key(orgName string) string {
	return strings.ToLower(strings.TrimSpace(orgName))
}

// SameName reports whether a and b name the same organization.
func SameName(a, b string) bool {
	return Key(a) == Key(b)
}

// ValidateOrgName checks that name can be registered and mapped to a namespace.
func ValidateOrgName(name string) error {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n < MinNameLength {
		return fmt.Errorf("%w: minimum %d characters", ErrNameTooShort, MinNameLength)
	}
	if n > MaxNameLength {
		return fmt.Errorf("%w: maximum %d characters", ErrNameTooLong, MaxNameLength)
	}
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == ' ', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrNameInvalidChars, r)
		}
	}
	if len(Derive(trimmed)) > maxIDBytes {
		return fmt.Errorf("%w: namespace identifier exceeds %d bytes", ErrNameTooLong, maxIDBytes)
	}
	return nil
}
