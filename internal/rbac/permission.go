package rbac

import (
	"fmt"
	"strings"
)

// Scope is the breadth of a permission. Scopes are totally ordered:
// ScopeOwn < ScopeOrganization < ScopeAll.
type Scope uint8

const (
	scopeInvalid Scope = iota
	// ScopeOwn covers records owned by the caller.
	ScopeOwn
	// ScopeOrganization covers every record of one tenant.
	ScopeOrganization
	// ScopeAll covers the whole platform.
	ScopeAll
)

// String renders the canonical scope name.
func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeOrganization:
		return "organization"
	case ScopeAll:
		return "all"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	return s >= ScopeOwn && s <= ScopeAll
}

// Covers reports whether a grant at scope s satisfies a request at scope required.
func (s Scope) Covers(required Scope) bool {
	return s.Valid() && required.Valid() && s >= required
}

// ParseScope accepts canonical names and the aliases used by older route handlers.
func ParseScope(raw string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "own", "self":
		return ScopeOwn, nil
	case "organization", "org", "company":
		return ScopeOrganization, nil
	case "all", "platform", "global":
		return ScopeAll, nil
	default:
		return scopeInvalid, fmt.Errorf("%w: scope %q", ErrMalformedPermission, raw)
	}
}

// Permission is an immutable resource:action:scope triple.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// String renders the canonical "resource:action:scope" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action + ":" + p.Scope.String()
}

// IsZero reports whether p is the zero value.
func (p Permission) IsZero() bool {
	return p == Permission{}
}

// WithScope returns the same capability at another scope.
func (p Permission) WithScope(s Scope) Permission {
	p.Scope = s
	return p
}

func (p Permission) sameCapability(other Permission) bool {
	return p.Resource == other.Resource && p.Action == other.Action
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Only catalog permissions decode.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := Lookup(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission parses the textual form without consulting the catalog. A
// two-segment string such as "admin:manage" denotes a platform-wide capability.
func ParsePermission(raw string) (Permission, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(raw)), ":")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, raw)
		}
	}
	switch len(parts) {
	case 2:
		return Permission{Resource: parts[0], Action: parts[1], Scope: ScopeAll}, nil
	case 3:
		scope, err := ParseScope(parts[2])
		if err != nil {
			return Permission{}, err
		}
		return Permission{Resource: parts[0], Action: parts[1], Scope: scope}, nil
	default:
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, raw)
	}
}

// Lookup parses raw and requires the result to be part of the catalog. Failures are
// configuration errors: they indicate a code or deploy defect.
func Lookup(raw string) (Permission, error) {
	p, err := ParsePermission(raw)
	if err != nil {
		return Permission{}, &ConfigurationError{Subject: raw, Err: err}
	}
	if !InCatalog(p) {
		return Permission{}, &ConfigurationError{Subject: raw, Err: ErrUnknownPermission}
	}
	return p, nil
}

// MustLookup is Lookup for package-level declarations; it panics on unknown strings so
// typos fail at start-up instead of producing silent denies.
func MustLookup(raw string) Permission {
	p, err := Lookup(raw)
	if err != nil {
		panic(err)
	}
	return p
}
