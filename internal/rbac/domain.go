package rbac

import (
	"context"
	"time"

	"github.com/workforcehub/workforcehub/internal/identity"
)

// MemberStatus gates whether a tenant role is currently effective.
type MemberStatus string

// Tenant membership states.
const (
	MemberActive    MemberStatus = "active"
	MemberInvited   MemberStatus = "invited"
	MemberSuspended MemberStatus = "suspended"
)

// Valid reports whether s is a known membership status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberInvited, MemberSuspended:
		return true
	}
	return false
}

// GlobalRole is the legacy account-wide role stored on the user record. CompanyID is
// the user's home tenant and binds organization-scoped grants of the role.
type GlobalRole struct {
	Principal identity.Principal
	Role      RoleName
	CompanyID string
}

// TenantRole is a principal's role within one company.
type TenantRole struct {
	Principal identity.Principal
	CompanyID string
	Role      RoleName
	Status    MemberStatus
	UpdatedAt time.Time
}

// PlatformAssignment is an audited platform-wide role grant.
type PlatformAssignment struct {
	Principal identity.Principal
	Role      RoleName
	GrantedBy identity.Principal
	GrantedAt time.Time
}

// Source names the fact table a grant was derived from.
type Source string

// Grant sources.
const (
	SourceGlobal   Source = "global"
	SourceTenant   Source = "tenant"
	SourcePlatform Source = "platform"
	SourceSystem   Source = "system"
)

// Grant is one effective permission of a principal. Organization-scoped grants are
// bound to CompanyID and never satisfy a request for another tenant.
type Grant struct {
	Permission Permission
	Role       RoleName
	Source     Source
	CompanyID  string
}

// EvalContext carries request facts relevant to evaluation.
type EvalContext struct {
	CompanyID string
}

// GlobalRoleReader reads the legacy per-user role. It returns ErrNotFound when the
// principal has none.
type GlobalRoleReader interface {
	GlobalRole(ctx context.Context, principal identity.Principal) (GlobalRole, error)
}

// TenantRoleReader reads company membership roles. It returns ErrNotFound when the
// principal is not a member of the company.
type TenantRoleReader interface {
	TenantRole(ctx context.Context, principal identity.Principal, companyID string) (TenantRole, error)
}

// PlatformAssignmentReader reads platform-wide role assignments.
type PlatformAssignmentReader interface {
	PlatformAssignments(ctx context.Context, principal identity.Principal) ([]PlatformAssignment, error)
}

// FactReader is the read side of the role fact store consumed by the loader.
type FactReader interface {
	GlobalRoleReader
	TenantRoleReader
	PlatformAssignmentReader
}

// TenantRoleWriter is the only write capability handed to tenant-scoped code. It
// addresses company membership rows and nothing else.
type TenantRoleWriter interface {
	SetTenantRole(ctx context.Context, principal identity.Principal, companyID string, role RoleName, status MemberStatus) (TenantRole, error)
	RemoveTenantRole(ctx context.Context, principal identity.Principal, companyID string) error
}

// PlatformAssignmentWriter mutates platform-wide assignments. Only platform
// administration code receives it.
type PlatformAssignmentWriter interface {
	GrantPlatformRole(ctx context.Context, assignment PlatformAssignment) (PlatformAssignment, error)
	RevokePlatformRole(ctx context.Context, principal identity.Principal, role RoleName) error
}
