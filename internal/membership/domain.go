// Package membership manages company membership roles. It is reachable only through
// tenant-scoped permissions and therefore writes company_members rows exclusively.
package membership

import (
	"context"
	"errors"
	"time"

	"github.com/workforcehub/workforcehub/internal/rbac"
)

var (
	// ErrNotMember indicates the target has no membership in the company.
	ErrNotMember = errors.New("membership: not a member")
	// ErrAlreadyMember indicates an invitation for an existing active member.
	ErrAlreadyMember = errors.New("membership: already a member")
	// ErrSelfChange indicates an attempt to change one's own membership.
	ErrSelfChange = errors.New("membership: cannot change own membership")
	// ErrRoleNotAssignable indicates a role tenant managers may not hand out.
	ErrRoleNotAssignable = errors.New("membership: role not assignable")
	// ErrInvalidTransition indicates a status change that is not allowed.
	ErrInvalidTransition = errors.New("membership: invalid status transition")
	// ErrInvalidInput indicates malformed identifiers.
	ErrInvalidInput = errors.New("membership: invalid input")
)

// assignableRoles are the roles a tenant manager may grant within a company.
var assignableRoles = map[rbac.RoleName]struct{}{
	rbac.RoleManager:  {},
	rbac.RoleHR:       {},
	rbac.RoleUser:     {},
	rbac.RoleProvider: {},
}

// Assignable reports whether role can be granted through membership management.
func Assignable(role rbac.RoleName) bool {
	_, ok := assignableRoles[role]
	return ok
}

// Store is the capability the service needs. It deliberately embeds no platform
// assignment writer.
type Store interface {
	rbac.TenantRoleReader
	rbac.TenantRoleWriter
	ListMembers(ctx context.Context, companyID string) ([]rbac.TenantRole, error)
	ExpireInvites(ctx context.Context, cutoff time.Time) (int64, error)
}

// Member is the wire form of a membership row.
type Member struct {
	PrincipalID string    `json:"principal_id"`
	CompanyID   string    `json:"company_id"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toMember(tr rbac.TenantRole) Member {
	return Member{
		PrincipalID: tr.Principal.String(),
		CompanyID:   tr.CompanyID,
		Role:        string(tr.Role),
		Status:      string(tr.Status),
		UpdatedAt:   tr.UpdatedAt,
	}
}
