package rbac

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RoleName identifies a role in the static role catalog.
type RoleName string

// Catalog roles.
const (
	RoleAdmin    RoleName = "admin"
	RoleManager  RoleName = "manager"
	RoleHR       RoleName = "hr"
	RoleUser     RoleName = "user"
	RoleProvider RoleName = "provider"
	// RoleSystem is held only by the system principal and grants the whole catalog.
	RoleSystem RoleName = "system"
)

// Role is a named bundle of permissions.
type Role struct {
	Name   RoleName
	Grants []Permission
}

// Has reports whether the role lists p verbatim.
func (r Role) Has(p Permission) bool {
	for _, g := range r.Grants {
		if g == p {
			return true
		}
	}
	return false
}

// roleDefinitions is kept as text so a typo surfaces as a configuration error when the
// catalog is validated instead of as a silently missing grant.
var roleDefinitions = map[RoleName][]string{
	RoleAdmin: {
		"admin:manage:all",
		"platform_role:read:all",
		"platform_role:assign:all",
		"contract:read:all",
		"contract:update:all",
		"contract:delete:all",
		"contract:approve:all",
		"promoter:read:all",
		"employee:read:all",
		"approval:read:all",
		"approval:decide:all",
		"analytics:read:all",
		"notification:manage:all",
		"company:read:all",
		"company:create:all",
		"company_member:read:all",
		"user:read:all",
		"user:update:all",
		"audit:read:all",
	},
	RoleManager: {
		"contract:read:organization",
		"contract:create:organization",
		"contract:update:organization",
		"contract:delete:organization",
		"contract:approve:organization",
		"promoter:read:organization",
		"promoter:create:organization",
		"promoter:update:organization",
		"promoter:delete:organization",
		"employee:read:organization",
		"employee:update:organization",
		"leave:read:organization",
		"leave:approve:organization",
		"approval:read:organization",
		"approval:decide:organization",
		"analytics:read:organization",
		"company:read:organization",
		"company:update:organization",
		"company_member:read:organization",
		"company_member:invite:organization",
		"company_member:update:organization",
		"company_member:remove:organization",
		"audit:read:organization",
		"membership:accept:own",
		"notification:read:own",
		"user:read:own",
		"user:update:own",
	},
	RoleHR: {
		"employee:read:organization",
		"employee:update:organization",
		"promoter:read:organization",
		"promoter:update:organization",
		"leave:read:organization",
		"leave:approve:organization",
		"approval:read:organization",
		"contract:read:organization",
		"company_member:read:organization",
		"membership:accept:own",
		"notification:read:own",
		"user:read:own",
		"user:update:own",
	},
	RoleUser: {
		"contract:read:own",
		"contract:create:own",
		"contract:update:own",
		"leave:request:own",
		"leave:read:own",
		"approval:read:own",
		"analytics:read:own",
		"employee:read:own",
		"membership:accept:own",
		"notification:read:own",
		"user:read:own",
		"user:update:own",
	},
	RoleProvider: {
		"contract:read:own",
		"promoter:read:own",
		"promoter:update:own",
		"analytics:read:own",
		"membership:accept:own",
		"notification:read:own",
		"user:read:own",
		"user:update:own",
	},
}

var (
	rolesOnce sync.Once
	roles     map[RoleName]Role
	rolesErr  error
)

func loadRoles() (map[RoleName]Role, error) {
	rolesOnce.Do(func() {
		roles, rolesErr = buildRoles(roleDefinitions)
	})
	return roles, rolesErr
}

func buildRoles(defs map[RoleName][]string) (map[RoleName]Role, error) {
	built := make(map[RoleName]Role, len(defs)+1)
	for name, raw := range defs {
		if name == RoleSystem {
			return nil, &ConfigurationError{Subject: string(name), Err: fmt.Errorf("%w: system role is derived", ErrUnknownRole)}
		}
		role := Role{Name: name, Grants: make([]Permission, 0, len(raw))}
		for _, entry := range raw {
			p, err := Lookup(entry)
			if err != nil {
				return nil, &ConfigurationError{Subject: fmt.Sprintf("role %s", name), Err: err}
			}
			role.Grants = append(role.Grants, p)
		}
		built[name] = role
	}
	built[RoleSystem] = Role{Name: RoleSystem, Grants: Catalog()}
	return built, nil
}

// ValidateRoleCatalog checks that every role references catalog permissions only.
// Servers call it before accepting traffic.
func ValidateRoleCatalog() error {
	_, err := loadRoles()
	return err
}

// LookupRole returns the catalog definition for name.
func LookupRole(name RoleName) (Role, error) {
	all, err := loadRoles()
	if err != nil {
		return Role{}, err
	}
	role, ok := all[name]
	if !ok {
		return Role{}, &ConfigurationError{Subject: string(name), Err: ErrUnknownRole}
	}
	return role, nil
}

// Roles lists the catalog roles sorted by name.
func Roles() ([]Role, error) {
	all, err := loadRoles()
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(all))
	for _, role := range all {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ParseRoleName normalises stored role names, mapping the legacy "owner" and
// "client" labels onto their catalog equivalents.
func ParseRoleName(raw string) (RoleName, error) {
	name := RoleName(strings.ToLower(strings.TrimSpace(raw)))
	switch name {
	case "owner":
		name = RoleManager
	case "client":
		name = RoleUser
	}
	if _, ok := roleDefinitions[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return name, nil
}
