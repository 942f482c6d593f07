package rbac

import "sort"

// CatalogVersion changes whenever an entry is added, removed or renamed so that UI
// clients can detect a stale copy of the catalog.
const CatalogVersion = 3

type definition struct {
	resource string
	action   string
	scopes   []Scope
}

func define(resource, action string, scopes ...Scope) definition {
	return definition{resource: resource, action: action, scopes: scopes}
}

var definitions = []definition{
	define("contract", "read", ScopeOwn, ScopeOrganization, ScopeAll),
	define("contract", "create", ScopeOwn, ScopeOrganization),
	define("contract", "update", ScopeOwn, ScopeOrganization, ScopeAll),
	define("contract", "delete", ScopeOrganization, ScopeAll),
	define("contract", "approve", ScopeOrganization, ScopeAll),

	define("promoter", "read", ScopeOwn, ScopeOrganization, ScopeAll),
	define("promoter", "create", ScopeOrganization),
	define("promoter", "update", ScopeOwn, ScopeOrganization),
	define("promoter", "delete", ScopeOrganization),

	define("employee", "read", ScopeOwn, ScopeOrganization, ScopeAll),
	define("employee", "update", ScopeOwn, ScopeOrganization),

	define("leave", "request", ScopeOwn),
	define("leave", "read", ScopeOwn, ScopeOrganization),
	define("leave", "approve", ScopeOrganization),

	define("approval", "read", ScopeOwn, ScopeOrganization, ScopeAll),
	define("approval", "decide", ScopeOrganization, ScopeAll),

	define("analytics", "read", ScopeOwn, ScopeOrganization, ScopeAll),

	define("notification", "read", ScopeOwn),
	define("notification", "manage", ScopeAll),

	define("company", "read", ScopeOrganization, ScopeAll),
	define("company", "update", ScopeOrganization),
	define("company", "create", ScopeAll),

	define("company_member", "read", ScopeOrganization, ScopeAll),
	define("company_member", "invite", ScopeOrganization),
	define("company_member", "update", ScopeOrganization),
	define("company_member", "remove", ScopeOrganization),
	define("membership", "accept", ScopeOwn),

	define("user", "read", ScopeOwn, ScopeAll),
	define("user", "update", ScopeOwn, ScopeAll),

	define("audit", "read", ScopeOrganization, ScopeAll),

	define("platform_role", "read", ScopeAll),
	define("platform_role", "assign", ScopeAll),
	define("admin", "manage", ScopeAll),
}

var catalogIndex = buildCatalog(definitions)

func buildCatalog(defs []definition) map[string]Permission {
	index := make(map[string]Permission)
	for _, def := range defs {
		for _, scope := range def.scopes {
			p := Permission{Resource: def.resource, Action: def.action, Scope: scope}
			index[p.String()] = p
		}
	}
	return index
}

// InCatalog reports whether p is a defined permission.
func InCatalog(p Permission) bool {
	_, ok := catalogIndex[p.String()]
	return ok
}

// Catalog returns every defined permission sorted by canonical name.
func Catalog() []Permission {
	perms := make([]Permission, 0, len(catalogIndex))
	for _, p := range catalogIndex {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}

// Permissions referenced by route guards.
var (
	PermContractReadOwn  = MustLookup("contract:read:own")
	PermContractReadOrg  = MustLookup("contract:read:organization")
	PermContractReadAll  = MustLookup("contract:read:all")
	PermAnalyticsReadOwn = MustLookup("analytics:read:own")
	PermLeaveApproveOrg  = MustLookup("leave:approve:organization")

	PermMembersRead      = MustLookup("company_member:read:organization")
	PermMembersInvite    = MustLookup("company_member:invite:organization")
	PermMembersUpdate    = MustLookup("company_member:update:organization")
	PermMembersRemove    = MustLookup("company_member:remove:organization")
	PermMembershipAccept = MustLookup("membership:accept:own")

	PermPlatformRoleRead   = MustLookup("platform_role:read:all")
	PermPlatformRoleAssign = MustLookup("platform_role:assign:all")
	PermAdminManage        = MustLookup("admin:manage")
)
