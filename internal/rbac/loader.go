package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/workforcehub/workforcehub/internal/identity"
)

// DefaultLookupTimeout bounds the fan-out to the role fact sources.
const DefaultLookupTimeout = 2 * time.Second

// RoleLoader produces the effective grants of a principal for one request.
type RoleLoader interface {
	LoadEffectiveRoles(ctx context.Context, principal identity.Principal, ec EvalContext) ([]Grant, error)
}

// Loader merges the three role fact sources into effective grants. It holds no
// per-principal state: every call reads the store again.
type Loader struct {
	facts   FactReader
	logger  *slog.Logger
	timeout time.Duration
}

// NewLoader constructs a Loader reading from facts.
func NewLoader(facts FactReader, logger *slog.Logger, timeout time.Duration) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Loader{facts: facts, logger: logger, timeout: timeout}
}

type lookup struct {
	name string
	err  error
}

// LoadEffectiveRoles fetches the global role, the tenant role for ec.CompanyID and the
// platform assignments concurrently and returns the union of their grants.
//
// A failing source contributes no grants and is logged; when every issued lookup
// fails the result is ErrStoreUnavailable. Cancellation of ctx abandons the lookups
// and returns the context error.
func (s *Loader) LoadEffectiveRoles(ctx context.Context, principal identity.Principal, ec EvalContext) ([]Grant, error) {
	if identity.IsSystem(ctx, principal) {
		reason, _ := identity.SystemReason(ctx)
		s.logger.Info("rbac system principal", slog.String("reason", reason), slog.String("company_id", ec.CompanyID))
		return roleGrants(RoleSystem, SourceSystem, ec.CompanyID)
	}
	if principal == uuid.Nil {
		return nil, identity.ErrUnauthenticated
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		global      GlobalRole
		tenant      TenantRole
		assignments []PlatformAssignment
		globalRes   = lookup{name: "global"}
		tenantRes   = lookup{name: "tenant"}
		platformRes = lookup{name: "platform"}
	)

	var g errgroup.Group
	g.Go(func() error {
		global, globalRes.err = s.facts.GlobalRole(lookupCtx, principal)
		return nil
	})
	if ec.CompanyID != "" {
		g.Go(func() error {
			tenant, tenantRes.err = s.facts.TenantRole(lookupCtx, principal, ec.CompanyID)
			return nil
		})
	}
	g.Go(func() error {
		assignments, platformRes.err = s.facts.PlatformAssignments(lookupCtx, principal)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issued := []lookup{globalRes, platformRes}
	if ec.CompanyID != "" {
		issued = append(issued, tenantRes)
	}
	var failures []error
	for _, l := range issued {
		if IsConfigurationError(l.err) {
			return nil, l.err
		}
		if l.err != nil && !errors.Is(l.err, ErrNotFound) {
			failures = append(failures, fmt.Errorf("%s: %w", l.name, l.err))
		}
	}
	if len(failures) == len(issued) {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, errors.Join(failures...))
	}
	if len(failures) > 0 {
		s.logger.Warn("rbac partial role load",
			slog.String("principal", principal.String()),
			slog.String("company_id", ec.CompanyID),
			slog.Any("error", errors.Join(failures...)),
		)
	}

	var grants []Grant
	if globalRes.err == nil {
		got, err := roleGrants(global.Role, SourceGlobal, global.CompanyID)
		if err != nil {
			return nil, err
		}
		grants = append(grants, got...)
	}
	if ec.CompanyID != "" && tenantRes.err == nil && tenant.Status == MemberActive && tenant.CompanyID == ec.CompanyID {
		got, err := tenantGrants(tenant)
		if err != nil {
			return nil, err
		}
		grants = append(grants, got...)
	}
	if platformRes.err == nil {
		for _, a := range assignments {
			if a.Role == RoleSystem {
				return nil, &ConfigurationError{Subject: "platform assignment", Err: fmt.Errorf("%w: system role cannot be assigned", ErrUnknownRole)}
			}
			got, err := roleGrants(a.Role, SourcePlatform, "")
			if err != nil {
				return nil, err
			}
			grants = append(grants, got...)
		}
	}
	return grants, nil
}

// EffectivePermissions lists what principal may do in ec, for UI gating.
func (s *Loader) EffectivePermissions(ctx context.Context, principal identity.Principal, ec EvalContext) ([]Permission, error) {
	grants, err := s.LoadEffectiveRoles(ctx, principal, ec)
	if err != nil {
		return nil, err
	}
	return EffectivePermissions(grants, ec), nil
}

func roleGrants(name RoleName, source Source, companyID string) ([]Grant, error) {
	role, err := LookupRole(name)
	if err != nil {
		return nil, err
	}
	grants := make([]Grant, 0, len(role.Grants))
	for _, p := range role.Grants {
		g := Grant{Permission: p, Role: role.Name, Source: source}
		if p.Scope == ScopeOrganization {
			g.CompanyID = companyID
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// tenantGrants binds every grant of a membership role to its company. Scopes broader
// than organization are clamped: membership never yields platform-wide capability.
func tenantGrants(tr TenantRole) ([]Grant, error) {
	role, err := LookupRole(tr.Role)
	if err != nil {
		return nil, err
	}
	grants := make([]Grant, 0, len(role.Grants))
	for _, p := range role.Grants {
		if p.Scope == ScopeAll {
			clamped := p.WithScope(ScopeOrganization)
			if !InCatalog(clamped) {
				continue
			}
			p = clamped
		}
		grants = append(grants, Grant{Permission: p, Role: role.Name, Source: SourceTenant, CompanyID: tr.CompanyID})
	}
	return grants, nil
}
