// Package cli implements the operator commands of the workforcehub binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platformroles"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// Exit codes shared by the access commands.
const (
	ExitAllowed       = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitDenied        = 10
)

// CheckOptions defines the flags of the check command.
type CheckOptions struct {
	Principal   string
	CompanyID   string
	Permissions []string
	RequireAll  bool
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// CheckSummary is the JSON output of the check command.
type CheckSummary struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	Permission string   `json:"permission"`
	Source     string   `json:"source,omitempty"`
	Role       string   `json:"role,omitempty"`
	Effective  []string `json:"effective"`
}

// AccessCLI explains authorization decisions from the command line using the same
// loader and evaluator as the HTTP guard.
type AccessCLI struct {
	roles rbac.RoleLoader
}

// NewAccessCLI constructs an AccessCLI.
func NewAccessCLI(roles rbac.RoleLoader) *AccessCLI {
	return &AccessCLI{roles: roles}
}

// CheckCommand evaluates the requested permissions for a principal and prints the
// decision. Denials exit with ExitDenied.
func (c *AccessCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	principal, err := identity.ParsePrincipal(opts.Principal)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: invalid --principal %q\n", opts.Principal)
		return ExitFailure
	}
	if len(opts.Permissions) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "check: at least one --permission is required")
		return ExitFailure
	}
	required := make([]rbac.Permission, 0, len(opts.Permissions))
	for _, raw := range opts.Permissions {
		p, err := rbac.Lookup(strings.TrimSpace(raw))
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
			return ExitConfiguration
		}
		required = append(required, p)
	}

	ec := rbac.EvalContext{CompanyID: strings.TrimSpace(opts.CompanyID)}
	grants, err := c.roles.LoadEffectiveRoles(ctx, principal, ec)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: load roles: %v\n", err)
		if rbac.IsConfigurationError(err) {
			return ExitConfiguration
		}
		return ExitFailure
	}
	var decision rbac.Decision
	if opts.RequireAll {
		decision, err = rbac.EvaluateAll(grants, required, ec)
	} else {
		decision, err = rbac.EvaluateAny(grants, required, ec)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitConfiguration
	}

	summary := CheckSummary{
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		Permission: decision.Permission.String(),
		Source:     string(decision.Source),
		Role:       string(decision.Role),
	}
	for _, p := range rbac.EffectivePermissions(grants, ec) {
		summary.Effective = append(summary.Effective, p.String())
	}
	sort.Strings(summary.Effective)

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderCheckHuman(opts.Stdout, summary)
	}
	if !decision.Allowed {
		return ExitDenied
	}
	return ExitAllowed
}

func renderCheckHuman(out io.Writer, s CheckSummary) {
	verdict := "DENY"
	if s.Allowed {
		verdict = "ALLOW"
	}
	_, _ = fmt.Fprintf(out, "%s %s (%s)\n", verdict, s.Permission, s.Reason)
	if s.Allowed {
		_, _ = fmt.Fprintf(out, "  via role %s from %s\n", s.Role, s.Source)
	}
	_, _ = fmt.Fprintf(out, "  effective permissions: %d\n", len(s.Effective))
	for _, p := range s.Effective {
		_, _ = fmt.Fprintf(out, "    %s\n", p)
	}
}

// CatalogOptions defines the flags of the catalog command.
type CatalogOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CatalogCommand prints the permission catalog and the role table.
func CatalogCommand(opts CatalogOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	doc, err := rbac.BuildCatalogDocument()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "catalog: %v\n", err)
		return ExitConfiguration
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "catalog: encode json: %v\n", err)
			return ExitFailure
		}
		return ExitAllowed
	}
	_, _ = fmt.Fprintf(opts.Stdout, "catalog version %d, %d permissions\n", doc.Version, len(doc.Permissions))
	roles := make([]string, 0, len(doc.Roles))
	for name := range doc.Roles {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	for _, name := range roles {
		_, _ = fmt.Fprintf(opts.Stdout, "%s (%d)\n", name, len(doc.Roles[name]))
		for _, p := range doc.Roles[name] {
			_, _ = fmt.Fprintf(opts.Stdout, "  %s\n", p)
		}
	}
	return ExitAllowed
}

// PlatformGranter grants platform roles on behalf of an actor.
type PlatformGranter interface {
	Grant(ctx context.Context, actor, target identity.Principal, role rbac.RoleName) (platformroles.Assignment, error)
}

// GrantOptions defines the flags of the grant-platform-role command.
type GrantOptions struct {
	Principal string
	Role      string
	Stdout    io.Writer
	Stderr    io.Writer
}

// GrantCommand bootstraps a platform role assignment as the system principal. It is
// the only way to create the first platform administrator.
func GrantCommand(ctx context.Context, granter PlatformGranter, opts GrantOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	target, err := identity.ParsePrincipal(opts.Principal)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "grant-platform-role: invalid --principal %q\n", opts.Principal)
		return ExitFailure
	}
	role, err := rbac.ParseRoleName(opts.Role)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "grant-platform-role: %v\n", err)
		return ExitConfiguration
	}
	ctx, system := identity.WithSystem(ctx, "cli grant-platform-role")
	granted, err := granter.Grant(ctx, system, target, role)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "grant-platform-role: %v\n", err)
		if errors.Is(err, rbac.ErrForbidden) {
			return ExitDenied
		}
		return ExitFailure
	}
	_, _ = fmt.Fprintf(opts.Stdout, "granted %s to %s\n", granted.Role, granted.PrincipalID)
	return ExitAllowed
}
