// Package platformroles administers platform-wide role assignments. It is the only
// package that receives an rbac.PlatformAssignmentWriter.
package platformroles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/shared"
)

var (
	// ErrNotPlatformAdmin indicates the actor lacks a platform-level admin grant.
	ErrNotPlatformAdmin = fmt.Errorf("%w: platform administration requires admin:manage:all", rbac.ErrForbidden)
	// ErrRoleNotGrantable indicates a role that cannot be assigned platform-wide.
	ErrRoleNotGrantable = errors.New("platformroles: role not grantable")
	// ErrSelfRevoke prevents administrators from locking themselves out.
	ErrSelfRevoke = errors.New("platformroles: cannot revoke own assignment")
	// ErrNotAssigned indicates revoking an assignment that does not exist.
	ErrNotAssigned = errors.New("platformroles: assignment not found")
)

// Store is the write side of platform_role_assignments plus a listing.
type Store interface {
	rbac.PlatformAssignmentWriter
	ListAll(ctx context.Context) ([]rbac.PlatformAssignment, error)
}

// Assignment is the wire form of a platform assignment.
type Assignment struct {
	PrincipalID string    `json:"principal_id"`
	Role        string    `json:"role"`
	GrantedBy   string    `json:"granted_by"`
	GrantedAt   time.Time `json:"granted_at"`
}

func toAssignment(a rbac.PlatformAssignment) Assignment {
	return Assignment{
		PrincipalID: a.Principal.String(),
		Role:        string(a.Role),
		GrantedBy:   a.GrantedBy.String(),
		GrantedAt:   a.GrantedAt,
	}
}

// Service grants and revokes platform roles after re-checking the actor.
type Service struct {
	store  Store
	roles  rbac.RoleLoader
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, roles rbac.RoleLoader, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, roles: roles, audit: audit, logger: logger}
}

// List returns every platform assignment.
func (s *Service) List(ctx context.Context) ([]Assignment, error) {
	rows, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAssignment(row))
	}
	return out, nil
}

// Grant assigns role to target platform-wide.
func (s *Service) Grant(ctx context.Context, actor, target identity.Principal, role rbac.RoleName) (Assignment, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Assignment{}, err
	}
	if err := grantable(role); err != nil {
		return Assignment{}, err
	}
	granted, err := s.store.GrantPlatformRole(ctx, rbac.PlatformAssignment{Principal: target, Role: role, GrantedBy: actor})
	if err != nil {
		return Assignment{}, err
	}
	s.record(ctx, actor, "platform_role.granted", target, role)
	return toAssignment(granted), nil
}

// Revoke removes a platform assignment.
func (s *Service) Revoke(ctx context.Context, actor, target identity.Principal, role rbac.RoleName) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if actor == target && role == rbac.RoleAdmin {
		return ErrSelfRevoke
	}
	if err := s.store.RevokePlatformRole(ctx, target, role); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return ErrNotAssigned
		}
		return err
	}
	s.record(ctx, actor, "platform_role.revoked", target, role)
	return nil
}

// authorize requires admin:manage:all from a source other than tenant membership.
func (s *Service) authorize(ctx context.Context, actor identity.Principal) error {
	grants, err := s.roles.LoadEffectiveRoles(ctx, actor, rbac.EvalContext{})
	if err != nil {
		return err
	}
	decision, err := rbac.Evaluate(grants, rbac.PermAdminManage, rbac.EvalContext{})
	if err != nil {
		return err
	}
	if !decision.Allowed || decision.Source == rbac.SourceTenant {
		return ErrNotPlatformAdmin
	}
	return nil
}

func grantable(role rbac.RoleName) error {
	if role == rbac.RoleSystem {
		return fmt.Errorf("%w: %s", ErrRoleNotGrantable, role)
	}
	if _, err := rbac.LookupRole(role); err != nil {
		return fmt.Errorf("%w: %s", ErrRoleNotGrantable, role)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor identity.Principal, action string, target identity.Principal, role rbac.RoleName) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "platform_role_assignment",
		EntityID: target.String() + "/" + string(role),
		Meta:     map[string]any{"role": string(role)},
	})
	if err != nil {
		s.logger.Error("platform role audit", slog.String("action", action), slog.Any("error", err))
	}
}
