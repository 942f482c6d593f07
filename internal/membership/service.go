package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/shared"
)

// DefaultInviteTTL is how long an unanswered invitation survives.
const DefaultInviteTTL = 7 * 24 * time.Hour

// Service implements the membership lifecycle. Callers authorize requests before
// invoking it.
type Service struct {
	store     Store
	audit     shared.AuditRecorder
	logger    *slog.Logger
	inviteTTL time.Duration
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, audit shared.AuditRecorder, logger *slog.Logger, inviteTTL time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	return &Service{store: store, audit: audit, logger: logger, inviteTTL: inviteTTL, now: time.Now}
}

// List returns the members of a company.
func (s *Service) List(ctx context.Context, companyID string) ([]Member, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, ErrInvalidInput
	}
	rows, err := s.store.ListMembers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, toMember(row))
	}
	return members, nil
}

// UpdateMemberRole changes the role of an existing member and keeps its status.
func (s *Service) UpdateMemberRole(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal, role rbac.RoleName) (Member, error) {
	if err := s.checkTarget(actor, companyID, target); err != nil {
		return Member{}, err
	}
	if !Assignable(role) {
		return Member{}, fmt.Errorf("%w: %s", ErrRoleNotAssignable, role)
	}
	current, err := s.current(ctx, companyID, target)
	if err != nil {
		return Member{}, err
	}
	updated, err := s.store.SetTenantRole(ctx, target, companyID, role, current.Status)
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, actor, "membership.role_updated", companyID, target, map[string]any{
		"from": string(current.Role),
		"to":   string(role),
	})
	return toMember(updated), nil
}

// Invite creates or refreshes an invitation. Active and suspended members cannot be
// re-invited.
func (s *Service) Invite(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal, role rbac.RoleName) (Member, error) {
	if err := s.checkTarget(actor, companyID, target); err != nil {
		return Member{}, err
	}
	if !Assignable(role) {
		return Member{}, fmt.Errorf("%w: %s", ErrRoleNotAssignable, role)
	}
	current, err := s.store.TenantRole(ctx, target, companyID)
	switch {
	case err == nil && current.Status != rbac.MemberInvited:
		return Member{}, ErrAlreadyMember
	case err != nil && !errors.Is(err, rbac.ErrNotFound):
		return Member{}, err
	}
	invited, err := s.store.SetTenantRole(ctx, target, companyID, role, rbac.MemberInvited)
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, actor, "membership.invited", companyID, target, map[string]any{"role": string(role)})
	return toMember(invited), nil
}

// Accept activates the caller's own pending invitation.
func (s *Service) Accept(ctx context.Context, principal identity.Principal, companyID string) (Member, error) {
	if strings.TrimSpace(companyID) == "" {
		return Member{}, ErrInvalidInput
	}
	current, err := s.current(ctx, companyID, principal)
	if err != nil {
		return Member{}, err
	}
	if current.Status != rbac.MemberInvited {
		return Member{}, fmt.Errorf("%w: %s to active", ErrInvalidTransition, current.Status)
	}
	if s.now().Sub(current.UpdatedAt) > s.inviteTTL {
		return Member{}, fmt.Errorf("%w: invitation expired", ErrInvalidTransition)
	}
	accepted, err := s.store.SetTenantRole(ctx, principal, companyID, current.Role, rbac.MemberActive)
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, principal, "membership.accepted", companyID, principal, nil)
	return toMember(accepted), nil
}

// Suspend deactivates an active member without removing the row.
func (s *Service) Suspend(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal) (Member, error) {
	return s.transition(ctx, actor, companyID, target, rbac.MemberActive, rbac.MemberSuspended, "membership.suspended")
}

// Reinstate reactivates a suspended member.
func (s *Service) Reinstate(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal) (Member, error) {
	return s.transition(ctx, actor, companyID, target, rbac.MemberSuspended, rbac.MemberActive, "membership.reinstated")
}

// Remove deletes a membership row.
func (s *Service) Remove(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal) error {
	if err := s.checkTarget(actor, companyID, target); err != nil {
		return err
	}
	if err := s.store.RemoveTenantRole(ctx, target, companyID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	s.record(ctx, actor, "membership.removed", companyID, target, nil)
	return nil
}

// ExpireInvites deletes invitations older than the configured TTL. It must run as
// the system principal.
func (s *Service) ExpireInvites(ctx context.Context, actor identity.Principal) (int64, error) {
	if !identity.IsSystem(ctx, actor) {
		return 0, rbac.ErrForbidden
	}
	cutoff := s.now().Add(-s.inviteTTL)
	n, err := s.store.ExpireInvites(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		reason, _ := identity.SystemReason(ctx)
		s.logger.Info("membership invites expired", slog.Int64("count", n), slog.String("reason", reason))
	}
	return n, nil
}

func (s *Service) transition(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal, from, to rbac.MemberStatus, action string) (Member, error) {
	if err := s.checkTarget(actor, companyID, target); err != nil {
		return Member{}, err
	}
	current, err := s.current(ctx, companyID, target)
	if err != nil {
		return Member{}, err
	}
	if current.Status != from {
		return Member{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}
	updated, err := s.store.SetTenantRole(ctx, target, companyID, current.Role, to)
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, actor, action, companyID, target, nil)
	return toMember(updated), nil
}

func (s *Service) checkTarget(actor identity.Principal, companyID string, target identity.Principal) error {
	if strings.TrimSpace(companyID) == "" || target == (identity.Principal{}) {
		return ErrInvalidInput
	}
	if actor == target {
		return ErrSelfChange
	}
	return nil
}

func (s *Service) current(ctx context.Context, companyID string, target identity.Principal) (rbac.TenantRole, error) {
	tr, err := s.store.TenantRole(ctx, target, companyID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return rbac.TenantRole{}, ErrNotMember
		}
		return rbac.TenantRole{}, err
	}
	return tr, nil
}

func (s *Service) record(ctx context.Context, actor identity.Principal, action, companyID string, target identity.Principal, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["company_id"] = companyID
	entry := shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "company_member",
		EntityID: companyID + "/" + target.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("membership audit", slog.String("action", action), slog.Any("error", err))
	}
}
