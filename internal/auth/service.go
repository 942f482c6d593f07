package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	audit shared.AuditRecorder
}

// NewService constructs a new Service. audit may be nil.
func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RecordLogin writes a login entry to the audit log.
func (s *Service) RecordLogin(ctx context.Context, principal identity.Principal, ip, ua string) error {
	return s.record(ctx, principal, "auth.login", map[string]any{"ip": ip, "user_agent": ua})
}

// RecordLogout writes a logout entry to the audit log.
func (s *Service) RecordLogout(ctx context.Context, principal identity.Principal) error {
	return s.record(ctx, principal, "auth.logout", nil)
}

func (s *Service) record(ctx context.Context, principal identity.Principal, action string, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal,
		Action:   action,
		Entity:   "user",
		EntityID: principal.String(),
		Meta:     meta,
	})
}
