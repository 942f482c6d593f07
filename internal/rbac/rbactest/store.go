// Package rbactest provides an in-memory role fact store for tests.
package rbactest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

type memberKey struct {
	principal identity.Principal
	companyID string
}

// Store keeps role facts in memory. Failure fields make the matching lookup fail.
type Store struct {
	mu        sync.Mutex
	globals   map[identity.Principal]rbac.GlobalRole
	members   map[memberKey]rbac.TenantRole
	platform  map[identity.Principal][]rbac.PlatformAssignment
	now       func() time.Time
	GlobalErr error
	TenantErr error
	// PlatformErr fails platform reads.
	PlatformErr error
	// Block, when set, makes every read wait until it is closed or ctx ends.
	Block chan struct{}

	platformWrites int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		globals:  make(map[identity.Principal]rbac.GlobalRole),
		members:  make(map[memberKey]rbac.TenantRole),
		platform: make(map[identity.Principal][]rbac.PlatformAssignment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetGlobal seeds a global role.
func (s *Store) SetGlobal(principal identity.Principal, role rbac.RoleName, companyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[principal] = rbac.GlobalRole{Principal: principal, Role: role, CompanyID: companyID}
}

// SetMember seeds a membership row, bypassing the writer interface.
func (s *Store) SetMember(principal identity.Principal, companyID string, role rbac.RoleName, status rbac.MemberStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{principal, companyID}] = rbac.TenantRole{
		Principal: principal, CompanyID: companyID, Role: role, Status: status, UpdatedAt: s.now(),
	}
}

// SetPlatform seeds a platform assignment without counting it as a write.
func (s *Store) SetPlatform(principal identity.Principal, role rbac.RoleName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platform[principal] = append(s.platform[principal], rbac.PlatformAssignment{
		Principal: principal, Role: role, GrantedAt: s.now(),
	})
}

// PlatformWrites counts grants and revokes made through the writer interface.
func (s *Store) PlatformWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platformWrites
}

// Snapshot returns a copy of every platform assignment.
func (s *Store) Snapshot() map[identity.Principal][]rbac.PlatformAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[identity.Principal][]rbac.PlatformAssignment, len(s.platform))
	for k, v := range s.platform {
		out[k] = append([]rbac.PlatformAssignment(nil), v...)
	}
	return out
}

func (s *Store) wait(ctx context.Context) error {
	if s.Block == nil {
		return nil
	}
	select {
	case <-s.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GlobalRole implements rbac.GlobalRoleReader.
func (s *Store) GlobalRole(ctx context.Context, principal identity.Principal) (rbac.GlobalRole, error) {
	if err := s.wait(ctx); err != nil {
		return rbac.GlobalRole{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GlobalErr != nil {
		return rbac.GlobalRole{}, s.GlobalErr
	}
	g, ok := s.globals[principal]
	if !ok {
		return rbac.GlobalRole{}, rbac.ErrNotFound
	}
	return g, nil
}

// TenantRole implements rbac.TenantRoleReader.
func (s *Store) TenantRole(ctx context.Context, principal identity.Principal, companyID string) (rbac.TenantRole, error) {
	if err := s.wait(ctx); err != nil {
		return rbac.TenantRole{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TenantErr != nil {
		return rbac.TenantRole{}, s.TenantErr
	}
	tr, ok := s.members[memberKey{principal, companyID}]
	if !ok {
		return rbac.TenantRole{}, rbac.ErrNotFound
	}
	return tr, nil
}

// PlatformAssignments implements rbac.PlatformAssignmentReader.
func (s *Store) PlatformAssignments(ctx context.Context, principal identity.Principal) ([]rbac.PlatformAssignment, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlatformErr != nil {
		return nil, s.PlatformErr
	}
	return append([]rbac.PlatformAssignment(nil), s.platform[principal]...), nil
}

// SetTenantRole implements rbac.TenantRoleWriter.
func (s *Store) SetTenantRole(_ context.Context, principal identity.Principal, companyID string, role rbac.RoleName, status rbac.MemberStatus) (rbac.TenantRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := rbac.TenantRole{Principal: principal, CompanyID: companyID, Role: role, Status: status, UpdatedAt: s.now()}
	s.members[memberKey{principal, companyID}] = tr
	return tr, nil
}

// RemoveTenantRole implements rbac.TenantRoleWriter.
func (s *Store) RemoveTenantRole(_ context.Context, principal identity.Principal, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{principal, companyID}
	if _, ok := s.members[key]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.members, key)
	return nil
}

// ListMembers returns the members of companyID ordered by principal.
func (s *Store) ListMembers(_ context.Context, companyID string) ([]rbac.TenantRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.TenantRole
	for k, tr := range s.members {
		if k.companyID == companyID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal.String() < out[j].Principal.String() })
	return out, nil
}

// ExpireInvites removes invitations last updated before cutoff.
func (s *Store) ExpireInvites(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, tr := range s.members {
		if tr.Status == rbac.MemberInvited && tr.UpdatedAt.Before(cutoff) {
			delete(s.members, k)
			n++
		}
	}
	return n, nil
}

// Age moves the UpdatedAt of a membership row back by d.
func (s *Store) Age(principal identity.Principal, companyID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{principal, companyID}
	if tr, ok := s.members[key]; ok {
		tr.UpdatedAt = tr.UpdatedAt.Add(-d)
		s.members[key] = tr
	}
}

// GrantPlatformRole implements rbac.PlatformAssignmentWriter.
func (s *Store) GrantPlatformRole(_ context.Context, a rbac.PlatformAssignment) (rbac.PlatformAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platformWrites++
	a.GrantedAt = s.now()
	current := s.platform[a.Principal]
	for i, existing := range current {
		if existing.Role == a.Role {
			current[i] = a
			return a, nil
		}
	}
	s.platform[a.Principal] = append(current, a)
	return a, nil
}

// RevokePlatformRole implements rbac.PlatformAssignmentWriter.
func (s *Store) RevokePlatformRole(_ context.Context, principal identity.Principal, role rbac.RoleName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.platform[principal]
	for i, existing := range current {
		if existing.Role == role {
			s.platformWrites++
			s.platform[principal] = append(current[:i], current[i+1:]...)
			return nil
		}
	}
	return rbac.ErrNotFound
}

// ListAll returns every platform assignment.
func (s *Store) ListAll(context.Context) ([]rbac.PlatformAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.PlatformAssignment
	for _, list := range s.platform {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Principal != out[j].Principal {
			return out[i].Principal.String() < out[j].Principal.String()
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

var (
	_ rbac.FactReader               = (*Store)(nil)
	_ rbac.TenantRoleWriter         = (*Store)(nil)
	_ rbac.PlatformAssignmentWriter = (*Store)(nil)
)
