package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// TenantRoles addresses the company_members table only. It is the write capability
// handed to tenant-scoped code.
type TenantRoles struct {
	db DBTX
}

// NewTenantRoles constructs a TenantRoles store.
func NewTenantRoles(db DBTX) *TenantRoles {
	return &TenantRoles{db: db}
}

const memberColumns = `user_id, company_id, role, status, updated_at`

func scanMember(row interface{ Scan(dest ...any) error }) (rbac.TenantRole, error) {
	var (
		tr     rbac.TenantRole
		role   string
		status string
	)
	if err := row.Scan(&tr.Principal, &tr.CompanyID, &role, &status, &tr.UpdatedAt); err != nil {
		return rbac.TenantRole{}, err
	}
	name, err := parseStoredRole("company_members", role)
	if err != nil {
		return rbac.TenantRole{}, err
	}
	tr.Role = name
	tr.Status = rbac.MemberStatus(status)
	if !tr.Status.Valid() {
		return rbac.TenantRole{}, &rbac.ConfigurationError{Subject: "company_members.status", Err: fmt.Errorf("unknown status %q", status)}
	}
	return tr, nil
}

// TenantRole implements rbac.TenantRoleReader.
func (s *TenantRoles) TenantRole(ctx context.Context, principal identity.Principal, companyID string) (rbac.TenantRole, error) {
	row := s.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM company_members WHERE user_id = $1 AND company_id = $2`, principal, companyID)
	tr, err := scanMember(row)
	if err != nil {
		return rbac.TenantRole{}, notFound(err)
	}
	return tr, nil
}

// SetTenantRole upserts one membership row.
func (s *TenantRoles) SetTenantRole(ctx context.Context, principal identity.Principal, companyID string, role rbac.RoleName, status rbac.MemberStatus) (rbac.TenantRole, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO company_members (user_id, company_id, role, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (company_id, user_id) DO UPDATE
        SET role = EXCLUDED.role, status = EXCLUDED.status, updated_at = NOW()
        RETURNING `+memberColumns,
		principal, companyID, string(role), string(status),
	)
	tr, err := scanMember(row)
	if err != nil {
		return rbac.TenantRole{}, fmt.Errorf("pgstore: set tenant role: %w", err)
	}
	return tr, nil
}

// RemoveTenantRole deletes one membership row. Returns rbac.ErrNotFound if nothing
// was deleted.
func (s *TenantRoles) RemoveTenantRole(ctx context.Context, principal identity.Principal, companyID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM company_members WHERE user_id = $1 AND company_id = $2`, principal, companyID)
	if err != nil {
		return fmt.Errorf("pgstore: remove tenant role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// ListMembers returns the members of a company ordered by most recent change.
func (s *TenantRoles) ListMembers(ctx context.Context, companyID string) ([]rbac.TenantRole, error) {
	rows, err := s.db.Query(ctx, `SELECT `+memberColumns+` FROM company_members WHERE company_id = $1 ORDER BY updated_at DESC, user_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []rbac.TenantRole
	for rows.Next() {
		tr, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, tr)
	}
	return members, rows.Err()
}

// ExpireInvites deletes invitations last touched before cutoff and reports how many
// were removed.
func (s *TenantRoles) ExpireInvites(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM company_members WHERE status = 'invited' AND updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pgstore: expire invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ rbac.TenantRoleReader = (*TenantRoles)(nil)
	_ rbac.TenantRoleWriter = (*TenantRoles)(nil)
)
