package pgstore

import (
	"context"
	"fmt"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// PlatformAssignments addresses the platform_role_assignments table only.
type PlatformAssignments struct {
	db DBTX
}

// NewPlatformAssignments constructs a PlatformAssignments store.
func NewPlatformAssignments(db DBTX) *PlatformAssignments {
	return &PlatformAssignments{db: db}
}

const assignmentColumns = `user_id, role, granted_by, granted_at`

func scanAssignment(row interface{ Scan(dest ...any) error }) (rbac.PlatformAssignment, error) {
	var (
		a    rbac.PlatformAssignment
		role string
	)
	if err := row.Scan(&a.Principal, &role, &a.GrantedBy, &a.GrantedAt); err != nil {
		return rbac.PlatformAssignment{}, err
	}
	name, err := parseStoredRole("platform_role_assignments", role)
	if err != nil {
		return rbac.PlatformAssignment{}, err
	}
	a.Role = name
	return a, nil
}

// PlatformAssignments implements rbac.PlatformAssignmentReader.
func (s *PlatformAssignments) PlatformAssignments(ctx context.Context, principal identity.Principal) ([]rbac.PlatformAssignment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+assignmentColumns+` FROM platform_role_assignments WHERE user_id = $1 ORDER BY role`, principal)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// ListAll returns every platform assignment.
func (s *PlatformAssignments) ListAll(ctx context.Context) ([]rbac.PlatformAssignment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+assignmentColumns+` FROM platform_role_assignments ORDER BY granted_at DESC, user_id, role`)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func collectAssignments(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}) ([]rbac.PlatformAssignment, error) {
	defer rows.Close()
	var out []rbac.PlatformAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GrantPlatformRole records an assignment. Granting an existing role refreshes its
// grantor and timestamp.
func (s *PlatformAssignments) GrantPlatformRole(ctx context.Context, assignment rbac.PlatformAssignment) (rbac.PlatformAssignment, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO platform_role_assignments (user_id, role, granted_by)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, role) DO UPDATE
        SET granted_by = EXCLUDED.granted_by, granted_at = NOW()
        RETURNING `+assignmentColumns,
		assignment.Principal, string(assignment.Role), assignment.GrantedBy,
	)
	a, err := scanAssignment(row)
	if err != nil {
		return rbac.PlatformAssignment{}, fmt.Errorf("pgstore: grant platform role: %w", err)
	}
	return a, nil
}

// RevokePlatformRole deletes an assignment. Returns rbac.ErrNotFound if nothing was
// deleted.
func (s *PlatformAssignments) RevokePlatformRole(ctx context.Context, principal identity.Principal, role rbac.RoleName) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM platform_role_assignments WHERE user_id = $1 AND role = $2`, principal, string(role))
	if err != nil {
		return fmt.Errorf("pgstore: revoke platform role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

var (
	_ rbac.PlatformAssignmentReader = (*PlatformAssignments)(nil)
	_ rbac.PlatformAssignmentWriter = (*PlatformAssignments)(nil)
)
