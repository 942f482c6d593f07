package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// Users reads the legacy global role column. It has no write methods.
type Users struct {
	db DBTX
}

// NewUsers constructs a Users reader.
func NewUsers(db DBTX) *Users {
	return &Users{db: db}
}

// GlobalRole returns the role stored on an active user. Users without a role, and
// inactive users, have no global role.
func (u *Users) GlobalRole(ctx context.Context, principal identity.Principal) (rbac.GlobalRole, error) {
	var (
		role      pgtype.Text
		companyID pgtype.Text
	)
	err := u.db.QueryRow(ctx, `SELECT role, company_id FROM users WHERE id = $1 AND is_active`, principal).Scan(&role, &companyID)
	if err != nil {
		return rbac.GlobalRole{}, notFound(err)
	}
	if !role.Valid || role.String == "" {
		return rbac.GlobalRole{}, rbac.ErrNotFound
	}
	name, err := parseStoredRole("users", role.String)
	if err != nil {
		return rbac.GlobalRole{}, err
	}
	return rbac.GlobalRole{Principal: principal, Role: name, CompanyID: companyID.String}, nil
}

var _ rbac.GlobalRoleReader = (*Users)(nil)
