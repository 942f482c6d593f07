// Package pgstore persists role facts in PostgreSQL. Each type addresses exactly one
// table so write capabilities can be handed out per table.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// Schema creates the tables read and written by this package.
//
//go:embed schema.sql
var Schema string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies Schema. Statements are idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Facts is the read side of the role fact store handed to rbac.Loader.
type Facts struct {
	users    *Users
	tenants  *TenantRoles
	platform *PlatformAssignments
}

// NewFacts constructs Facts over db.
func NewFacts(db DBTX) *Facts {
	return &Facts{users: NewUsers(db), tenants: NewTenantRoles(db), platform: NewPlatformAssignments(db)}
}

// GlobalRole implements rbac.GlobalRoleReader.
func (f *Facts) GlobalRole(ctx context.Context, principal identity.Principal) (rbac.GlobalRole, error) {
	return f.users.GlobalRole(ctx, principal)
}

// TenantRole implements rbac.TenantRoleReader.
func (f *Facts) TenantRole(ctx context.Context, principal identity.Principal, companyID string) (rbac.TenantRole, error) {
	return f.tenants.TenantRole(ctx, principal, companyID)
}

// PlatformAssignments implements rbac.PlatformAssignmentReader.
func (f *Facts) PlatformAssignments(ctx context.Context, principal identity.Principal) ([]rbac.PlatformAssignment, error) {
	return f.platform.PlatformAssignments(ctx, principal)
}

var _ rbac.FactReader = (*Facts)(nil)

func parseStoredRole(table, raw string) (rbac.RoleName, error) {
	name, err := rbac.ParseRoleName(raw)
	if err != nil {
		return "", &rbac.ConfigurationError{Subject: table + ".role", Err: err}
	}
	return name, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.ErrNotFound
	}
	return err
}
