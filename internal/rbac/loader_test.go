package rbac_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
)

func newLoader(store *rbactest.Store, buf *bytes.Buffer) *rbac.Loader {
	var logger *slog.Logger
	if buf != nil {
		logger = slog.New(slog.NewTextHandler(buf, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	return rbac.NewLoader(store, logger, time.Second)
}

func allowed(t *testing.T, grants []rbac.Grant, p rbac.Permission, companyID string) bool {
	t.Helper()
	d, err := rbac.Evaluate(grants, p, rbac.EvalContext{CompanyID: companyID})
	require.NoError(t, err)
	return d.Allowed
}

func TestLoaderUnionsAllSources(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "home")
	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberActive)
	store.SetPlatform(principal, rbac.RoleAdmin)

	grants, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "c1"})
	require.NoError(t, err)

	sources := map[rbac.Source]bool{}
	for _, g := range grants {
		sources[g.Source] = true
	}
	assert.True(t, sources[rbac.SourceGlobal])
	assert.True(t, sources[rbac.SourceTenant])
	assert.True(t, sources[rbac.SourcePlatform])

	assert.True(t, allowed(t, grants, rbac.PermContractReadOwn, "c1"))
	assert.True(t, allowed(t, grants, rbac.PermMembersUpdate, "c1"))
	assert.True(t, allowed(t, grants, rbac.PermAdminManage, "c1"))
}

func TestLoaderSkipsTenantLookupWithoutCompany(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberActive)
	store.TenantErr = errors.New("must not be called")

	grants, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{})
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestLoaderIgnoresInactiveMemberships(t *testing.T) {
	for _, status := range []rbac.MemberStatus{rbac.MemberSuspended, rbac.MemberInvited} {
		store := rbactest.New()
		principal := uuid.New()
		store.SetMember(principal, "C1", rbac.RoleHR, status)

		grants, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "C1"})
		require.NoError(t, err)
		assert.Empty(t, grants, status)

		d, err := rbac.Evaluate(grants, rbac.PermLeaveApproveOrg, rbac.EvalContext{CompanyID: "C1"})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, rbac.ReasonNoRoles, d.Reason)
	}
}

func TestLoaderBindsGlobalOrganizationGrantsToHomeCompany(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleHR, "home")

	loader := newLoader(store, nil)
	grants, err := loader.LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "home"})
	require.NoError(t, err)
	assert.True(t, allowed(t, grants, rbac.PermLeaveApproveOrg, "home"))

	grants, err = loader.LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "other"})
	require.NoError(t, err)
	assert.False(t, allowed(t, grants, rbac.PermLeaveApproveOrg, "other"))
}

func TestLoaderDegradesOnPartialFailure(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")
	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberActive)
	store.TenantErr = errors.New("connection reset")

	var logs bytes.Buffer
	grants, err := newLoader(store, &logs).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "c1"})
	require.NoError(t, err)
	assert.True(t, allowed(t, grants, rbac.PermContractReadOwn, "c1"))
	assert.False(t, allowed(t, grants, rbac.PermMembersUpdate, "c1"))
	assert.Contains(t, logs.String(), "rbac partial role load")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestLoaderFailsWhenEveryLookupFails(t *testing.T) {
	store := rbactest.New()
	boom := errors.New("db down")
	store.GlobalErr, store.TenantErr, store.PlatformErr = boom, boom, boom

	grants, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), uuid.New(), rbac.EvalContext{CompanyID: "c1"})
	require.Error(t, err)
	assert.Nil(t, grants)
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestLoaderNotFoundIsNotAFailure(t *testing.T) {
	store := rbactest.New()
	store.PlatformErr = errors.New("timeout")

	grants, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), uuid.New(), rbac.EvalContext{})
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestLoaderUnknownRoleIsConfigurationError(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, "superuser", "")

	_, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{})
	require.Error(t, err)
	assert.True(t, rbac.IsConfigurationError(err))
}

func TestLoaderRejectsAssignedSystemRole(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetPlatform(principal, rbac.RoleSystem)

	_, err := newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{})
	assert.True(t, rbac.IsConfigurationError(err))
}

func TestLoaderSystemPrincipal(t *testing.T) {
	store := rbactest.New()
	store.GlobalErr = errors.New("must not be called")
	store.PlatformErr = store.GlobalErr

	var logs bytes.Buffer
	ctx, principal := identity.WithSystem(context.Background(), "invite expiry")
	grants, err := newLoader(store, &logs).LoadEffectiveRoles(ctx, principal, rbac.EvalContext{})
	require.NoError(t, err)
	assert.True(t, allowed(t, grants, rbac.PermAdminManage, ""))
	assert.Contains(t, logs.String(), "invite expiry")

	_, err = newLoader(store, nil).LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{})
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
}

func TestLoaderRejectsNilPrincipal(t *testing.T) {
	_, err := newLoader(rbactest.New(), nil).LoadEffectiveRoles(context.Background(), uuid.Nil, rbac.EvalContext{})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestLoaderAbandonsLookupsOnCancel(t *testing.T) {
	store := rbactest.New()
	store.Block = make(chan struct{})
	defer close(store.Block)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := newLoader(store, nil).LoadEffectiveRoles(ctx, uuid.New(), rbac.EvalContext{CompanyID: "c1"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loader did not return after cancellation")
	}
}

func TestLoaderReadsFreshFactsEveryCall(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberActive)
	loader := newLoader(store, nil)

	grants, err := loader.LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "c1"})
	require.NoError(t, err)
	assert.True(t, allowed(t, grants, rbac.PermMembersUpdate, "c1"))

	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberSuspended)
	grants, err = loader.LoadEffectiveRoles(context.Background(), principal, rbac.EvalContext{CompanyID: "c1"})
	require.NoError(t, err)
	assert.False(t, allowed(t, grants, rbac.PermMembersUpdate, "c1"))
}
