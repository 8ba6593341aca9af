package access

import (
	"context"
	"testing"
)

func TestRoleAuthorizer_Authorize(t *testing.T) {
	authz := NewRoleAuthorizer()

	withRoles := func(tenant string, roles ...string) context.Context {
		return WithPrincipal(context.Background(), Principal{UserID: "u1", TenantID: tenant, Roles: roles})
	}

	tests := []struct {
		name    string
		ctx     context.Context
		perm    Permission
		tenant  string
		wantErr error
	}{
		{name: "no principal", ctx: context.Background(), perm: PermViewReadiness, tenant: "t1", wantErr: ErrUnauthenticated},
		{name: "other tenant", ctx: withRoles("t2", RoleAdminOwner), perm: PermViewReadiness, tenant: "t1", wantErr: ErrForbidden},
		{name: "no roles", ctx: withRoles("t1"), perm: PermViewReadiness, tenant: "t1", wantErr: ErrForbidden},
		{name: "leader can view", ctx: withRoles("t1", RoleLeader), perm: PermViewReadiness, tenant: "t1"},
		{name: "leader cannot evaluate", ctx: withRoles("t1", RoleLeader), perm: PermEvaluate, tenant: "t1", wantErr: ErrForbidden},
		{name: "supervisor can evaluate", ctx: withRoles("t1", RoleSupervisor), perm: PermEvaluate, tenant: "t1"},
		{name: "supervisor cannot manage criteria", ctx: withRoles("t1", RoleSupervisor), perm: PermManageCriteria, tenant: "t1", wantErr: ErrForbidden},
		{name: "pastor manages criteria", ctx: withRoles("t1", RoleAdminPastor), perm: PermManageCriteria, tenant: "t1"},
		{name: "unknown role", ctx: withRoles("t1", "guest:"), perm: PermViewReadiness, tenant: "t1", wantErr: ErrForbidden},
		{name: "highest role wins", ctx: withRoles("t1", RoleLeader, "supervisor:north"), perm: PermEvaluate, tenant: "t1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := authz.Authorize(tt.ctx, tt.perm, tt.tenant); err != tt.wantErr {
				t.Errorf("Authorize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrincipal_Role(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		want     string
		priority int
	}{
		{name: "none"},
		{name: "unknown", roles: []string{"lol"}},
		{name: "leader", roles: []string{RoleLeader}, want: RoleLeader, priority: 1},
		{name: "grouped role", roles: []string{"supervisor:north"}, want: "supervisor:north", priority: 11},
		{name: "mixed", roles: []string{RoleLeader, RoleAdminOwner, RoleSupervisor}, want: RoleAdminOwner, priority: 30},
		{name: "supervisor over leader", roles: []string{RoleLeader, RoleSupervisor}, want: RoleSupervisor, priority: 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Principal{Roles: tt.roles}
			if got := p.Role(); got != tt.want {
				t.Errorf("Role() = %v, want %v", got, tt.want)
			}
			if got := RolePriority(p.Role()); got != tt.priority {
				t.Errorf("RolePriority() = %v, want %v", got, tt.priority)
			}
		})
	}

	p := Principal{Roles: []string{RoleLeader, RoleSupervisor}}
	if p.IsLeader() || !p.IsSupervisor() || p.IsAdmin() {
		t.Errorf("effective role of %v should be supervisor", p.Roles)
	}
}
