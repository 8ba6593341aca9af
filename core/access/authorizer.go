package access

import (
	"context"
	"strings"
)

type Permission string

const (
	PermViewReadiness  Permission = "readiness:view"
	PermEvaluate       Permission = "readiness:evaluate"
	PermManageCriteria Permission = "criteria:manage"
)

// Authorizer decides whether the Principal carried by ctx may exercise a Permission within a tenant.
type Authorizer interface {
	Authorize(ctx context.Context, perm Permission, tenantID string) error
}

// RoleAuthorizer grants permissions by the prefix of the principal's effective role.
type RoleAuthorizer struct {
	grants map[Permission][]string
}

var _ Authorizer = (*RoleAuthorizer)(nil) // interface compliance check

func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{
		grants: map[Permission][]string{
			PermViewReadiness:  {RoleAdmin, RoleSupervisor, RoleLeader},
			PermEvaluate:       {RoleAdmin, RoleSupervisor},
			PermManageCriteria: {RoleAdmin},
		},
	}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, perm Permission, tenantID string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if p.TenantID == "" || p.TenantID != tenantID {
		return ErrForbidden
	}
	role := p.Role()
	if role == "" {
		return ErrForbidden
	}
	for _, prefix := range a.grants[perm] {
		if strings.HasPrefix(role, prefix) {
			return nil
		}
	}
	return ErrForbidden
}

// AllowAll grants every permission. Used by trusted callers such as the admin CLI.
type AllowAll struct{}

var _ Authorizer = AllowAll{}

func (AllowAll) Authorize(context.Context, Permission, string) error { return nil }
