// Package access centralizes the permission checks performed by the domain services.
package access

import (
	"context"
	"errors"
	"strings"
)

// Roles
const (
	// Admin
	RoleAdmin       = "admin:"
	RoleAdminOwner  = "admin:owner"
	RoleAdminPastor = "admin:pastor"

	// Supervisor (oversees a set of cells)
	RoleSupervisor = "supervisor:"

	// Cell leader
	RoleLeader = "leader:"
)

var (
	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:  30,
		RoleAdminPastor: 29,
		RoleAdmin:       21,

		// Supervisors: 20 - 11
		RoleSupervisor: 11,

		// Leaders: 10 - 1
		RoleLeader: 1,
	}
	roleGroups = []string{RoleAdmin, RoleSupervisor, RoleLeader}

	// errors
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrForbidden       = errors.New("permission denied")
)

// RolePriority ranks a role, 0 for unknown roles.
// Roles outside the known ones inherit the priority of their group, eg. "supervisor:north".
func RolePriority(role string) int {
	if prio, ok := rolePriorities[role]; ok {
		return prio
	}
	for _, group := range roleGroups {
		if strings.HasPrefix(role, group) {
			return rolePriorities[group]
		}
	}
	return 0
}

// Principal is the authenticated user performing a request.
type Principal struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Role returns the principal's highest-priority role, "" if none is known.
func (p Principal) Role() string {
	var (
		role string
		max  int
	)
	for _, r := range p.Roles {
		if prio := RolePriority(r); prio > max {
			role, max = r, prio
		}
	}
	return role
}

func (p Principal) IsAdmin() bool {
	return strings.HasPrefix(p.Role(), RoleAdmin)
}

// IsSupervisor reports whether supervisor is the principal's effective role.
func (p Principal) IsSupervisor() bool {
	return strings.HasPrefix(p.Role(), RoleSupervisor)
}

// IsLeader reports whether leader is the principal's effective role.
func (p Principal) IsLeader() bool {
	return strings.HasPrefix(p.Role(), RoleLeader)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the Principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
