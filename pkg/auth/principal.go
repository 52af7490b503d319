// Package auth resolves request credentials to a tenant-scoped principal
// and guards routes with permission checks.
package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// TenantInfo is the resolved tenant view carried on a request.
type TenantInfo struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	MaxTeamMembers int    `json:"maxTeamMembers"`
}

// RoleInfo is the normalized role view. Both the owner path and the
// member path produce one of these, so downstream permission checks
// never care which path resolved the caller.
type RoleInfo struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	IsSystemRole bool            `json:"isSystemRole"`
	Permissions  permissions.Map `json:"permissions"`
}

// Principal is the per-request authorization context. It is resolved
// once by the middleware and passed explicitly; it is never stored in
// shared process state.
type Principal struct {
	Identity directory.Identity
	Tenant   TenantInfo
	Role     RoleInfo

	// IsOwner is true when the caller resolved via the tenant-owner
	// path rather than a member row.
	IsOwner bool

	// MemberID is the caller's member row id; empty for owners.
	MemberID string
}

// Can reports whether the principal's role grants the required level
// for a resource.
func (p *Principal) Can(resource permissions.Resource, level permissions.Level) bool {
	return p.Role.Permissions.Grants(resource, level)
}

type contextKey string

const principalContextKey contextKey = "auth_principal"

// GetPrincipal retrieves the resolved principal from the Echo context.
func GetPrincipal(c echo.Context) *Principal {
	if p, ok := c.Get(string(principalContextKey)).(*Principal); ok {
		return p
	}
	return nil
}

// setPrincipal stores the principal on the Echo context.
func setPrincipal(c echo.Context, p *Principal) {
	c.Set(string(principalContextKey), p)
}
