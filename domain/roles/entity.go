package roles

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// Role is a named per-tenant permission map. Exactly one role per
// tenant is the immutable system role with slug "owner".
type Role struct {
	bun.BaseModel `bun:"table:core.roles,alias:r"`

	ID           string          `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	TenantID     string          `bun:"tenant_id,type:uuid,notnull" json:"tenantId"`
	Name         string          `bun:"name,notnull" json:"name"`
	Slug         string          `bun:"slug,notnull" json:"slug"`
	IsSystemRole bool            `bun:"is_system_role,notnull" json:"isSystemRole"`
	IsDefault    bool            `bun:"is_default,notnull" json:"isDefault"`
	Permissions  permissions.Map `bun:"permissions,type:jsonb" json:"permissions"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// CreateRoleRequest is the request body for creating a role.
type CreateRoleRequest struct {
	Name        string          `json:"name"`
	Permissions permissions.Map `json:"permissions"`
	IsDefault   bool            `json:"isDefault"`
}

// UpdateRoleRequest is the request body for renaming a role and/or
// replacing its permission map. Nil fields are left unchanged.
type UpdateRoleRequest struct {
	Name        *string          `json:"name,omitempty"`
	Permissions *permissions.Map `json:"permissions,omitempty"`
}

// DeleteRoleRequest carries the reassignment target for roles still
// held by members.
type DeleteRoleRequest struct {
	ReassignToRoleID string `json:"reassignToRoleId,omitempty"`
}
