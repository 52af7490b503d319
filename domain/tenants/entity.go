package tenants

import (
	"time"

	"github.com/uptrace/bun"
)

// Tenant is an isolated customer workspace. The owner identity is set
// at creation and never changes; maxTeamMembers bounds non-owner seats.
type Tenant struct {
	bun.BaseModel `bun:"table:core.tenants,alias:t"`

	ID              string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	DisplayName     string    `bun:"display_name,notnull" json:"displayName"`
	OwnerIdentityID string    `bun:"owner_identity_id,notnull" json:"ownerIdentityId"`
	MaxTeamMembers  int       `bun:"max_team_members,notnull" json:"maxTeamMembers"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// CreateTenantRequest is the request body for creating a workspace.
type CreateTenantRequest struct {
	DisplayName string `json:"displayName"`
}
