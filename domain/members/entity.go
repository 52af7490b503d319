package members

import (
	"time"

	"github.com/uptrace/bun"
)

// Member statuses
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusRemoved   = "removed"
)

// Member is a person's seat in a tenant. Removal is a soft delete:
// the row stays with status "removed" and only invitation acceptance
// brings it back.
type Member struct {
	bun.BaseModel `bun:"table:core.members,alias:m"`

	ID                 string     `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	TenantID           string     `bun:"tenant_id,type:uuid,notnull" json:"tenantId"`
	IdentityID         *string    `bun:"identity_id" json:"identityId,omitempty"`
	Email              string     `bun:"email,notnull" json:"email"`
	DisplayName        string     `bun:"display_name,notnull" json:"displayName"`
	RoleID             string     `bun:"role_id,type:uuid,notnull" json:"roleId"`
	Status             string     `bun:"status,notnull,default:'pending'" json:"status"`
	InvitedBy          *string    `bun:"invited_by" json:"invitedBy,omitempty"`
	InvitedAt          time.Time  `bun:"invited_at,notnull,default:now()" json:"invitedAt"`
	JoinedAt           *time.Time `bun:"joined_at" json:"joinedAt,omitempty"`
	PasswordSetupToken *string    `bun:"password_setup_token" json:"-"`
	PasswordSetAt      *time.Time `bun:"password_set_at" json:"-"`
	NotifiedAt         *time.Time `bun:"notified_at" json:"notifiedAt,omitempty"`
	CreatedAt          time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// HasSetPassword reports whether the member finished password setup.
func (m *Member) HasSetPassword() bool {
	return m.PasswordSetAt != nil
}

// MemberView is a list entry with the role joined in. AccountName and
// AccountEmail carry the directory profile for members with a linked
// identity; the local columns keep what the tenant entered.
type MemberView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName"`
	Status       string     `json:"status"`
	RoleID       string     `json:"roleId"`
	RoleName     string     `json:"roleName"`
	RoleSlug     string     `json:"roleSlug"`
	InvitedAt    time.Time  `json:"invitedAt"`
	JoinedAt     *time.Time `json:"joinedAt,omitempty"`
	NotifiedAt   *time.Time `json:"notifiedAt,omitempty"`
	HasIdentity  bool       `json:"hasIdentity"`
	AccountName  string     `json:"accountName,omitempty"`
	AccountEmail string     `json:"accountEmail,omitempty"`
}

// ListResponse is the team listing payload.
type ListResponse struct {
	Members    []MemberView `json:"members"`
	Total      int          `json:"total"`
	MaxMembers int          `json:"maxMembers"`
}

// AddMemberRequest is the request body for adding a member directly.
type AddMemberRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	RoleID      string `json:"roleId"`
}

// ChangeRoleRequest is the request body for changing a member's role.
type ChangeRoleRequest struct {
	RoleID string `json:"roleId"`
}

// CompleteSetupRequest is the request body for finishing password setup.
type CompleteSetupRequest struct {
	Password string `json:"password"`
}

// SetupInfo is the public payload shown on the password-setup page.
type SetupInfo struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	TenantName  string `json:"tenantName"`
}
