package invitations

import (
	"time"

	"github.com/uptrace/bun"
)

// Invitation statuses
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

// Invitation is a standing offer to join a tenant. It exists
// independently of any member row; acceptance creates or revives one.
type Invitation struct {
	bun.BaseModel `bun:"table:core.invitations,alias:inv"`

	ID                   string     `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	TenantID             string     `bun:"tenant_id,type:uuid,notnull" json:"tenantId"`
	Email                string     `bun:"email,notnull" json:"email"`
	RoleSlug             string     `bun:"role_slug,notnull" json:"roleSlug"`
	Token                string     `bun:"token,notnull" json:"-"`
	Code                 string     `bun:"code,notnull" json:"code"`
	InvitedBy            *string    `bun:"invited_by" json:"invitedBy,omitempty"`
	Status               string     `bun:"status,notnull,default:'pending'" json:"status"`
	EmailSent            bool       `bun:"email_sent,notnull" json:"emailSent"`
	ExpiresAt            time.Time  `bun:"expires_at,notnull" json:"expiresAt"`
	AcceptedAt           *time.Time `bun:"accepted_at" json:"acceptedAt,omitempty"`
	AcceptedByIdentityID *string    `bun:"accepted_by_identity_id" json:"-"`
	CreatedAt            time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// IsExpired reports whether the invitation's deadline has passed.
// Expiry is detected lazily; the stored status may lag.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// View is a list entry; expiry is derived at read time without
// rewriting the row.
type View struct {
	Invitation
	IsExpired bool `json:"isExpired"`
}

// PublicView is what an invitee sees before authenticating.
type PublicView struct {
	Email      string    `json:"email"`
	TenantName string    `json:"tenantName"`
	RoleSlug   string    `json:"roleSlug"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CreateRequest is the request body for issuing an invitation.
type CreateRequest struct {
	Email    string `json:"email"`
	RoleSlug string `json:"roleSlug"`
}

// JoinRequest redeems an invitation by token, or by code plus email.
type JoinRequest struct {
	Token       string `json:"token"`
	Code        string `json:"code"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// JoinResponse reports the seat created by a successful join.
type JoinResponse struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
	MemberID   string `json:"memberId"`
}
