package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/logger"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// OwnerRoleSlug is the reserved slug of the per-tenant system role.
const OwnerRoleSlug = "owner"

// Resolver maps a verified identity to a tenant and a normalized role.
type Resolver struct {
	db  bun.IDB
	dir directory.Directory
	log *slog.Logger
}

// NewResolver creates an identity resolver.
func NewResolver(db bun.IDB, dir directory.Directory, log *slog.Logger) *Resolver {
	return &Resolver{
		db:  db,
		dir: dir,
		log: log.With(logger.Scope("auth.resolver")),
	}
}

type tenantRow struct {
	ID             string `bun:"id"`
	DisplayName    string `bun:"display_name"`
	MaxTeamMembers int    `bun:"max_team_members"`
}

type memberRoleRow struct {
	MemberID       string          `bun:"member_id"`
	TenantID       string          `bun:"tenant_id"`
	TenantName     string          `bun:"tenant_name"`
	MaxTeamMembers int             `bun:"max_team_members"`
	RoleID         string          `bun:"role_id"`
	RoleName       string          `bun:"role_name"`
	RoleSlug       string          `bun:"role_slug"`
	IsSystemRole   bool            `bun:"is_system_role"`
	Permissions    json.RawMessage `bun:"permissions"`
}

// VerifyOnly validates the credential without any tenant resolution.
// Cheap to call after Resolve: the directory caches introspections.
func (r *Resolver) VerifyOnly(ctx context.Context, token string) (*directory.Identity, error) {
	return r.dir.Verify(ctx, token)
}

// Resolve verifies the credential and determines the caller's tenant
// and role. Order matters: the owner path wins before any member-row
// lookup, so a stale or duplicate member row for the same identity can
// never shadow the owner, and owner resolution works even when the
// members table is empty.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	identity, err := r.dir.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	// Owner path: no member row involved. The owner role is
	// synthesized, not read from storage.
	var tenant tenantRow
	err = r.db.NewRaw(`
		SELECT id, display_name, max_team_members
		FROM core.tenants
		WHERE owner_identity_id = ?
	`, identity.ID).Scan(ctx, &tenant)
	if err == nil {
		return &Principal{
			Identity: *identity,
			Tenant: TenantInfo{
				ID:             tenant.ID,
				DisplayName:    tenant.DisplayName,
				MaxTeamMembers: tenant.MaxTeamMembers,
			},
			Role: RoleInfo{
				Name:         "Owner",
				Slug:         OwnerRoleSlug,
				IsSystemRole: true,
				Permissions:  permissions.Full(),
			},
			IsOwner: true,
		}, nil
	}
	if err != sql.ErrNoRows {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	// Member path: active membership with its role joined.
	var row memberRoleRow
	err = r.db.NewRaw(`
		SELECT m.id AS member_id,
		       t.id AS tenant_id, t.display_name AS tenant_name, t.max_team_members,
		       r.id AS role_id, r.name AS role_name, r.slug AS role_slug,
		       r.is_system_role, r.permissions
		FROM core.members m
		JOIN core.tenants t ON t.id = m.tenant_id
		JOIN core.roles r ON r.id = m.role_id
		WHERE m.identity_id = ? AND m.status = 'active'
	`, identity.ID).Scan(ctx, &row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNoWorkspace
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	perms := permissions.Map{}
	if len(row.Permissions) > 0 {
		if err := json.Unmarshal(row.Permissions, &perms); err != nil {
			r.log.Error("malformed role permissions",
				slog.String("role_id", row.RoleID),
				logger.Error(err),
			)
			return nil, apperror.ErrInternal.WithInternal(err)
		}
	}

	return &Principal{
		Identity: *identity,
		Tenant: TenantInfo{
			ID:             row.TenantID,
			DisplayName:    row.TenantName,
			MaxTeamMembers: row.MaxTeamMembers,
		},
		Role: RoleInfo{
			ID:           row.RoleID,
			Name:         row.RoleName,
			Slug:         row.RoleSlug,
			IsSystemRole: row.IsSystemRole,
			Permissions:  perms,
		},
		MemberID: row.MemberID,
	}, nil
}
