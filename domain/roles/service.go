// Package roles is the role store: per-tenant named permission maps
// with one immutable system role.
package roles

import (
	"context"
	"log/slog"
	"strings"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

const maxRoleNameLength = 60

// Store is the persistence surface the service needs.
type Store interface {
	List(ctx context.Context, tenantID string) ([]Role, error)
	GetByID(ctx context.Context, tenantID, id string) (*Role, error)
	GetBySlug(ctx context.Context, tenantID, slug string) (*Role, error)
	Insert(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	SetDefault(ctx context.Context, tenantID, roleID string) error
	CountHolders(ctx context.Context, tenantID, roleID string) (int, error)
	DeleteWithReassign(ctx context.Context, tenantID, roleID, reassignTo string) error
}

// Service handles business logic for roles.
type Service struct {
	repo Store
	log  *slog.Logger
}

// NewService creates a new role service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("roles.svc")),
	}
}

// List returns all roles for a tenant.
func (s *Service) List(ctx context.Context, tenantID string) ([]Role, error) {
	return s.repo.List(ctx, tenantID)
}

// GetAssignable returns a role by id, scoped to the tenant and
// rejecting the system role. Used by membership operations to
// validate role assignment.
func (s *Service) GetAssignable(ctx context.Context, tenantID, roleID string) (*Role, error) {
	role, err := s.repo.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, apperror.NewValidation("The owner role cannot be assigned to members")
	}
	return role, nil
}

// GetAssignableBySlug resolves a predefined non-owner slug for the tenant.
func (s *Service) GetAssignableBySlug(ctx context.Context, tenantID, slug string) (*Role, error) {
	if !IsPredefinedSlug(slug) {
		return nil, apperror.NewValidation("Unknown role")
	}
	return s.repo.GetBySlug(ctx, tenantID, slug)
}

// Create adds a custom role to a tenant.
func (s *Service) Create(ctx context.Context, tenantID string, req *CreateRoleRequest) (*Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxRoleNameLength {
		return nil, apperror.NewValidation("Role name must be 1-60 characters")
	}

	perms := req.Permissions
	if perms == nil {
		perms = permissions.Map{}
	}
	if err := perms.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	role := &Role{
		TenantID:    tenantID,
		Name:        name,
		Slug:        slugify(name),
		Permissions: perms,
	}
	if err := s.repo.Insert(ctx, role); err != nil {
		return nil, err
	}

	if req.IsDefault {
		if err := s.repo.SetDefault(ctx, tenantID, role.ID); err != nil {
			return nil, err
		}
		role.IsDefault = true
	}

	s.log.Info("role created",
		slog.String("tenant_id", tenantID),
		slog.String("role_id", role.ID),
	)
	return role, nil
}

// Update renames a role and/or replaces its permission map. System
// roles are immutable.
func (s *Service) Update(ctx context.Context, tenantID, roleID string, req *UpdateRoleRequest) (*Role, error) {
	role, err := s.repo.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, apperror.NewValidation("The owner role cannot be modified")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxRoleNameLength {
			return nil, apperror.NewValidation("Role name must be 1-60 characters")
		}
		role.Name = name
	}
	if req.Permissions != nil {
		if err := req.Permissions.Validate(); err != nil {
			return nil, apperror.NewValidation(err.Error())
		}
		role.Permissions = *req.Permissions
	}

	if err := s.repo.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Duplicate copies a role's permission map into a new custom role.
func (s *Service) Duplicate(ctx context.Context, tenantID, roleID string) (*Role, error) {
	src, err := s.repo.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}

	copyPerms := make(permissions.Map, len(src.Permissions))
	for k, v := range src.Permissions {
		copyPerms[k] = v
	}

	dup := &Role{
		TenantID:    tenantID,
		Name:        src.Name + " (copy)",
		Slug:        src.Slug + "-copy",
		Permissions: copyPerms,
	}
	if err := s.repo.Insert(ctx, dup); err != nil {
		return nil, err
	}
	return dup, nil
}

// SetDefault makes a role the tenant default. System roles cannot be
// the default.
func (s *Service) SetDefault(ctx context.Context, tenantID, roleID string) error {
	role, err := s.repo.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return apperror.NewValidation("The owner role cannot be the default")
	}
	return s.repo.SetDefault(ctx, tenantID, roleID)
}

// Delete removes a role. When members still hold it, a reassignment
// target in the same tenant is required.
func (s *Service) Delete(ctx context.Context, tenantID, roleID string, req *DeleteRoleRequest) error {
	role, err := s.repo.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return apperror.NewValidation("The owner role cannot be deleted")
	}

	holders, err := s.repo.CountHolders(ctx, tenantID, roleID)
	if err != nil {
		return err
	}

	reassignTo := ""
	if holders > 0 {
		if req == nil || req.ReassignToRoleID == "" {
			return apperror.NewValidation("Role is assigned to members; reassignToRoleId is required")
		}
		if req.ReassignToRoleID == roleID {
			return apperror.NewValidation("Cannot reassign members to the role being deleted")
		}
		target, err := s.GetAssignable(ctx, tenantID, req.ReassignToRoleID)
		if err != nil {
			return err
		}
		reassignTo = target.ID
	}

	if err := s.repo.DeleteWithReassign(ctx, tenantID, roleID, reassignTo); err != nil {
		return err
	}

	s.log.Info("role deleted",
		slog.String("tenant_id", tenantID),
		slog.String("role_id", roleID),
		slog.Int("reassigned_holders", holders),
	)
	return nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}
