package roles

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/internal/database"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// Repository handles database operations for roles.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new role repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("roles.repo")),
	}
}

// List returns all roles for a tenant, system role first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]Role, error) {
	var list []Role
	err := r.db.NewSelect().
		Model(&list).
		Where("tenant_id = ?", tenantID).
		Order("is_system_role DESC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list roles", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if list == nil {
		list = []Role{}
	}
	return list, nil
}

// GetByID returns a role scoped to a tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*Role, error) {
	var role Role
	err := r.db.NewSelect().
		Model(&role).
		Where("id = ?", id).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NewNotFound("role")
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &role, nil
}

// GetBySlug returns a role by slug scoped to a tenant.
func (r *Repository) GetBySlug(ctx context.Context, tenantID, slug string) (*Role, error) {
	var role Role
	err := r.db.NewSelect().
		Model(&role).
		Where("slug = ?", slug).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NewNotFound("role")
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &role, nil
}

// Insert creates a role.
func (r *Repository) Insert(ctx context.Context, role *Role) error {
	_, err := r.db.NewInsert().Model(role).Returning("*").Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.ErrConflict.WithMessage("A role with this name already exists")
		}
		r.log.Error("failed to insert role", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Update persists name/permission changes for a role.
func (r *Repository) Update(ctx context.Context, role *Role) error {
	_, err := r.db.NewUpdate().
		Model(role).
		Column("name", "permissions").
		Set("updated_at = now()").
		WherePK().
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update role", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetDefault marks one role as the tenant default, clearing the
// previous default in the same transaction so the partial unique
// index never fires.
func (r *Repository) SetDefault(ctx context.Context, tenantID, roleID string) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.NewUpdate().
		Model((*Role)(nil)).
		Set("is_default = false").
		Set("updated_at = now()").
		Where("tenant_id = ?", tenantID).
		Where("is_default").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	result, err := tx.NewUpdate().
		Model((*Role)(nil)).
		Set("is_default = true").
		Set("updated_at = now()").
		Where("id = ?", roleID).
		Where("tenant_id = ?", tenantID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("role")
	}

	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CountHolders returns how many non-removed members hold a role.
func (r *Repository) CountHolders(ctx context.Context, tenantID, roleID string) (int, error) {
	var count int
	err := r.db.NewRaw(`
		SELECT COUNT(*) FROM core.members
		WHERE tenant_id = ? AND role_id = ? AND status <> 'removed'
	`, tenantID, roleID).Scan(ctx, &count)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

// DeleteWithReassign deletes a role, first moving its holders to the
// reassignment target when one is given. Runs in one transaction.
func (r *Repository) DeleteWithReassign(ctx context.Context, tenantID, roleID, reassignTo string) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	if reassignTo != "" {
		_, err = tx.NewRaw(`
			UPDATE core.members SET role_id = ?, updated_at = now()
			WHERE tenant_id = ? AND role_id = ?
		`, reassignTo, tenantID, roleID).Exec(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	result, err := tx.NewDelete().
		Model((*Role)(nil)).
		Where("id = ?", roleID).
		Where("tenant_id = ?", tenantID).
		Where("NOT is_system_role").
		Exec(ctx)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperror.NewValidation("Role is still assigned to members; provide a reassignment target")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("role")
	}

	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SeedForTenant creates the default role set for a new tenant. Used
// inside the tenant-creation transaction.
func SeedForTenant(ctx context.Context, db bun.IDB, tenantID string) error {
	for _, tpl := range seedTemplates() {
		role := &Role{
			TenantID:     tenantID,
			Name:         tpl.Name,
			Slug:         tpl.Slug,
			IsSystemRole: tpl.IsSystemRole,
			IsDefault:    tpl.IsDefault,
			Permissions:  tpl.Permissions,
		}
		if _, err := db.NewInsert().Model(role).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
