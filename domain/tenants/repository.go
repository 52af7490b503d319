package tenants

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/internal/database"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// DefaultMaxTeamMembers is the seat limit for new workspaces.
const DefaultMaxTeamMembers = 5

// Repository handles database operations for tenants.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new tenant repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("tenants.repo")),
	}
}

// GetByID returns a tenant by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := r.db.NewSelect().Model(&tenant).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NewNotFound("workspace")
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &tenant, nil
}

// Create inserts a tenant and seeds its default role set in one
// transaction. One workspace per owner identity, enforced by the
// owner-identity unique index.
func (r *Repository) Create(ctx context.Context, displayName, ownerIdentityID string) (*Tenant, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	tenant := &Tenant{
		DisplayName:     displayName,
		OwnerIdentityID: ownerIdentityID,
		MaxTeamMembers:  DefaultMaxTeamMembers,
	}
	_, err = tx.NewInsert().Model(tenant).Returning("*").Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperror.ErrConflict.WithMessage("This account already owns a workspace")
		}
		r.log.Error("failed to create tenant", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := roles.SeedForTenant(ctx, tx, tenant.ID); err != nil {
		r.log.Error("failed to seed roles", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tenant, nil
}
