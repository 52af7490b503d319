package members

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/internal/database"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// Repository handles member persistence.
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository creates a new member repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("members.repository")),
	}
}

// List returns active and pending members with their role joined,
// longest-tenured first. Members who have not joined yet sort last.
func (r *Repository) List(ctx context.Context, tenantID string) ([]MemberView, error) {
	var views []MemberView
	err := r.db.NewRaw(`
		SELECT m.id, m.email, m.display_name, m.status,
		       m.role_id, r.name AS role_name, r.slug AS role_slug,
		       m.invited_at, m.joined_at, m.notified_at,
		       m.identity_id IS NOT NULL AS has_identity
		FROM core.members m
		JOIN core.roles r ON r.id = m.role_id
		WHERE m.tenant_id = ? AND m.status IN ('active', 'pending')
		ORDER BY m.joined_at ASC NULLS LAST, m.invited_at ASC
	`, tenantID).Scan(ctx, &views)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return views, nil
}

// CountSeats counts members that occupy a seat (active plus pending).
func (r *Repository) CountSeats(ctx context.Context, tenantID string) (int, error) {
	return r.countByStatus(ctx, r.db, tenantID, StatusActive, StatusPending)
}

// CountActive counts active members only.
func (r *Repository) CountActive(ctx context.Context, tenantID string) (int, error) {
	return r.countByStatus(ctx, r.db, tenantID, StatusActive)
}

func (r *Repository) countByStatus(ctx context.Context, db bun.IDB, tenantID string, statuses ...string) (int, error) {
	count, err := db.NewSelect().
		Model((*Member)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("status IN (?)", bun.In(statuses)).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

// GetByID returns a member scoped to the tenant, removed rows included.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*Member, error) {
	member := new(Member)
	err := r.db.NewSelect().
		Model(member).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("member")
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return member, nil
}

// GetSeatHolderByEmail returns the active or pending member for an
// email, or nil when the email holds no seat.
func (r *Repository) GetSeatHolderByEmail(ctx context.Context, tenantID, email string) (*Member, error) {
	member := new(Member)
	err := r.db.NewSelect().
		Model(member).
		Where("tenant_id = ?", tenantID).
		Where("lower(email) = lower(?)", email).
		Where("status IN (?)", bun.In([]string{StatusActive, StatusPending})).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return member, nil
}

// GetByEmail returns the most recent member row for an email in any
// status, or nil. The join flow uses it to revive removed members.
func (r *Repository) GetByEmail(ctx context.Context, tenantID, email string) (*Member, error) {
	member := new(Member)
	err := r.db.NewSelect().
		Model(member).
		Where("tenant_id = ?", tenantID).
		Where("lower(email) = lower(?)", email).
		Order("updated_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return member, nil
}

// InsertWithSeatCheck inserts the member inside a transaction that
// locks the tenant row and re-counts occupied seats. The application
// level count check is advisory, this is the hard bound.
func (r *Repository) InsertWithSeatCheck(ctx context.Context, member *Member, maxSeats int) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.NewRaw(`SELECT id FROM core.tenants WHERE id = ? FOR UPDATE`, member.TenantID).
		Scan(ctx, &lockedID)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	count, err := r.countByStatus(ctx, tx, member.TenantID, StatusActive, StatusPending)
	if err != nil {
		return err
	}
	if count >= maxSeats {
		return apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}

	_, err = tx.NewInsert().Model(member).Returning("*").Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.NewConflict("member_already_exists", "A member with this email already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdatePending overwrites the mutable fields of a pending row so a
// repeated add for the same email is idempotent.
func (r *Repository) UpdatePending(ctx context.Context, member *Member) error {
	result, err := r.db.NewUpdate().
		Model(member).
		Column("display_name", "role_id", "invited_by", "password_setup_token").
		Set("invited_at = now()").
		Set("updated_at = now()").
		Where("id = ?", member.ID).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperror.NewNotFound("member")
	}
	return nil
}

// UpdateRole changes a member's role.
func (r *Repository) UpdateRole(ctx context.Context, tenantID, memberID, roleID string) error {
	result, err := r.db.NewUpdate().
		Model((*Member)(nil)).
		Set("role_id = ?", roleID).
		Set("updated_at = now()").
		Where("tenant_id = ?", tenantID).
		Where("id = ?", memberID).
		Where("status <> ?", StatusRemoved).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperror.NewNotFound("member")
	}
	return nil
}

// SoftRemove marks a member removed. Removing an already removed
// member reports NotFound rather than succeeding twice.
func (r *Repository) SoftRemove(ctx context.Context, tenantID, memberID string) error {
	result, err := r.db.NewUpdate().
		Model((*Member)(nil)).
		Set("status = ?", StatusRemoved).
		Set("updated_at = now()").
		Where("tenant_id = ?", tenantID).
		Where("id = ?", memberID).
		Where("status <> ?", StatusRemoved).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperror.NewNotFound("member")
	}
	return nil
}

// MarkNotified records that the setup notification went out.
func (r *Repository) MarkNotified(ctx context.Context, memberID string) error {
	_, err := r.db.NewUpdate().
		Model((*Member)(nil)).
		Set("notified_at = now()").
		Set("updated_at = now()").
		Where("id = ?", memberID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// setupRow carries the member plus tenant context for the setup page.
type setupRow struct {
	Member     `bun:",extend"`
	TenantName string `bun:"tenant_name"`
}

// GetBySetupToken loads the member holding an unconsumed setup token
// together with its tenant's display name.
func (r *Repository) GetBySetupToken(ctx context.Context, token string) (*Member, string, error) {
	var row setupRow
	err := r.db.NewRaw(`
		SELECT m.*, t.display_name AS tenant_name
		FROM core.members m
		JOIN core.tenants t ON t.id = m.tenant_id
		WHERE m.password_setup_token = ?
	`, token).Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperror.NewNotFound("setup token")
	}
	if err != nil {
		return nil, "", apperror.ErrDatabase.WithInternal(err)
	}
	return &row.Member, row.TenantName, nil
}

// ConsumeSetupToken activates the member and burns the token. The
// predicate makes concurrent redemptions produce exactly one winner.
func (r *Repository) ConsumeSetupToken(ctx context.Context, token, identityID string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*Member)(nil)).
		Set("identity_id = ?", identityID).
		Set("status = ?", StatusActive).
		Set("password_setup_token = NULL").
		Set("password_set_at = now()").
		Set("joined_at = now()").
		Set("updated_at = now()").
		Where("password_setup_token = ?", token).
		Where("password_set_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	affected, _ := result.RowsAffected()
	return affected == 1, nil
}

// Reactivate revives a member row into the active state with a fresh
// role and identity. Invitation acceptance is the only caller. A row
// that holds no seat (removed or suspended) claims one, so the seat
// bound is re-checked under the tenant row lock the same way inserts
// do; pending rows already occupy a seat and skip the check.
func (r *Repository) Reactivate(ctx context.Context, tenantID, memberID, roleID, identityID, displayName string, maxSeats int) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.NewRaw(`SELECT id FROM core.tenants WHERE id = ? FOR UPDATE`, tenantID).
		Scan(ctx, &lockedID)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	var status string
	err = tx.NewSelect().
		Model((*Member)(nil)).
		Column("status").
		Where("tenant_id = ?", tenantID).
		Where("id = ?", memberID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NewNotFound("member")
	}
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	if status != StatusActive && status != StatusPending {
		count, err := r.countByStatus(ctx, tx, tenantID, StatusActive, StatusPending)
		if err != nil {
			return err
		}
		if count >= maxSeats {
			return apperror.NewConflict("seat_limit", "The team has reached its member limit")
		}
	}

	_, err = tx.NewUpdate().
		Model((*Member)(nil)).
		Set("status = ?", StatusActive).
		Set("role_id = ?", roleID).
		Set("identity_id = ?", identityID).
		Set("display_name = ?", displayName).
		Set("joined_at = now()").
		Set("password_setup_token = NULL").
		Set("updated_at = now()").
		Where("tenant_id = ?", tenantID).
		Where("id = ?", memberID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// InsertActive creates an already-active member, used when the email
// maps to an existing directory account.
func (r *Repository) InsertActive(ctx context.Context, member *Member, maxSeats int) error {
	member.Status = StatusActive
	return r.InsertWithSeatCheck(ctx, member, maxSeats)
}
