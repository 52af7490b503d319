package invitations

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/internal/database"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// Repository handles invitation persistence.
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository creates a new invitation repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("invitations.repository")),
	}
}

// ListPending returns a tenant's pending invitations, newest first.
func (r *Repository) ListPending(ctx context.Context, tenantID string) ([]Invitation, error) {
	var invs []Invitation
	err := r.db.NewSelect().
		Model(&invs).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", StatusPending).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return invs, nil
}

// GetPendingByEmail returns the pending invitation for an email, or
// nil when there is none.
func (r *Repository) GetPendingByEmail(ctx context.Context, tenantID, email string) (*Invitation, error) {
	inv := new(Invitation)
	err := r.db.NewSelect().
		Model(inv).
		Where("tenant_id = ?", tenantID).
		Where("lower(email) = lower(?)", email).
		Where("status = ?", StatusPending).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return inv, nil
}

// GetByID returns an invitation scoped to the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*Invitation, error) {
	inv := new(Invitation)
	err := r.db.NewSelect().
		Model(inv).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("invitation")
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return inv, nil
}

// GetByToken resolves an invitation by its opaque token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	inv := new(Invitation)
	err := r.db.NewSelect().
		Model(inv).
		Where("token = ?", token).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("invitation")
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return inv, nil
}

// GetByCodeAndEmail resolves an invitation by its short code plus the
// invitee's email. The code alone is too guessable to act as a key.
func (r *Repository) GetByCodeAndEmail(ctx context.Context, code, email string) (*Invitation, error) {
	inv := new(Invitation)
	err := r.db.NewSelect().
		Model(inv).
		Where("upper(code) = upper(?)", code).
		Where("lower(email) = lower(?)", email).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("invitation")
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return inv, nil
}

// Insert creates a pending invitation. The partial unique index on
// (tenant_id, lower(email)) WHERE status='pending' backstops the
// application-level duplicate check.
func (r *Repository) Insert(ctx context.Context, inv *Invitation) error {
	_, err := r.db.NewInsert().Model(inv).Returning("*").Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.NewConflict("invitation_already_pending", "A pending invitation already exists for this email")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// MarkExpired flips a pending invitation to expired. Losing the race
// to another writer is fine, the row is no longer pending either way.
func (r *Repository) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", StatusExpired).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ExpireOverdue flips every overdue pending invitation, returning the
// number of rows touched. The scheduler calls this; read paths still
// detect expiry lazily.
func (r *Repository) ExpireOverdue(ctx context.Context) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", StatusExpired).
		Set("updated_at = now()").
		Where("status = ?", StatusPending).
		Where("expires_at < now()").
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// Cancel flips a pending invitation to cancelled. Cancelling an
// already resolved invitation is a no-op.
func (r *Repository) Cancel(ctx context.Context, tenantID, id string) error {
	_, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", StatusCancelled).
		Set("updated_at = now()").
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Reissue rotates the code and pushes out the deadline while keeping
// the row and its token.
func (r *Repository) Reissue(ctx context.Context, id, code string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("code = ?", code).
		Set("expires_at = ?", expiresAt).
		Set("email_sent = false").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperror.NewConflict("invitation_already_resolved", "This invitation is no longer pending")
	}
	return nil
}

// Accept marks a pending invitation accepted, recording who redeemed
// it. Concurrent redemptions produce exactly one winner.
func (r *Repository) Accept(ctx context.Context, id, identityID string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", StatusAccepted).
		Set("accepted_at = now()").
		Set("accepted_by_identity_id = ?", identityID).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	affected, _ := result.RowsAffected()
	return affected == 1, nil
}

// MarkEmailSent records that the invitation email went out.
func (r *Repository) MarkEmailSent(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*Invitation)(nil)).
		Set("email_sent = true").
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
