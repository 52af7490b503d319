// Package tenants owns workspace records: creation, lookup, and the
// default role set every workspace starts with.
package tenants

import (
	"context"
	"log/slog"
	"strings"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

const maxDisplayNameLength = 120

// Service handles business logic for tenants.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new tenant service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("tenants.svc")),
	}
}

// Create creates a workspace owned by the calling identity.
func (s *Service) Create(ctx context.Context, displayName, ownerIdentityID string) (*Tenant, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperror.NewValidation("Workspace name is required")
	}
	if len(displayName) > maxDisplayNameLength {
		return nil, apperror.NewValidation("Workspace name must be at most 120 characters")
	}

	tenant, err := s.repo.Create(ctx, displayName, ownerIdentityID)
	if err != nil {
		return nil, err
	}

	s.log.Info("workspace created",
		slog.String("tenant_id", tenant.ID),
		slog.String("owner_identity_id", ownerIdentityID),
	)
	return tenant, nil
}
