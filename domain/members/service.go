package members

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/slotwise/slotwise-core/domain/notifications"
	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

const minPasswordLength = 8

// Store is the persistence surface the service needs.
type Store interface {
	List(ctx context.Context, tenantID string) ([]MemberView, error)
	CountSeats(ctx context.Context, tenantID string) (int, error)
	GetByID(ctx context.Context, tenantID, id string) (*Member, error)
	GetSeatHolderByEmail(ctx context.Context, tenantID, email string) (*Member, error)
	InsertWithSeatCheck(ctx context.Context, member *Member, maxSeats int) error
	UpdatePending(ctx context.Context, member *Member) error
	UpdateRole(ctx context.Context, tenantID, memberID, roleID string) error
	SoftRemove(ctx context.Context, tenantID, memberID string) error
	MarkNotified(ctx context.Context, memberID string) error
	GetBySetupToken(ctx context.Context, token string) (*Member, string, error)
	ConsumeSetupToken(ctx context.Context, token, identityID string) (bool, error)
}

// RoleStore resolves roles within a tenant.
type RoleStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*roles.Role, error)
}

// Service implements the membership lifecycle.
type Service struct {
	store    Store
	roles    RoleStore
	dir      directory.Directory
	dispatch notifications.Dispatcher
	baseURL  string
	log      *slog.Logger
}

// NewService creates a new member service.
func NewService(
	store *Repository,
	roleStore *roles.Repository,
	dir directory.Directory,
	dispatch notifications.Dispatcher,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		roles:    roleStore,
		dir:      dir,
		dispatch: dispatch,
		baseURL:  strings.TrimRight(cfg.AppBaseURL, "/"),
		log:      log.With(logger.Scope("members.service")),
	}
}

// List returns the team roster with seat usage. Members with a linked
// identity get their account profile resolved from the directory; a
// directory outage degrades the listing instead of failing it.
func (s *Service) List(ctx context.Context, actor *auth.Principal) (*ListResponse, error) {
	views, err := s.store.List(ctx, actor.Tenant.ID)
	if err != nil {
		return nil, err
	}

	for i := range views {
		if !views[i].HasIdentity {
			continue
		}
		identity, err := s.dir.LookupByEmail(ctx, views[i].Email)
		if err != nil {
			s.log.Warn("directory profile lookup failed",
				slog.String("member_id", views[i].ID), logger.Error(err))
			continue
		}
		if identity == nil {
			continue
		}
		views[i].AccountName = identity.DisplayName
		views[i].AccountEmail = identity.Email
	}

	return &ListResponse{
		Members:    views,
		Total:      len(views),
		MaxMembers: actor.Tenant.MaxTeamMembers,
	}, nil
}

// Add creates a seat for an email address. Re-adding a still-pending
// email updates the pending row instead of failing.
func (s *Service) Add(ctx context.Context, actor *auth.Principal, req *AddMemberRequest) (*Member, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if len(displayName) < 2 {
		return nil, apperror.NewValidation("Display name must be at least 2 characters")
	}

	role, err := s.assignableRole(ctx, actor.Tenant.ID, req.RoleID)
	if err != nil {
		return nil, err
	}

	// Advisory. The insert re-checks under a tenant row lock.
	seats, err := s.store.CountSeats(ctx, actor.Tenant.ID)
	if err != nil {
		return nil, err
	}
	if seats >= actor.Tenant.MaxTeamMembers {
		return nil, apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}

	existing, err := s.store.GetSeatHolderByEmail(ctx, actor.Tenant.ID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == StatusActive {
			return nil, apperror.NewConflict("member_already_exists", "A member with this email already exists")
		}
		return s.refreshPending(ctx, actor, existing, displayName, role)
	}

	invitedBy := actor.Identity.ID
	member := &Member{
		TenantID:    actor.Tenant.ID,
		Email:       email,
		DisplayName: displayName,
		RoleID:      role.ID,
		InvitedBy:   &invitedBy,
	}

	identity, err := s.dir.LookupByEmail(ctx, email)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	if identity != nil {
		now := time.Now()
		member.Status = StatusActive
		member.IdentityID = &identity.ID
		member.JoinedAt = &now
		// The account already has credentials; the setup flow never runs.
		member.PasswordSetAt = &now
	} else {
		token, err := newSetupToken()
		if err != nil {
			return nil, apperror.ErrInternal.WithInternal(err)
		}
		member.Status = StatusPending
		member.PasswordSetupToken = &token
	}

	if err := s.store.InsertWithSeatCheck(ctx, member, actor.Tenant.MaxTeamMembers); err != nil {
		return nil, err
	}

	s.notifyInvited(ctx, actor, member)
	return member, nil
}

func (s *Service) refreshPending(ctx context.Context, actor *auth.Principal, existing *Member, displayName string, role *roles.Role) (*Member, error) {
	invitedBy := actor.Identity.ID
	existing.DisplayName = displayName
	existing.RoleID = role.ID
	existing.InvitedBy = &invitedBy
	if existing.PasswordSetupToken == nil {
		token, err := newSetupToken()
		if err != nil {
			return nil, apperror.ErrInternal.WithInternal(err)
		}
		existing.PasswordSetupToken = &token
	}
	if err := s.store.UpdatePending(ctx, existing); err != nil {
		return nil, err
	}
	s.notifyInvited(ctx, actor, existing)
	return existing, nil
}

func (s *Service) notifyInvited(ctx context.Context, actor *auth.Principal, member *Member) {
	setupLink := ""
	if member.PasswordSetupToken != nil {
		setupLink = s.setupLink(*member.PasswordSetupToken)
	}
	s.dispatch.MemberInvited(ctx, notifications.MemberInvitedPayload{
		Email:      member.Email,
		MemberName: member.DisplayName,
		TenantName: actor.Tenant.DisplayName,
		InvitedBy:  actor.Identity.DisplayName,
		SetupLink:  setupLink,
	})
	if member.Status == StatusPending {
		if err := s.store.MarkNotified(ctx, member.ID); err != nil {
			s.log.Error("failed to record notified_at",
				slog.String("member_id", member.ID), logger.Error(err))
		}
	}
}

// SendSetupNotification re-sends the password-setup email to a pending
// member.
func (s *Service) SendSetupNotification(ctx context.Context, actor *auth.Principal, memberID string) error {
	member, err := s.store.GetByID(ctx, actor.Tenant.ID, memberID)
	if err != nil {
		return err
	}
	if member.HasSetPassword() {
		return apperror.NewConflict("already_set_up", "This member has already set up their account")
	}
	if member.Status != StatusPending || member.PasswordSetupToken == nil {
		return apperror.NewConflict("already_set_up", "This member does not need account setup")
	}

	s.dispatch.MemberSetupLink(ctx, notifications.MemberSetupLinkPayload{
		Email:      member.Email,
		MemberName: member.DisplayName,
		TenantName: actor.Tenant.DisplayName,
		SetupLink:  s.setupLink(*member.PasswordSetupToken),
	})
	return s.store.MarkNotified(ctx, member.ID)
}

// Remove soft-deletes a member.
func (s *Service) Remove(ctx context.Context, actor *auth.Principal, memberID string) error {
	member, err := s.store.GetByID(ctx, actor.Tenant.ID, memberID)
	if err != nil {
		return err
	}
	if member.Status == StatusRemoved {
		return apperror.NewNotFound("member")
	}
	if err := s.guardMutable(ctx, actor, member, "remove"); err != nil {
		return err
	}

	if err := s.store.SoftRemove(ctx, actor.Tenant.ID, member.ID); err != nil {
		return err
	}

	s.dispatch.MemberRemoved(ctx, notifications.MemberRemovedPayload{
		Email:      member.Email,
		MemberName: member.DisplayName,
		TenantName: actor.Tenant.DisplayName,
	})
	return nil
}

// ChangeRole moves a member to another assignable role.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Principal, memberID string, req *ChangeRoleRequest) error {
	member, err := s.store.GetByID(ctx, actor.Tenant.ID, memberID)
	if err != nil {
		return err
	}
	if member.Status == StatusRemoved {
		return apperror.NewNotFound("member")
	}
	if err := s.guardMutable(ctx, actor, member, "change the role of"); err != nil {
		return err
	}

	role, err := s.assignableRole(ctx, actor.Tenant.ID, req.RoleID)
	if err != nil {
		return err
	}
	if role.ID == member.RoleID {
		return nil
	}

	if err := s.store.UpdateRole(ctx, actor.Tenant.ID, member.ID, role.ID); err != nil {
		return err
	}

	s.dispatch.MemberRoleChanged(ctx, notifications.MemberRoleChangedPayload{
		Email:      member.Email,
		MemberName: member.DisplayName,
		TenantName: actor.Tenant.DisplayName,
		RoleLabel:  role.Name,
	})
	return nil
}

// ValidateSetup resolves a setup token to the info shown on the setup
// page.
func (s *Service) ValidateSetup(ctx context.Context, token string) (*SetupInfo, error) {
	member, tenantName, err := s.store.GetBySetupToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if member.HasSetPassword() {
		return nil, apperror.NewConflict("already_set_up", "This account has already been set up")
	}
	return &SetupInfo{
		Email:       member.Email,
		DisplayName: member.DisplayName,
		TenantName:  tenantName,
	}, nil
}

// CompleteSetup redeems a setup token, creating the directory account
// and activating the member. Once the account exists the call reports
// success even when the member update fails; the orphaned account is
// logged for reconciliation and the person can still sign in.
func (s *Service) CompleteSetup(ctx context.Context, token string, req *CompleteSetupRequest) error {
	if len(req.Password) < minPasswordLength {
		return apperror.NewValidation("Password must be at least 8 characters")
	}

	member, _, err := s.store.GetBySetupToken(ctx, token)
	if err != nil {
		return err
	}
	if member.HasSetPassword() {
		return apperror.NewConflict("already_set_up", "This account has already been set up")
	}

	identity, err := s.dir.LookupByEmail(ctx, member.Email)
	if err != nil {
		return apperror.ErrUpstream.WithInternal(err)
	}
	if identity == nil {
		identity, err = s.dir.CreateAccount(ctx, member.Email, req.Password, member.DisplayName)
		if err != nil {
			return apperror.ErrUpstream.WithInternal(err)
		}
	}

	won, err := s.store.ConsumeSetupToken(ctx, token, identity.ID)
	if err != nil {
		s.log.Error("member activation failed after account creation, needs reconciliation",
			slog.String("member_id", member.ID),
			slog.String("identity_id", identity.ID),
			logger.Error(err),
		)
		return nil
	}
	if !won {
		return apperror.NewConflict("already_set_up", "This account has already been set up")
	}
	return nil
}

func (s *Service) assignableRole(ctx context.Context, tenantID, roleID string) (*roles.Role, error) {
	if roleID == "" {
		return nil, apperror.NewValidation("A role is required")
	}
	role, err := s.roles.GetByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, apperror.NewValidation("The owner role cannot be assigned")
	}
	return role, nil
}

func (s *Service) guardMutable(ctx context.Context, actor *auth.Principal, member *Member, action string) error {
	if actor.MemberID != "" && actor.MemberID == member.ID {
		return apperror.NewValidation("You cannot " + action + " yourself")
	}
	role, err := s.roles.GetByID(ctx, actor.Tenant.ID, member.RoleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole || role.Slug == auth.OwnerRoleSlug {
		return apperror.New(400, "cannot_remove_owner", "The workspace owner cannot be modified")
	}
	return nil
}

func (s *Service) setupLink(token string) string {
	return s.baseURL + "/setup/" + token
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.NewValidation("An email address is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperror.NewValidation("A valid email address is required")
	}
	return email, nil
}

func newSetupToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
