package invitations

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/slotwise/slotwise-core/domain/members"
	"github.com/slotwise/slotwise-core/domain/notifications"
	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/domain/tenants"
	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

const minPasswordLength = 8

// Store is the invitation persistence surface the service needs.
type Store interface {
	ListPending(ctx context.Context, tenantID string) ([]Invitation, error)
	GetPendingByEmail(ctx context.Context, tenantID, email string) (*Invitation, error)
	GetByID(ctx context.Context, tenantID, id string) (*Invitation, error)
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	GetByCodeAndEmail(ctx context.Context, code, email string) (*Invitation, error)
	Insert(ctx context.Context, inv *Invitation) error
	MarkExpired(ctx context.Context, id string) error
	Cancel(ctx context.Context, tenantID, id string) error
	Reissue(ctx context.Context, id, code string, expiresAt time.Time) error
	Accept(ctx context.Context, id, identityID string) (bool, error)
	MarkEmailSent(ctx context.Context, id string) error
}

// MemberStore is the slice of the members domain the join flow needs.
type MemberStore interface {
	CountActive(ctx context.Context, tenantID string) (int, error)
	GetSeatHolderByEmail(ctx context.Context, tenantID, email string) (*members.Member, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*members.Member, error)
	InsertActive(ctx context.Context, member *members.Member, maxSeats int) error
	Reactivate(ctx context.Context, tenantID, memberID, roleID, identityID, displayName string, maxSeats int) error
}

// RoleStore resolves roles by slug within a tenant.
type RoleStore interface {
	GetBySlug(ctx context.Context, tenantID, slug string) (*roles.Role, error)
}

// TenantStore loads tenant context for public flows.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*tenants.Tenant, error)
}

// Service implements the invitation lifecycle.
type Service struct {
	store    Store
	members  MemberStore
	roles    RoleStore
	tenants  TenantStore
	dir      directory.Directory
	dispatch notifications.Dispatcher
	ttl      time.Duration
	baseURL  string
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a new invitation service.
func NewService(
	store *Repository,
	memberStore *members.Repository,
	roleStore *roles.Repository,
	tenantStore *tenants.Repository,
	dir directory.Directory,
	dispatch notifications.Dispatcher,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	ttl := cfg.InviteTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    store,
		members:  memberStore,
		roles:    roleStore,
		tenants:  tenantStore,
		dir:      dir,
		dispatch: dispatch,
		ttl:      ttl,
		baseURL:  strings.TrimRight(cfg.AppBaseURL, "/"),
		log:      log.With(logger.Scope("invitations.service")),
		now:      time.Now,
	}
}

// Create issues a pending invitation for an email and predefined role.
func (s *Service) Create(ctx context.Context, actor *auth.Principal, req *CreateRequest) (*Invitation, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	slug := strings.ToLower(strings.TrimSpace(req.RoleSlug))
	if !roles.IsPredefinedSlug(slug) {
		return nil, apperror.NewValidation("Role must be one of: " + strings.Join(roles.PredefinedSlugs, ", "))
	}

	// Invitations reserve no seat; only active members count here.
	active, err := s.members.CountActive(ctx, actor.Tenant.ID)
	if err != nil {
		return nil, err
	}
	if active >= actor.Tenant.MaxTeamMembers {
		return nil, apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}

	holder, err := s.members.GetSeatHolderByEmail(ctx, actor.Tenant.ID, email)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.Status == members.StatusActive {
		return nil, apperror.NewConflict("already_member", "This email already belongs to a team member")
	}

	existing, err := s.store.GetPendingByEmail(ctx, actor.Tenant.ID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsExpired(s.now()) {
			return nil, apperror.NewConflict("invitation_already_pending", "A pending invitation already exists for this email")
		}
		// Flip the stale row first or the pending-email index blocks
		// the new one.
		if err := s.store.MarkExpired(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	token, code, err := newInviteCredentials()
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	invitedBy := actor.Identity.ID
	inv := &Invitation{
		TenantID:  actor.Tenant.ID,
		Email:     email,
		RoleSlug:  slug,
		Token:     token,
		Code:      code,
		InvitedBy: &invitedBy,
		Status:    StatusPending,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Insert(ctx, inv); err != nil {
		return nil, err
	}

	s.notify(ctx, inv, actor.Tenant.DisplayName, actor.Identity.DisplayName)
	return inv, nil
}

// List returns a tenant's pending invitations with expiry derived at
// read time.
func (s *Service) List(ctx context.Context, tenantID string) ([]View, error) {
	invs, err := s.store.ListPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]View, 0, len(invs))
	for _, inv := range invs {
		views = append(views, View{Invitation: inv, IsExpired: inv.IsExpired(now)})
	}
	return views, nil
}

// ValidateByToken resolves an invitation for the public landing page.
func (s *Service) ValidateByToken(ctx context.Context, token string) (*PublicView, error) {
	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.publicView(ctx, inv)
}

// ValidateByCode resolves an invitation by short code plus email.
func (s *Service) ValidateByCode(ctx context.Context, code, email string) (*PublicView, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.GetByCodeAndEmail(ctx, code, normalized)
	if err != nil {
		return nil, err
	}
	return s.publicView(ctx, inv)
}

func (s *Service) publicView(ctx context.Context, inv *Invitation) (*PublicView, error) {
	if err := s.checkRedeemable(ctx, inv); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetByID(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	return &PublicView{
		Email:      inv.Email,
		TenantName: tenant.DisplayName,
		RoleSlug:   inv.RoleSlug,
		ExpiresAt:  inv.ExpiresAt,
	}, nil
}

func (s *Service) checkRedeemable(ctx context.Context, inv *Invitation) error {
	if inv.Status != StatusPending {
		return apperror.NewConflict("invitation_already_resolved", "This invitation has already been used or withdrawn")
	}
	if inv.IsExpired(s.now()) {
		if err := s.store.MarkExpired(ctx, inv.ID); err != nil {
			s.log.Error("failed to flip expired invitation",
				slog.String("invitation_id", inv.ID), logger.Error(err))
		}
		return apperror.NewConflict("invitation_expired", "This invitation has expired")
	}
	return nil
}

// Cancel withdraws a pending invitation. Cancelling one that already
// resolved succeeds without effect.
func (s *Service) Cancel(ctx context.Context, actor *auth.Principal, id string) error {
	if _, err := s.store.GetByID(ctx, actor.Tenant.ID, id); err != nil {
		return err
	}
	return s.store.Cancel(ctx, actor.Tenant.ID, id)
}

// Resend rotates the code and extends the deadline, keeping the token
// so previously sent links stay valid.
func (s *Service) Resend(ctx context.Context, actor *auth.Principal, id string) (*Invitation, error) {
	inv, err := s.store.GetByID(ctx, actor.Tenant.ID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, apperror.NewConflict("invitation_already_resolved", "This invitation has already been used or withdrawn")
	}

	code, err := newInviteCode()
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	expiresAt := s.now().Add(s.ttl)
	if err := s.store.Reissue(ctx, inv.ID, code, expiresAt); err != nil {
		return nil, err
	}
	inv.Code = code
	inv.ExpiresAt = expiresAt

	s.notify(ctx, inv, actor.Tenant.DisplayName, actor.Identity.DisplayName)
	return inv, nil
}

// Join redeems an invitation, creating or reviving the member seat.
// This is the only path that brings a removed member back.
func (s *Service) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	inv, err := s.locate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.checkRedeemable(ctx, inv); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetBySlug(ctx, tenant.ID, inv.RoleSlug)
	if err != nil {
		return nil, err
	}

	identity, err := s.dir.LookupByEmail(ctx, inv.Email)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if identity == nil {
		if len(req.Password) < minPasswordLength {
			return nil, apperror.NewValidation("Password must be at least 8 characters")
		}
		if displayName == "" {
			displayName = localPart(inv.Email)
		}
		identity, err = s.dir.CreateAccount(ctx, inv.Email, req.Password, displayName)
		if err != nil {
			return nil, apperror.ErrUpstream.WithInternal(err)
		}
	} else if displayName == "" {
		displayName = identity.DisplayName
		if displayName == "" {
			displayName = localPart(inv.Email)
		}
	}

	memberID, err := s.placeMember(ctx, tenant, role, inv, identity, displayName)
	if err != nil {
		return nil, err
	}

	won, err := s.store.Accept(ctx, inv.ID, identity.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperror.NewConflict("invitation_already_resolved", "This invitation has already been used or withdrawn")
	}

	return &JoinResponse{
		TenantID:   tenant.ID,
		TenantName: tenant.DisplayName,
		MemberID:   memberID,
	}, nil
}

func (s *Service) locate(ctx context.Context, req *JoinRequest) (*Invitation, error) {
	if req.Token != "" {
		return s.store.GetByToken(ctx, req.Token)
	}
	if req.Code != "" && req.Email != "" {
		email, err := normalizeEmail(req.Email)
		if err != nil {
			return nil, err
		}
		return s.store.GetByCodeAndEmail(ctx, req.Code, email)
	}
	return nil, apperror.NewValidation("Provide an invitation token, or a code with your email")
}

func (s *Service) placeMember(ctx context.Context, tenant *tenants.Tenant, role *roles.Role, inv *Invitation, identity *directory.Identity, displayName string) (string, error) {
	existing, err := s.members.GetByEmail(ctx, tenant.ID, inv.Email)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Status == members.StatusActive {
		return "", apperror.NewConflict("already_member", "This email already belongs to a team member")
	}

	if existing != nil {
		// Pending, suspended, or removed: revive the same row so the
		// active-email index cannot collide with it. A row without a
		// seat claims one, so the limit applies to it too.
		if existing.Status != members.StatusPending {
			if err := s.checkSeatAvailable(ctx, tenant); err != nil {
				return "", err
			}
		}
		if err := s.members.Reactivate(ctx, tenant.ID, existing.ID, role.ID, identity.ID, displayName, tenant.MaxTeamMembers); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	if err := s.checkSeatAvailable(ctx, tenant); err != nil {
		return "", err
	}

	now := s.now()
	member := &members.Member{
		TenantID:    tenant.ID,
		IdentityID:  &identity.ID,
		Email:       inv.Email,
		DisplayName: displayName,
		RoleID:      role.ID,
		InvitedBy:   inv.InvitedBy,
		JoinedAt:    &now,
	}
	if err := s.members.InsertActive(ctx, member, tenant.MaxTeamMembers); err != nil {
		return "", err
	}
	return member.ID, nil
}

// checkSeatAvailable is the advisory seat check; the repository
// re-checks under the tenant row lock.
func (s *Service) checkSeatAvailable(ctx context.Context, tenant *tenants.Tenant) error {
	active, err := s.members.CountActive(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if active >= tenant.MaxTeamMembers {
		return apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, inv *Invitation, tenantName, invitedBy string) {
	s.dispatch.InvitationCreated(ctx, notifications.InvitationCreatedPayload{
		Email:      inv.Email,
		TenantName: tenantName,
		InvitedBy:  invitedBy,
		RoleLabel:  inv.RoleSlug,
		InviteLink: s.baseURL + "/join?token=" + inv.Token,
		InviteCode: inv.Code,
		ExpiresAt:  inv.ExpiresAt.Format("January 2, 2006"),
	})
	if err := s.store.MarkEmailSent(ctx, inv.ID); err != nil {
		s.log.Error("failed to record email_sent",
			slog.String("invitation_id", inv.ID), logger.Error(err))
	}
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

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// newInviteCredentials generates the opaque join token and the short
// human-readable code.
func newInviteCredentials() (token, code string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	code, err = newInviteCode()
	return token, code, err
}

func newInviteCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
