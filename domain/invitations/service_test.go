package invitations

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-core/domain/members"
	"github.com/slotwise/slotwise-core/domain/notifications"
	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/domain/tenants"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

const (
	testTenantID = "11111111-1111-1111-1111-111111111111"
	staffRoleID  = "22222222-2222-2222-2222-222222222222"
)

type fakeStore struct {
	invitations map[string]*Invitation
	nextID      int
	emailSent   []string
	expired     []string
	cancelled   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{invitations: map[string]*Invitation{}}
}

func (f *fakeStore) add(inv *Invitation) *Invitation {
	f.invitations[inv.ID] = inv
	return inv
}

func (f *fakeStore) ListPending(ctx context.Context, tenantID string) ([]Invitation, error) {
	var out []Invitation
	for _, inv := range f.invitations {
		if inv.TenantID == tenantID && inv.Status == StatusPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPendingByEmail(ctx context.Context, tenantID, email string) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.TenantID == tenantID && inv.Email == email && inv.Status == StatusPending {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID, id string) (*Invitation, error) {
	inv, ok := f.invitations[id]
	if !ok || inv.TenantID != tenantID {
		return nil, apperror.NewNotFound("invitation")
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Token == token {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, apperror.NewNotFound("invitation")
}

func (f *fakeStore) GetByCodeAndEmail(ctx context.Context, code, email string) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Code == code && inv.Email == email {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, apperror.NewNotFound("invitation")
}

func (f *fakeStore) Insert(ctx context.Context, inv *Invitation) error {
	for _, existing := range f.invitations {
		if existing.TenantID == inv.TenantID && existing.Email == inv.Email && existing.Status == StatusPending {
			return apperror.NewConflict("invitation_already_pending", "A pending invitation already exists for this email")
		}
	}
	f.nextID++
	inv.ID = "inv-" + string(rune('a'+f.nextID))
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) MarkExpired(ctx context.Context, id string) error {
	if inv, ok := f.invitations[id]; ok && inv.Status == StatusPending {
		inv.Status = StatusExpired
		f.expired = append(f.expired, id)
	}
	return nil
}

func (f *fakeStore) Cancel(ctx context.Context, tenantID, id string) error {
	if inv, ok := f.invitations[id]; ok && inv.Status == StatusPending {
		inv.Status = StatusCancelled
		f.cancelled = append(f.cancelled, id)
	}
	return nil
}

func (f *fakeStore) Reissue(ctx context.Context, id, code string, expiresAt time.Time) error {
	inv, ok := f.invitations[id]
	if !ok || inv.Status != StatusPending {
		return apperror.NewConflict("invitation_already_resolved", "This invitation is no longer pending")
	}
	inv.Code = code
	inv.ExpiresAt = expiresAt
	inv.EmailSent = false
	return nil
}

func (f *fakeStore) Accept(ctx context.Context, id, identityID string) (bool, error) {
	inv, ok := f.invitations[id]
	if !ok || inv.Status != StatusPending {
		return false, nil
	}
	inv.Status = StatusAccepted
	inv.AcceptedByIdentityID = &identityID
	return true, nil
}

func (f *fakeStore) MarkEmailSent(ctx context.Context, id string) error {
	f.emailSent = append(f.emailSent, id)
	if inv, ok := f.invitations[id]; ok {
		inv.EmailSent = true
	}
	return nil
}

type fakeMemberStore struct {
	members     map[string]*members.Member
	activeCount int
	inserted    []*members.Member
	reactivated []string
}

func (f *fakeMemberStore) CountActive(ctx context.Context, tenantID string) (int, error) {
	return f.activeCount, nil
}

func (f *fakeMemberStore) GetSeatHolderByEmail(ctx context.Context, tenantID, email string) (*members.Member, error) {
	for _, m := range f.members {
		if m.Email == email && (m.Status == members.StatusActive || m.Status == members.StatusPending) {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMemberStore) GetByEmail(ctx context.Context, tenantID, email string) (*members.Member, error) {
	for _, m := range f.members {
		if m.Email == email {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMemberStore) InsertActive(ctx context.Context, member *members.Member, maxSeats int) error {
	if f.activeCount >= maxSeats {
		return apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}
	member.ID = "new-member"
	member.Status = members.StatusActive
	f.members[member.ID] = member
	f.inserted = append(f.inserted, member)
	f.activeCount++
	return nil
}

func (f *fakeMemberStore) Reactivate(ctx context.Context, tenantID, memberID, roleID, identityID, displayName string, maxSeats int) error {
	m := f.members[memberID]
	if m.Status != members.StatusActive && m.Status != members.StatusPending && f.activeCount >= maxSeats {
		return apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}
	m.Status = members.StatusActive
	m.RoleID = roleID
	m.IdentityID = &identityID
	m.DisplayName = displayName
	f.reactivated = append(f.reactivated, memberID)
	f.activeCount++
	return nil
}

type fakeRoleStore struct{}

func (f *fakeRoleStore) GetBySlug(ctx context.Context, tenantID, slug string) (*roles.Role, error) {
	return &roles.Role{ID: staffRoleID, TenantID: tenantID, Name: "Staff", Slug: slug}, nil
}

type fakeTenantStore struct {
	tenant *tenants.Tenant
}

func (f *fakeTenantStore) GetByID(ctx context.Context, id string) (*tenants.Tenant, error) {
	return f.tenant, nil
}

type fakeDirectory struct {
	accounts map[string]*directory.Identity
	created  []string
}

func (f *fakeDirectory) Verify(ctx context.Context, token string) (*directory.Identity, error) {
	return nil, apperror.ErrInvalidToken
}

func (f *fakeDirectory) LookupByEmail(ctx context.Context, email string) (*directory.Identity, error) {
	return f.accounts[email], nil
}

func (f *fakeDirectory) CreateAccount(ctx context.Context, email, password, displayName string) (*directory.Identity, error) {
	f.created = append(f.created, email)
	return &directory.Identity{ID: "acct-" + email, Email: email, DisplayName: displayName}, nil
}

type fakeDispatcher struct {
	created []notifications.InvitationCreatedPayload
}

func (f *fakeDispatcher) MemberInvited(ctx context.Context, p notifications.MemberInvitedPayload)   {}
func (f *fakeDispatcher) MemberRoleChanged(ctx context.Context, p notifications.MemberRoleChangedPayload) {
}
func (f *fakeDispatcher) MemberRemoved(ctx context.Context, p notifications.MemberRemovedPayload) {}
func (f *fakeDispatcher) MemberSetupLink(ctx context.Context, p notifications.MemberSetupLinkPayload) {
}
func (f *fakeDispatcher) InvitationCreated(ctx context.Context, p notifications.InvitationCreatedPayload) {
	f.created = append(f.created, p)
}

type fixture struct {
	service  *Service
	store    *fakeStore
	members  *fakeMemberStore
	dir      *fakeDirectory
	dispatch *fakeDispatcher
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStore(),
		members:  &fakeMemberStore{members: map[string]*members.Member{}},
		dir:      &fakeDirectory{accounts: map[string]*directory.Identity{}},
		dispatch: &fakeDispatcher{},
		clock:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.service = &Service{
		store:    f.store,
		members:  f.members,
		roles:    &fakeRoleStore{},
		tenants:  &fakeTenantStore{tenant: &tenants.Tenant{ID: testTenantID, DisplayName: "Acme Studio", MaxTeamMembers: 3}},
		dir:      f.dir,
		dispatch: f.dispatch,
		ttl:      DefaultTTL,
		baseURL:  "https://app.slotwise.test",
		log:      slog.Default(),
		now:      func() time.Time { return f.clock },
	}
	return f
}

func (f *fixture) pendingInvitation(email string) *Invitation {
	return f.store.add(&Invitation{
		ID: "inv-1", TenantID: testTenantID, Email: email, RoleSlug: roles.SlugStaff,
		Token: "tok-1", Code: "AB12CD34", Status: StatusPending,
		ExpiresAt: f.clock.Add(DefaultTTL),
	})
}

func actor() *auth.Principal {
	return &auth.Principal{
		Identity: directory.Identity{ID: "owner-identity", Email: "owner@acme.test", DisplayName: "Alice Owner"},
		Tenant:   auth.TenantInfo{ID: testTenantID, DisplayName: "Acme Studio", MaxTeamMembers: 3},
		Role:     auth.RoleInfo{Slug: auth.OwnerRoleSlug, Permissions: permissions.Full()},
		IsOwner:  true,
	}
}

func TestCreateValidatesRoleSlug(t *testing.T) {
	f := newFixture(t)
	for _, slug := range []string{"", "owner", "made-up"} {
		_, err := f.service.Create(context.Background(), actor(), &CreateRequest{
			Email: "bo@acme.test", RoleSlug: slug,
		})
		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr, "slug %q", slug)
		assert.Equal(t, 400, appErr.HTTPStatus)
	}
}

func TestCreateSeatLimitCountsActiveOnly(t *testing.T) {
	f := newFixture(t)
	f.members.activeCount = 3

	_, err := f.service.Create(context.Background(), actor(), &CreateRequest{
		Email: "bo@acme.test", RoleSlug: roles.SlugStaff,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "seat_limit", appErr.Code)
}

func TestCreateRejectsActiveMembers(t *testing.T) {
	f := newFixture(t)
	f.members.members["m1"] = &members.Member{ID: "m1", Email: "bo@acme.test", Status: members.StatusActive}

	_, err := f.service.Create(context.Background(), actor(), &CreateRequest{
		Email: "bo@acme.test", RoleSlug: roles.SlugStaff,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "already_member", appErr.Code)
}

func TestCreateConflictsWithPendingInvitation(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")

	_, err := f.service.Create(context.Background(), actor(), &CreateRequest{
		Email: "bo@acme.test", RoleSlug: roles.SlugStaff,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invitation_already_pending", appErr.Code)
}

func TestCreateFlipsExpiredPendingFirst(t *testing.T) {
	f := newFixture(t)
	stale := f.pendingInvitation("bo@acme.test")
	stale.ExpiresAt = f.clock.Add(-time.Hour)

	inv, err := f.service.Create(context.Background(), actor(), &CreateRequest{
		Email: "bo@acme.test", RoleSlug: roles.SlugStaff,
	})
	require.NoError(t, err)

	assert.Contains(t, f.store.expired, stale.ID)
	assert.Equal(t, StatusExpired, f.store.invitations[stale.ID].Status)
	assert.NotEqual(t, stale.ID, inv.ID)
	assert.Equal(t, StatusPending, inv.Status)
}

func TestCreateIssuesTokenAndCode(t *testing.T) {
	f := newFixture(t)

	inv, err := f.service.Create(context.Background(), actor(), &CreateRequest{
		Email: "  Bo@Acme.Test ", RoleSlug: "STAFF",
	})
	require.NoError(t, err)

	assert.Equal(t, "bo@acme.test", inv.Email)
	assert.Equal(t, roles.SlugStaff, inv.RoleSlug)
	assert.Len(t, inv.Code, 8)
	assert.Equal(t, strings.ToUpper(inv.Code), inv.Code)
	assert.NotEmpty(t, inv.Token)
	assert.Equal(t, f.clock.Add(DefaultTTL), inv.ExpiresAt)

	require.Len(t, f.dispatch.created, 1)
	assert.Contains(t, f.dispatch.created[0].InviteLink, "/join?token="+inv.Token)
	assert.Contains(t, f.store.emailSent, inv.ID)
}

func TestListDerivesExpiry(t *testing.T) {
	f := newFixture(t)
	fresh := f.pendingInvitation("fresh@acme.test")
	stale := f.store.add(&Invitation{
		ID: "inv-2", TenantID: testTenantID, Email: "stale@acme.test",
		Token: "tok-2", Code: "DEADBEEF", Status: StatusPending,
		ExpiresAt: f.clock.Add(-time.Hour),
	})

	views, err := f.service.List(context.Background(), testTenantID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := map[string]View{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.False(t, byID[fresh.ID].IsExpired)
	assert.True(t, byID[stale.ID].IsExpired)
	// Listing never rewrites rows.
	assert.Equal(t, StatusPending, f.store.invitations[stale.ID].Status)
}

func TestValidateByToken(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")

	view, err := f.service.ValidateByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "bo@acme.test", view.Email)
	assert.Equal(t, "Acme Studio", view.TenantName)

	_, err = f.service.ValidateByToken(context.Background(), "missing")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestValidateByTokenResolvedAndExpired(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")
	inv.Status = StatusAccepted

	_, err := f.service.ValidateByToken(context.Background(), "tok-1")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invitation_already_resolved", appErr.Code)

	inv.Status = StatusPending
	inv.ExpiresAt = f.clock.Add(-time.Minute)
	_, err = f.service.ValidateByToken(context.Background(), "tok-1")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invitation_expired", appErr.Code)
	assert.Equal(t, StatusExpired, f.store.invitations[inv.ID].Status, "lazy expiry persists")
}

func TestValidateByCodeNeedsMatchingEmail(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")

	view, err := f.service.ValidateByCode(context.Background(), "AB12CD34", "bo@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "bo@acme.test", view.Email)

	_, err = f.service.ValidateByCode(context.Background(), "AB12CD34", "other@acme.test")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestCancelIsNoOpSafe(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")

	require.NoError(t, f.service.Cancel(context.Background(), actor(), inv.ID))
	assert.Equal(t, StatusCancelled, f.store.invitations[inv.ID].Status)

	// Second cancel finds a resolved row and still succeeds.
	require.NoError(t, f.service.Cancel(context.Background(), actor(), inv.ID))
}

func TestResendRotatesCodeKeepsToken(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")
	originalToken := inv.Token
	originalCode := inv.Code

	f.clock = f.clock.Add(3 * 24 * time.Hour)
	resent, err := f.service.Resend(context.Background(), actor(), inv.ID)
	require.NoError(t, err)

	assert.Equal(t, originalToken, resent.Token, "token survives resend")
	assert.NotEqual(t, originalCode, resent.Code, "code rotates")
	assert.Equal(t, f.clock.Add(DefaultTTL), resent.ExpiresAt)
	require.Len(t, f.dispatch.created, 1)
}

func TestResendRejectsResolved(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")
	inv.Status = StatusCancelled

	_, err := f.service.Resend(context.Background(), actor(), inv.ID)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invitation_already_resolved", appErr.Code)
}

func TestJoinCreatesAccountAndMember(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")

	resp, err := f.service.Join(context.Background(), &JoinRequest{
		Token: "tok-1", Password: "hunter2hunter2", DisplayName: "Bo Smith",
	})
	require.NoError(t, err)

	assert.Equal(t, testTenantID, resp.TenantID)
	assert.Equal(t, "new-member", resp.MemberID)
	assert.Equal(t, []string{"bo@acme.test"}, f.dir.created)
	require.Len(t, f.members.inserted, 1)
	assert.Equal(t, members.StatusActive, f.members.inserted[0].Status)
	assert.Equal(t, StatusAccepted, f.store.invitations[inv.ID].Status)
	require.NotNil(t, f.store.invitations[inv.ID].AcceptedByIdentityID)
}

func TestJoinRequiresPasswordForNewAccounts(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")

	_, err := f.service.Join(context.Background(), &JoinRequest{Token: "tok-1", Password: "short"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestJoinReusesExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")
	f.dir.accounts["bo@acme.test"] = &directory.Identity{ID: "acct-1", Email: "bo@acme.test", DisplayName: "Bo Smith"}

	_, err := f.service.Join(context.Background(), &JoinRequest{Token: "tok-1"})
	require.NoError(t, err)
	assert.Empty(t, f.dir.created)
	require.Len(t, f.members.inserted, 1)
	assert.Equal(t, "acct-1", *f.members.inserted[0].IdentityID)
}

func TestJoinRevivesRemovedMember(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")
	f.members.members["old"] = &members.Member{
		ID: "old", Email: "bo@acme.test", Status: members.StatusRemoved, RoleID: "stale-role",
	}

	resp, err := f.service.Join(context.Background(), &JoinRequest{
		Token: "tok-1", Password: "hunter2hunter2", DisplayName: "Bo Smith",
	})
	require.NoError(t, err)

	assert.Equal(t, "old", resp.MemberID)
	assert.Equal(t, []string{"old"}, f.members.reactivated)
	assert.Empty(t, f.members.inserted, "no second row for a revived member")
	assert.Equal(t, members.StatusActive, f.members.members["old"].Status)
	assert.Equal(t, staffRoleID, f.members.members["old"].RoleID, "role follows the invitation")
}

func TestJoinRevivalCountsAgainstSeatLimit(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")
	f.members.activeCount = 3
	f.members.members["old"] = &members.Member{
		ID: "old", Email: "bo@acme.test", Status: members.StatusRemoved, RoleID: "stale-role",
	}

	_, err := f.service.Join(context.Background(), &JoinRequest{
		Token: "tok-1", Password: "hunter2hunter2", DisplayName: "Bo Smith",
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "seat_limit", appErr.Code)
	assert.Equal(t, members.StatusRemoved, f.members.members["old"].Status, "removed row keeps its status")
	assert.Empty(t, f.members.reactivated)
	assert.Equal(t, StatusPending, f.store.invitations["inv-1"].Status, "invitation stays redeemable")
}

func TestJoinRejectsActiveMember(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")
	f.members.members["m1"] = &members.Member{ID: "m1", Email: "bo@acme.test", Status: members.StatusActive}

	_, err := f.service.Join(context.Background(), &JoinRequest{Token: "tok-1", Password: "hunter2hunter2"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "already_member", appErr.Code)
}

func TestJoinExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	inv := f.pendingInvitation("bo@acme.test")
	inv.ExpiresAt = f.clock.Add(-time.Minute)

	_, err := f.service.Join(context.Background(), &JoinRequest{Token: "tok-1", Password: "hunter2hunter2"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invitation_expired", appErr.Code)
	assert.Equal(t, StatusExpired, f.store.invitations[inv.ID].Status)
}

func TestJoinSeatLimit(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")
	f.members.activeCount = 3

	_, err := f.service.Join(context.Background(), &JoinRequest{Token: "tok-1", Password: "hunter2hunter2"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "seat_limit", appErr.Code)
}

func TestJoinRequiresTokenOrCodeEmail(t *testing.T) {
	f := newFixture(t)
	f.pendingInvitation("bo@acme.test")

	_, err := f.service.Join(context.Background(), &JoinRequest{Code: "AB12CD34"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)

	resp, err := f.service.Join(context.Background(), &JoinRequest{
		Code: "AB12CD34", Email: "bo@acme.test", Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-member", resp.MemberID)
}
