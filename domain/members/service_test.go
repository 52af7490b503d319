package members

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-core/domain/notifications"
	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

const (
	testTenantID = "11111111-1111-1111-1111-111111111111"
	staffRoleID  = "22222222-2222-2222-2222-222222222222"
	ownerRoleID  = "33333333-3333-3333-3333-333333333333"
)

type fakeStore struct {
	members      map[string]*Member
	byToken      map[string]*Member
	seatCount    int
	insertErr    error
	consumeErr   error
	notified     []string
	removed      []string
	roleChanges  map[string]string
	pendingSaved *Member
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:     map[string]*Member{},
		byToken:     map[string]*Member{},
		roleChanges: map[string]string{},
	}
}

func (f *fakeStore) List(ctx context.Context, tenantID string) ([]MemberView, error) {
	var views []MemberView
	for _, m := range f.members {
		if m.Status == StatusActive || m.Status == StatusPending {
			views = append(views, MemberView{
				ID: m.ID, Email: m.Email, Status: m.Status,
				HasIdentity: m.IdentityID != nil,
			})
		}
	}
	return views, nil
}

func (f *fakeStore) CountSeats(ctx context.Context, tenantID string) (int, error) {
	return f.seatCount, nil
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID, id string) (*Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, apperror.NewNotFound("member")
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) GetSeatHolderByEmail(ctx context.Context, tenantID, email string) (*Member, error) {
	for _, m := range f.members {
		if m.Email == email && (m.Status == StatusActive || m.Status == StatusPending) {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertWithSeatCheck(ctx context.Context, member *Member, maxSeats int) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.seatCount >= maxSeats {
		return apperror.NewConflict("seat_limit", "The team has reached its member limit")
	}
	member.ID = "new-member"
	f.members[member.ID] = member
	f.seatCount++
	return nil
}

func (f *fakeStore) UpdatePending(ctx context.Context, member *Member) error {
	f.pendingSaved = member
	f.members[member.ID] = member
	return nil
}

func (f *fakeStore) UpdateRole(ctx context.Context, tenantID, memberID, roleID string) error {
	f.roleChanges[memberID] = roleID
	return nil
}

func (f *fakeStore) SoftRemove(ctx context.Context, tenantID, memberID string) error {
	f.removed = append(f.removed, memberID)
	f.members[memberID].Status = StatusRemoved
	return nil
}

func (f *fakeStore) MarkNotified(ctx context.Context, memberID string) error {
	f.notified = append(f.notified, memberID)
	return nil
}

func (f *fakeStore) GetBySetupToken(ctx context.Context, token string) (*Member, string, error) {
	m, ok := f.byToken[token]
	if !ok {
		return nil, "", apperror.NewNotFound("setup token")
	}
	copied := *m
	return &copied, "Acme Studio", nil
}

func (f *fakeStore) ConsumeSetupToken(ctx context.Context, token, identityID string) (bool, error) {
	if f.consumeErr != nil {
		return false, f.consumeErr
	}
	m, ok := f.byToken[token]
	if !ok || m.PasswordSetAt != nil {
		return false, nil
	}
	m.Status = StatusActive
	m.IdentityID = &identityID
	delete(f.byToken, token)
	return true, nil
}

type fakeRoleStore struct {
	roles map[string]*roles.Role
}

func (f *fakeRoleStore) GetByID(ctx context.Context, tenantID, id string) (*roles.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, apperror.NewNotFound("role")
	}
	return r, nil
}

type fakeDirectory struct {
	accounts  map[string]*directory.Identity
	createErr error
	lookupErr error
	created   []string
}

func (f *fakeDirectory) Verify(ctx context.Context, token string) (*directory.Identity, error) {
	return nil, apperror.ErrInvalidToken
}

func (f *fakeDirectory) LookupByEmail(ctx context.Context, email string) (*directory.Identity, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.accounts[email], nil
}

func (f *fakeDirectory) CreateAccount(ctx context.Context, email, password, displayName string) (*directory.Identity, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := &directory.Identity{ID: "acct-" + email, Email: email, DisplayName: displayName}
	f.created = append(f.created, email)
	return id, nil
}

type fakeDispatcher struct {
	invited     []notifications.MemberInvitedPayload
	roleChanged []notifications.MemberRoleChangedPayload
	removed     []notifications.MemberRemovedPayload
	setupLinks  []notifications.MemberSetupLinkPayload
}

func (f *fakeDispatcher) MemberInvited(ctx context.Context, p notifications.MemberInvitedPayload) {
	f.invited = append(f.invited, p)
}

func (f *fakeDispatcher) MemberRoleChanged(ctx context.Context, p notifications.MemberRoleChangedPayload) {
	f.roleChanged = append(f.roleChanged, p)
}

func (f *fakeDispatcher) MemberRemoved(ctx context.Context, p notifications.MemberRemovedPayload) {
	f.removed = append(f.removed, p)
}

func (f *fakeDispatcher) MemberSetupLink(ctx context.Context, p notifications.MemberSetupLinkPayload) {
	f.setupLinks = append(f.setupLinks, p)
}

func (f *fakeDispatcher) InvitationCreated(ctx context.Context, p notifications.InvitationCreatedPayload) {
}

type fixture struct {
	service  *Service
	store    *fakeStore
	dir      *fakeDirectory
	dispatch *fakeDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	dir := &fakeDirectory{accounts: map[string]*directory.Identity{}}
	dispatch := &fakeDispatcher{}
	roleStore := &fakeRoleStore{roles: map[string]*roles.Role{
		staffRoleID: {ID: staffRoleID, TenantID: testTenantID, Name: "Staff", Slug: "staff"},
		ownerRoleID: {ID: ownerRoleID, TenantID: testTenantID, Name: "Owner", Slug: "owner", IsSystemRole: true},
	}}
	return &fixture{
		service: &Service{
			store:    store,
			roles:    roleStore,
			dir:      dir,
			dispatch: dispatch,
			baseURL:  "https://app.slotwise.test",
			log:      slog.Default(),
		},
		store:    store,
		dir:      dir,
		dispatch: dispatch,
	}
}

func actor() *auth.Principal {
	return &auth.Principal{
		Identity: directory.Identity{ID: "owner-identity", Email: "owner@acme.test", DisplayName: "Alice Owner"},
		Tenant:   auth.TenantInfo{ID: testTenantID, DisplayName: "Acme Studio", MaxTeamMembers: 3},
		Role:     auth.RoleInfo{Slug: auth.OwnerRoleSlug, Permissions: permissions.Full()},
		IsOwner:  true,
	}
}

func TestListEnrichesIdentityProfiles(t *testing.T) {
	f := newFixture(t)
	identityID := "acct-1"
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", Status: StatusActive, IdentityID: &identityID,
	}
	f.store.members["m2"] = &Member{ID: "m2", Email: "pending@acme.test", Status: StatusPending}
	f.dir.accounts["bo@acme.test"] = &directory.Identity{
		ID: identityID, Email: "bo@acme.test", DisplayName: "Bo From Directory",
	}

	resp, err := f.service.List(context.Background(), actor())
	require.NoError(t, err)
	require.Len(t, resp.Members, 2)

	byID := map[string]MemberView{}
	for _, v := range resp.Members {
		byID[v.ID] = v
	}
	assert.Equal(t, "Bo From Directory", byID["m1"].AccountName)
	assert.Equal(t, "bo@acme.test", byID["m1"].AccountEmail)
	assert.Empty(t, byID["m2"].AccountName, "no directory lookup without an identity")
	assert.Equal(t, 3, resp.MaxMembers)
}

func TestListSurvivesDirectoryOutage(t *testing.T) {
	f := newFixture(t)
	identityID := "acct-1"
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", Status: StatusActive, IdentityID: &identityID,
	}
	f.dir.lookupErr = errors.New("provider down")

	resp, err := f.service.List(context.Background(), actor())
	require.NoError(t, err)
	require.Len(t, resp.Members, 1)
	assert.Empty(t, resp.Members[0].AccountName)
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name string
		req  AddMemberRequest
	}{
		{"missing email", AddMemberRequest{DisplayName: "Bo Smith", RoleID: staffRoleID}},
		{"bad email", AddMemberRequest{Email: "not-an-email", DisplayName: "Bo Smith", RoleID: staffRoleID}},
		{"short display name", AddMemberRequest{Email: "bo@acme.test", DisplayName: "B", RoleID: staffRoleID}},
		{"missing role", AddMemberRequest{Email: "bo@acme.test", DisplayName: "Bo Smith"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Add(context.Background(), actor(), &tt.req)
			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, 400, appErr.HTTPStatus)
		})
	}
}

func TestAddRejectsSystemRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "bo@acme.test", DisplayName: "Bo Smith", RoleID: ownerRoleID,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestAddSeatLimit(t *testing.T) {
	f := newFixture(t)
	f.store.seatCount = 3
	_, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "bo@acme.test", DisplayName: "Bo Smith", RoleID: staffRoleID,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "seat_limit", appErr.Code)
}

func TestAddDuplicateActive(t *testing.T) {
	f := newFixture(t)
	f.store.members["m1"] = &Member{ID: "m1", Email: "bo@acme.test", Status: StatusActive}
	f.store.seatCount = 1

	_, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "Bo@Acme.test  ", DisplayName: "Bo Smith", RoleID: staffRoleID,
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "member_already_exists", appErr.Code)
}

func TestAddReusesPendingRow(t *testing.T) {
	f := newFixture(t)
	token := "existing-token"
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", DisplayName: "Old Name",
		Status: StatusPending, RoleID: "old-role", PasswordSetupToken: &token,
	}
	f.store.seatCount = 1

	member, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "bo@acme.test", DisplayName: "Bo Smith", RoleID: staffRoleID,
	})
	require.NoError(t, err)

	assert.Equal(t, "m1", member.ID)
	assert.Equal(t, "Bo Smith", member.DisplayName)
	assert.Equal(t, staffRoleID, member.RoleID)
	require.NotNil(t, member.PasswordSetupToken)
	assert.Equal(t, token, *member.PasswordSetupToken, "pending token survives re-add")
	require.NotNil(t, f.store.pendingSaved)
	assert.Equal(t, 1, f.store.seatCount, "no second seat consumed")
	require.Len(t, f.dispatch.invited, 1)
}

func TestAddWithExistingAccountIsActive(t *testing.T) {
	f := newFixture(t)
	f.dir.accounts["bo@acme.test"] = &directory.Identity{ID: "acct-1", Email: "bo@acme.test"}

	member, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "bo@acme.test", DisplayName: "Bo Smith", RoleID: staffRoleID,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, member.Status)
	require.NotNil(t, member.IdentityID)
	assert.Equal(t, "acct-1", *member.IdentityID)
	assert.Nil(t, member.PasswordSetupToken)
	assert.NotNil(t, member.JoinedAt)
	assert.NotNil(t, member.PasswordSetAt, "existing credentials mean no setup step remains")
	require.Len(t, f.dispatch.invited, 1)
	assert.Empty(t, f.dispatch.invited[0].SetupLink)
}

func TestAddWithoutAccountIsPending(t *testing.T) {
	f := newFixture(t)

	member, err := f.service.Add(context.Background(), actor(), &AddMemberRequest{
		Email: "bo@acme.test", DisplayName: "Bo Smith", RoleID: staffRoleID,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, member.Status)
	assert.Nil(t, member.IdentityID)
	require.NotNil(t, member.PasswordSetupToken)
	require.Len(t, f.dispatch.invited, 1)
	assert.Contains(t, f.dispatch.invited[0].SetupLink, "/setup/"+*member.PasswordSetupToken)
	assert.Contains(t, f.store.notified, member.ID)
}

func TestRemoveGuards(t *testing.T) {
	f := newFixture(t)
	f.store.members["self"] = &Member{ID: "self", Status: StatusActive, RoleID: staffRoleID}
	f.store.members["owner"] = &Member{ID: "owner", Status: StatusActive, RoleID: ownerRoleID}
	f.store.members["gone"] = &Member{ID: "gone", Status: StatusRemoved, RoleID: staffRoleID}

	self := actor()
	self.MemberID = "self"

	err := f.service.Remove(context.Background(), self, "self")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)

	err = f.service.Remove(context.Background(), actor(), "owner")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.Equal(t, "cannot_remove_owner", appErr.Code)

	err = f.service.Remove(context.Background(), actor(), "gone")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestRemoveSoftDeletes(t *testing.T) {
	f := newFixture(t)
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", DisplayName: "Bo Smith",
		Status: StatusActive, RoleID: staffRoleID,
	}

	require.NoError(t, f.service.Remove(context.Background(), actor(), "m1"))

	assert.Equal(t, []string{"m1"}, f.store.removed)
	assert.Equal(t, StatusRemoved, f.store.members["m1"].Status)
	require.Len(t, f.dispatch.removed, 1)
	assert.Equal(t, "bo@acme.test", f.dispatch.removed[0].Email)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", Status: StatusActive, RoleID: "old-role",
	}
	// old-role must resolve for the owner guard
	f.service.roles.(*fakeRoleStore).roles["old-role"] = &roles.Role{ID: "old-role", Slug: "manager"}

	err := f.service.ChangeRole(context.Background(), actor(), "m1", &ChangeRoleRequest{RoleID: staffRoleID})
	require.NoError(t, err)

	assert.Equal(t, staffRoleID, f.store.roleChanges["m1"])
	require.Len(t, f.dispatch.roleChanged, 1)
	assert.Equal(t, "Staff", f.dispatch.roleChanged[0].RoleLabel)
}

func TestChangeRoleNoOpWhenUnchanged(t *testing.T) {
	f := newFixture(t)
	f.store.members["m1"] = &Member{ID: "m1", Status: StatusActive, RoleID: staffRoleID}

	err := f.service.ChangeRole(context.Background(), actor(), "m1", &ChangeRoleRequest{RoleID: staffRoleID})
	require.NoError(t, err)

	assert.Empty(t, f.store.roleChanges)
	assert.Empty(t, f.dispatch.roleChanged)
}

func TestSendSetupNotification(t *testing.T) {
	f := newFixture(t)
	token := "tok"
	f.store.members["m1"] = &Member{
		ID: "m1", Email: "bo@acme.test", Status: StatusPending,
		RoleID: staffRoleID, PasswordSetupToken: &token,
	}

	require.NoError(t, f.service.SendSetupNotification(context.Background(), actor(), "m1"))

	require.Len(t, f.dispatch.setupLinks, 1)
	assert.Contains(t, f.dispatch.setupLinks[0].SetupLink, "/setup/tok")
	assert.Contains(t, f.store.notified, "m1")
}

func TestSendSetupNotificationAlreadySetUp(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.store.members["m1"] = &Member{
		ID: "m1", Status: StatusActive, RoleID: staffRoleID, PasswordSetAt: &now,
	}

	err := f.service.SendSetupNotification(context.Background(), actor(), "m1")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "already_set_up", appErr.Code)
}

func TestValidateSetup(t *testing.T) {
	f := newFixture(t)
	f.store.byToken["tok"] = &Member{
		ID: "m1", Email: "bo@acme.test", DisplayName: "Bo Smith", Status: StatusPending,
	}

	info, err := f.service.ValidateSetup(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "bo@acme.test", info.Email)
	assert.Equal(t, "Acme Studio", info.TenantName)

	_, err = f.service.ValidateSetup(context.Background(), "missing")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestCompleteSetup(t *testing.T) {
	f := newFixture(t)
	f.store.byToken["tok"] = &Member{
		ID: "m1", Email: "bo@acme.test", DisplayName: "Bo Smith", Status: StatusPending,
	}

	err := f.service.CompleteSetup(context.Background(), "tok", &CompleteSetupRequest{Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bo@acme.test"}, f.dir.created)

	// Token burned, second redemption fails.
	err = f.service.CompleteSetup(context.Background(), "tok", &CompleteSetupRequest{Password: "hunter2hunter2"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestCompleteSetupShortPassword(t *testing.T) {
	f := newFixture(t)
	err := f.service.CompleteSetup(context.Background(), "tok", &CompleteSetupRequest{Password: "short"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestCompleteSetupReusesExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.store.byToken["tok"] = &Member{ID: "m1", Email: "bo@acme.test", Status: StatusPending}
	f.dir.accounts["bo@acme.test"] = &directory.Identity{ID: "acct-1", Email: "bo@acme.test"}

	err := f.service.CompleteSetup(context.Background(), "tok", &CompleteSetupRequest{Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Empty(t, f.dir.created)
}

func TestCompleteSetupSucceedsWhenActivationFails(t *testing.T) {
	f := newFixture(t)
	f.store.byToken["tok"] = &Member{ID: "m1", Email: "bo@acme.test", Status: StatusPending}
	f.store.consumeErr = errors.New("connection reset")

	// Account was created; failing now would strand the person with a
	// password but no way to retry. The call reports success.
	err := f.service.CompleteSetup(context.Background(), "tok", &CompleteSetupRequest{Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bo@acme.test"}, f.dir.created)
}
