package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/id"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

func TestInvitationService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	px := env.addServer(t, "plex", domain.VendorPlex)

	inv := env.addInvitation(t, CreateInvitationRequest{
		ServerIDs:   []string{jf.ID, px.ID, jf.ID},
		MaxUses:     intPtr(5),
		Permissions: domain.Permissions{AllowDownloads: true},
	})
	assert.Len(t, inv.Code, id.CodeLength)
	assert.Equal(t, []string{jf.ID, px.ID}, inv.ServerIDs, "duplicate servers are dropped")
	assert.True(t, inv.Enabled)
	assert.Equal(t, 0, inv.UseCount)

	got, err := env.invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Code, got.Code)
	assert.True(t, got.Permissions.AllowDownloads)

	list, err := env.invitations.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInvitationService_CreateRejects(t *testing.T) {
	env := newTestEnv(t)

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	other := env.addServer(t, "plex", domain.VendorPlex)
	past := testStart.Add(-time.Minute)

	env.addInvitation(t, CreateInvitationRequest{Code: "TAKEN123", ServerIDs: []string{jf.ID}})

	tests := []struct {
		name string
		req  CreateInvitationRequest
		want error
	}{
		{"no servers", CreateInvitationRequest{}, domainerrors.ErrValidation},
		{"unknown server", CreateInvitationRequest{ServerIDs: []string{"srv-missing"}}, domainerrors.ErrValidation},
		{"expiry in the past", CreateInvitationRequest{ServerIDs: []string{jf.ID}, ExpiresAt: &past}, domainerrors.ErrValidation},
		{"zero max uses", CreateInvitationRequest{ServerIDs: []string{jf.ID}, MaxUses: intPtr(0)}, domainerrors.ErrValidation},
		{"unknown library", CreateInvitationRequest{ServerIDs: []string{jf.ID}, LibraryIDs: []string{"lib-missing"}}, domainerrors.ErrValidation},
		{"unknown wizard", CreateInvitationRequest{ServerIDs: []string{other.ID}, PreWizardID: "wiz-missing"}, domainerrors.ErrValidation},
		{"custom code taken", CreateInvitationRequest{Code: "taken123", ServerIDs: []string{jf.ID}}, domainerrors.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.invitations.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInvitationService_LibraryMustBelongToTargetServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	px := env.addServer(t, "plex", domain.VendorPlex)
	env.plex.Libraries = []mediaclient.LibraryInfo{{ExternalID: "1", Name: "Movies", Kind: "movie"}}
	libs, err := env.servers.SyncLibraries(ctx, px.ID)
	require.NoError(t, err)

	_, err = env.invitations.Create(ctx, CreateInvitationRequest{ServerIDs: []string{jf.ID}, LibraryIDs: []string{libs[0].ID}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	inv, err := env.invitations.Create(ctx, CreateInvitationRequest{ServerIDs: []string{jf.ID, px.ID}, LibraryIDs: []string{libs[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{libs[0].ID}, inv.LibraryIDs)
}

func TestInvitationService_Check(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	pre := env.addWizard(t, "Welcome", clickStep("Hi"))
	expires := testStart.Add(time.Hour)
	inv := env.addInvitation(t, CreateInvitationRequest{
		ServerIDs:   []string{jf.ID},
		ExpiresAt:   &expires,
		MaxUses:     intPtr(2),
		PreWizardID: pre.ID,
	})

	check, err := env.invitations.Check(ctx, " "+inv.Code+" ")
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.Empty(t, check.Reason)
	assert.True(t, check.HasPreWizard)
	require.NotNil(t, check.RemainingUses)
	assert.Equal(t, 2, *check.RemainingUses)

	require.NoError(t, env.invitations.Disable(ctx, inv.ID))
	check, err = env.invitations.Check(ctx, inv.Code)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, domain.ReasonDisabled, check.Reason)
	assert.Equal(t, domain.ReasonDisabled.Message(), check.Message)

	env.clock.Advance(2 * time.Hour)
	check, err = env.invitations.Check(ctx, inv.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonExpired, check.Reason, "expiry is checked before disabled")

	check, err = env.invitations.Check(ctx, "UNKNOWN1")
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, domain.ReasonNotFound, check.Reason)
}

func TestInvitationService_DisableUnknown(t *testing.T) {
	env := newTestEnv(t)
	err := env.invitations.Disable(context.Background(), "inv-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABC123", NormalizeCode("  abc123\n"))
	assert.Equal(t, "", NormalizeCode("   "))
}
