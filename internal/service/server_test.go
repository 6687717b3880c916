package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

func TestServerService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv, err := env.servers.Create(ctx, CreateServerRequest{
		Name:       " Living room ",
		Type:       domain.VendorJellyfin,
		URL:        "http://jellyfin.local:8096/",
		Credential: "api-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "Living room", srv.Name)
	assert.Equal(t, "http://jellyfin.local:8096", srv.URL)
	assert.True(t, srv.Enabled)

	got, err := env.servers.Get(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, "api-key", got.Credential)

	_, err = env.servers.Create(ctx, CreateServerRequest{
		Name:       "emby",
		Type:       "emby",
		URL:        "http://emby.local",
		Credential: "key",
	})
	var unknown *mediaclient.UnknownVendorTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.VendorType("emby"), unknown.Vendor)

	_, err = env.servers.Get(ctx, "srv-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestServerService_Capabilities(t *testing.T) {
	env := newTestEnv(t, mediaclient.CapCreateAccount, mediaclient.CapDeleteAccount)
	ctx := context.Background()

	px := env.addServer(t, "plex", domain.VendorPlex)
	caps, err := env.servers.Capabilities(ctx, px.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VendorPlex, caps.Vendor)
	assert.ElementsMatch(t, []mediaclient.Capability{mediaclient.CapCreateAccount, mediaclient.CapDeleteAccount}, caps.Capabilities)

	vendors := env.servers.VendorCapabilities()
	assert.Len(t, vendors, 2)
	assert.Len(t, vendors[domain.VendorJellyfin], len(mediaclient.AllCapabilities))
}

func TestServerService_SyncLibraries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	env.jellyfin.Libraries = []mediaclient.LibraryInfo{
		{ExternalID: "a", Name: "Movies", Kind: "movies"},
		{ExternalID: "b", Name: "Music", Kind: "music"},
	}
	env.jellyfin.FailNext("list_libraries", mediaclient.HTTPError(domain.VendorJellyfin, "list_libraries", 503, "starting"))

	libs, err := env.servers.SyncLibraries(ctx, jf.ID)
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, 2, env.jellyfin.Calls("list_libraries"), "transient failures are retried")

	ids := map[string]string{}
	for _, lib := range libs {
		ids[lib.ExternalID] = lib.ID
	}

	// Library IDs survive a resync; vanished libraries are pruned.
	env.jellyfin.Libraries = env.jellyfin.Libraries[:1]
	libs, err = env.servers.SyncLibraries(ctx, jf.ID)
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, ids["a"], libs[0].ID)

	stored, err := env.servers.Libraries(ctx, jf.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestServerService_SyncAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	px := env.addServer(t, "plex", domain.VendorPlex)
	env.plex.FailNext("list_libraries", mediaclient.HTTPError(domain.VendorPlex, "list_libraries", 401, "bad token"))

	failures := env.servers.SyncAll(ctx)
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, px.ID)
	assert.NotContains(t, failures, jf.ID)
}

func TestServerService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)
	env.clock.Advance(time.Minute)

	name := " Den "
	disabled := false
	srv, err := env.servers.Update(ctx, jf.ID, UpdateServerRequest{Name: &name, Enabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, "Den", srv.Name)
	assert.False(t, srv.Enabled)
	assert.Equal(t, jf.URL, srv.URL, "unset fields are kept")
	assert.Equal(t, testStart.Add(time.Minute), srv.UpdatedAt)

	got, err := env.servers.Get(ctx, jf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Den", got.Name)
	assert.Equal(t, "secret", got.Credential)

	badURL := "not a url"
	_, err = env.servers.Update(ctx, jf.ID, UpdateServerRequest{URL: &badURL})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = env.servers.Update(ctx, "srv-missing", UpdateServerRequest{Name: &name})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestClientFactory_CachesUntilConnectionChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jf := env.addServer(t, "jellyfin", domain.VendorJellyfin)

	first, err := env.clients.For(jf)
	require.NoError(t, err)
	again, err := env.clients.For(jf)
	require.NoError(t, err)
	assert.Same(t, first, again)

	name := "Renamed"
	srv, err := env.servers.Update(ctx, jf.ID, UpdateServerRequest{Name: &name})
	require.NoError(t, err)
	kept, err := env.clients.For(srv)
	require.NoError(t, err)
	assert.Same(t, first, kept, "a rename keeps the client")

	url := "http://jellyfin-new.local"
	srv, err = env.servers.Update(ctx, jf.ID, UpdateServerRequest{URL: &url})
	require.NoError(t, err)
	fresh, err := env.clients.For(srv)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}
