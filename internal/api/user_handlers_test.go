package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/service"
)

// redeemedUser runs a code with no wizard through the public API and
// returns the account created on jellyfin.
func redeemedUser(t *testing.T, ts *testServer) *domain.User {
	t.Helper()
	jf := ts.createServer(t, "jf", "jellyfin")
	ts.createInvitation(t, map[string]any{"code": "ACCOUNT1", "server_ids": []string{jf.ID}})

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "ACCOUNT1"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	view := decodeData[service.RedemptionView](t, resp)
	require.Equal(t, progress.StateReady, view.State)

	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/provision", map[string]any{"username": "carol", "password": "pw"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/admin/users", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	users := decodeData[ListUsersResponse](t, resp).Users
	require.Len(t, users, 1)
	return users[0]
}

func TestUsers_ListAndGet(t *testing.T) {
	ts := setupTestServer(t)
	u := redeemedUser(t, ts)

	assert.Equal(t, "carol", u.Username)
	assert.Equal(t, domain.UserActive, u.Status)

	resp := ts.api.Get("/api/v1/admin/users/"+u.ID, adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, u.ExternalID, decodeData[domain.User](t, resp).ExternalID)

	resp = ts.api.Get("/api/v1/admin/users/usr-missing", adminAuth)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUsers_DisableAndEnable(t *testing.T) {
	ts := setupTestServer(t)
	u := redeemedUser(t, ts)

	resp := ts.api.Post("/api/v1/admin/users/"+u.ID+"/disable", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, domain.UserDisabled, decodeData[domain.User](t, resp).Status)

	account, ok := ts.jellyfin.Account(u.ExternalID)
	require.True(t, ok)
	assert.True(t, account.Disabled)

	resp = ts.api.Post("/api/v1/admin/users/"+u.ID+"/enable", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, domain.UserActive, decodeData[domain.User](t, resp).Status)
}

func TestUsers_UpdatePermissions(t *testing.T) {
	ts := setupTestServer(t)
	u := redeemedUser(t, ts)

	resp := ts.api.Put("/api/v1/admin/users/"+u.ID+"/permissions", adminAuth, map[string]any{
		"allow_live_tv": true,
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, decodeData[domain.User](t, resp).Permissions.AllowLiveTV)
	account, _ := ts.jellyfin.Account(u.ExternalID)
	assert.True(t, account.Permissions.AllowLiveTV)
}

func TestUsers_Delete(t *testing.T) {
	ts := setupTestServer(t)
	u := redeemedUser(t, ts)

	resp := ts.api.Delete("/api/v1/admin/users/"+u.ID, adminAuth)
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	_, ok := ts.jellyfin.Account(u.ExternalID)
	assert.False(t, ok)

	resp = ts.api.Get("/api/v1/admin/users/"+u.ID, adminAuth)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUsers_CapabilityUnsupported(t *testing.T) {
	ts := setupTestServer(t)
	u := redeemedUser(t, ts)
	ts.jellyfin.FailNext("disable_account", &mediaclient.CapabilityUnsupportedError{
		Vendor:     domain.VendorJellyfin,
		Capability: mediaclient.CapDisableAccount,
	})

	resp := ts.api.Post("/api/v1/admin/users/"+u.ID+"/disable", adminAuth)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "CAPABILITY_UNSUPPORTED", decodeFailure(t, resp).Code)
}

func TestRunSweep(t *testing.T) {
	ts := setupTestServer(t)
	redeemedUser(t, ts)

	resp := ts.api.Post("/api/v1/admin/sweep", adminAuth)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	report := decodeData[service.SweepReport](t, resp)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Disabled)
}
