package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/service"
)

func TestListVendors(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/admin/vendors", adminAuth)

	require.Equal(t, http.StatusOK, resp.Code)
	vendors := decodeData[ListVendorsResponse](t, resp).Vendors
	require.Len(t, vendors, 2)
	assert.Equal(t, domain.VendorJellyfin, vendors[0].Type)
	assert.Equal(t, domain.VendorPlex, vendors[1].Type)
	assert.Contains(t, vendors[0].Capabilities, mediaclient.CapCreateAccount)
}

func TestCreateServer_NeverReturnsCredential(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/admin/servers", adminAuth, map[string]any{
		"name":       "Living room",
		"type":       "jellyfin",
		"url":        "http://jellyfin.local:8096/",
		"credential": "super-secret-api-key",
	})

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.False(t, strings.Contains(resp.Body.String(), "super-secret-api-key"))
	server := decodeData[ServerResponse](t, resp)
	assert.Equal(t, "Living room", server.Name)
	assert.Equal(t, domain.VendorJellyfin, server.Type)
	assert.True(t, server.Enabled)
}

func TestCreateServer_UnknownVendor(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/admin/servers", adminAuth, map[string]any{
		"name":       "Emby",
		"type":       "emby",
		"url":        "http://emby.local",
		"credential": "key",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	env := decodeFailure(t, resp)
	assert.Equal(t, "UNKNOWN_VENDOR", env.Code)
	assert.JSONEq(t, `{"vendor":"emby"}`, string(env.Details))
}

func TestUpdateServer(t *testing.T) {
	ts := setupTestServer(t)
	created := ts.createServer(t, "jf", "jellyfin")

	resp := ts.api.Patch("/api/v1/admin/servers/"+created.ID, adminAuth, map[string]any{
		"name":    "Renamed",
		"enabled": false,
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decodeData[ServerResponse](t, resp)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Enabled)
	assert.Equal(t, created.URL, updated.URL)

	resp = ts.api.Get("/api/v1/admin/servers", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	servers := decodeData[ListServersResponse](t, resp).Servers
	require.Len(t, servers, 1)
	assert.Equal(t, "Renamed", servers[0].Name)

	resp = ts.api.Patch("/api/v1/admin/servers/srv-missing", adminAuth, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestServerCapabilities(t *testing.T) {
	ts := setupTestServer(t)
	created := ts.createServer(t, "px", "plex")

	resp := ts.api.Get("/api/v1/admin/servers/"+created.ID+"/capabilities", adminAuth)

	require.Equal(t, http.StatusOK, resp.Code)
	caps := decodeData[service.ServerCapabilities](t, resp)
	assert.Equal(t, created.ID, caps.ServerID)
	assert.Equal(t, domain.VendorPlex, caps.Vendor)
	assert.NotEmpty(t, caps.Capabilities)
}

func TestSyncLibraries(t *testing.T) {
	ts := setupTestServer(t)
	created := ts.createServer(t, "jf", "jellyfin")

	resp := ts.api.Get("/api/v1/admin/servers/"+created.ID+"/libraries", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeData[LibrariesResponse](t, resp).Libraries)

	resp = ts.api.Post("/api/v1/admin/servers/"+created.ID+"/libraries/sync", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	libs := decodeData[LibrariesResponse](t, resp).Libraries
	require.Len(t, libs, 2)

	names := []string{libs[0].Name, libs[1].Name}
	assert.ElementsMatch(t, []string{"Movies", "Shows"}, names)
	for _, lib := range libs {
		assert.Equal(t, created.ID, lib.ServerID)
	}
}

func TestSyncLibraries_VendorFailure(t *testing.T) {
	ts := setupTestServer(t)
	created := ts.createServer(t, "jf", "jellyfin")
	ts.jellyfin.FailNext("list_libraries",
		mediaclient.HTTPError(domain.VendorJellyfin, "list_libraries", 401, "bad api key"))

	resp := ts.api.Post("/api/v1/admin/servers/"+created.ID+"/libraries/sync", adminAuth)

	assert.Equal(t, http.StatusBadGateway, resp.Code)
	env := decodeFailure(t, resp)
	assert.Equal(t, "VENDOR", env.Code)
	assert.NotContains(t, resp.Body.String(), "bad api key")
	assert.JSONEq(t, `{"vendor":"jellyfin","operation":"list_libraries","kind":"auth","retryable":false}`, string(env.Details))
}
