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

func TestRedemption_FullFlow(t *testing.T) {
	ts := setupTestServer(t)
	jf := ts.createServer(t, "jf", "jellyfin")
	px := ts.createServer(t, "px", "plex")
	w := ts.createWizard(t, "Rules", clickStep("Welcome"), clickStep("House rules"))
	inv := ts.createInvitation(t, map[string]any{
		"code":          "MOVIENIGHT",
		"max_uses":      1,
		"server_ids":    []string{jf.ID, px.ID},
		"pre_wizard_id": w.ID,
	})

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "movienight"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	view := decodeData[service.RedemptionView](t, resp)
	assert.Equal(t, progress.StateStepSequence, view.State)
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, w.Steps[0].ID, view.CurrentStep.ID)
	assert.Equal(t, 2, view.CurrentStep.Total)

	// Provisioning before the steps are done is refused.
	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/provision", map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "STEP_VALIDATION", decodeFailure(t, resp).Code)

	for _, step := range w.Steps {
		resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/steps/validate", map[string]any{
			"step_id":  step.ID,
			"response": map[string]any{"acknowledged": true},
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		result := decodeData[service.StepResult](t, resp)
		assert.True(t, result.Valid)
	}

	resp = ts.api.Get("/api/v1/redemptions/" + view.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, progress.StateReady, decodeData[service.RedemptionView](t, resp).State)

	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/provision", map[string]any{
		"username": "alice",
		"password": "hunter22",
		"email":    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	done := decodeData[service.RedemptionView](t, resp)
	assert.Equal(t, progress.StateCompleted, done.State)
	require.Len(t, done.Servers, 2)
	for _, r := range done.Servers {
		assert.Equal(t, progress.ServerSucceeded, r.Status)
	}

	assert.Len(t, ts.jellyfin.Accounts(), 1)
	assert.Len(t, ts.plex.Accounts(), 1)

	// The single use is spent.
	resp = ts.api.Get("/api/v1/invitations/" + inv.Code)
	require.Equal(t, http.StatusOK, resp.Code)
	check := decodeData[service.InvitationCheck](t, resp)
	assert.False(t, check.Valid)
	assert.Equal(t, "exhausted", string(check.Reason))
}

func TestRedemption_InvalidCode(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "NOPE1234"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	env := decodeFailure(t, resp)
	assert.Equal(t, "INVITATION_INVALID", env.Code)
	assert.JSONEq(t, `{"reason":"not_found"}`, string(env.Details))
}

func TestRedemption_UnknownID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/redemptions/does-not-exist")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeFailure(t, resp).Code)
}

func TestRedemption_FailedStepKeepsPosition(t *testing.T) {
	ts := setupTestServer(t)
	jf := ts.createServer(t, "jf", "jellyfin")
	w := ts.createWizard(t, "Rules", clickStep("Welcome"))
	ts.createInvitation(t, map[string]any{
		"code":          "RULES123",
		"server_ids":    []string{jf.ID},
		"pre_wizard_id": w.ID,
	})

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "RULES123"})
	require.Equal(t, http.StatusCreated, resp.Code)
	view := decodeData[service.RedemptionView](t, resp)

	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/steps/validate", map[string]any{
		"step_id":  w.Steps[0].ID,
		"response": map[string]any{"acknowledged": false},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	result := decodeData[service.StepResult](t, resp)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, progress.StateStepSequence, result.Redemption.State)
	assert.Equal(t, w.Steps[0].ID, result.Redemption.CurrentStep.ID)
}

func TestRedemption_WrongStep(t *testing.T) {
	ts := setupTestServer(t)
	jf := ts.createServer(t, "jf", "jellyfin")
	w := ts.createWizard(t, "Rules", clickStep("One"), clickStep("Two"))
	ts.createInvitation(t, map[string]any{
		"code":          "ORDER123",
		"server_ids":    []string{jf.ID},
		"pre_wizard_id": w.ID,
	})

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "ORDER123"})
	require.Equal(t, http.StatusCreated, resp.Code)
	view := decodeData[service.RedemptionView](t, resp)

	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/steps/validate", map[string]any{
		"step_id":  w.Steps[1].ID,
		"response": map[string]any{"acknowledged": true},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	env := decodeFailure(t, resp)
	assert.Equal(t, "STEP_VALIDATION", env.Code)
	assert.JSONEq(t, `{"step_id":"`+w.Steps[1].ID+`"}`, string(env.Details))
}

func TestRedemption_MissingUsername(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/redemptions/any/provision", map[string]any{"password": "x"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "VALIDATION", decodeFailure(t, resp).Code)
}

func TestAdminRedemptions_ListAndRetry(t *testing.T) {
	ts := setupTestServer(t)
	jf := ts.createServer(t, "jf", "jellyfin")
	px := ts.createServer(t, "px", "plex")
	ts.createInvitation(t, map[string]any{
		"code":       "PARTIAL1",
		"server_ids": []string{jf.ID, px.ID},
	})

	ts.plex.FailNext("create_account", mediaclient.HTTPError(domain.VendorPlex, "create_account", 400, "friend request rejected"))

	resp := ts.api.Post("/api/v1/redemptions", map[string]any{"code": "PARTIAL1"})
	require.Equal(t, http.StatusCreated, resp.Code)
	view := decodeData[service.RedemptionView](t, resp)

	resp = ts.api.Post("/api/v1/redemptions/"+view.ID+"/provision", map[string]any{"username": "bob", "password": "pw"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, progress.StatePartiallyCompleted, decodeData[service.RedemptionView](t, resp).State)

	resp = ts.api.Get("/api/v1/admin/redemptions?state=partially_completed", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	list := decodeData[ListRedemptionsResponse](t, resp)
	require.Len(t, list.Redemptions, 1)
	assert.Equal(t, view.ID, list.Redemptions[0].ID)

	resp = ts.api.Get("/api/v1/admin/redemptions?state=completed", adminAuth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeData[ListRedemptionsResponse](t, resp).Redemptions)

	resp = ts.api.Post("/api/v1/admin/redemptions/"+view.ID+"/servers/"+px.ID+"/retry", adminAuth,
		map[string]any{"password": "pw"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, progress.StateCompleted, decodeData[service.RedemptionView](t, resp).State)
	assert.Len(t, ts.plex.Accounts(), 1)

	// A succeeded server cannot be retried.
	resp = ts.api.Post("/api/v1/admin/redemptions/"+view.ID+"/servers/"+jf.ID+"/retry", adminAuth,
		map[string]any{"password": "pw"})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAdminRedemptions_RequiresToken(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/admin/redemptions")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeFailure(t, resp).Code)
}
