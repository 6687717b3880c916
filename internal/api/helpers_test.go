package api

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/http/response"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/mediaclient/mediaclienttest"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/service"
	"github.com/invitarr/invitarr-server/internal/store/sqlite"
)

const testAdminToken = "test-admin-token-0123456789"

const adminAuth = "Authorization: Bearer " + testAdminToken

var testRetry = mediaclient.RetryPolicy{
	MaxAttempts:     2,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

type testServer struct {
	server   *Server
	api      humatest.TestAPI
	jellyfin *mediaclienttest.Fake
	plex     *mediaclienttest.Fake
}

// setupTestServer wires a server against a real sqlite store, an in-memory
// session store and fake vendors. opts may override the defaults.
func setupTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions, err := progress.OpenInMemory(time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	jf := mediaclienttest.New(domain.VendorJellyfin)
	jf.Libraries = []mediaclient.LibraryInfo{
		{ExternalID: "jf-movies", Name: "Movies", Kind: "movies"},
		{ExternalID: "jf-shows", Name: "Shows", Kind: "tvshows"},
	}
	px := mediaclienttest.New(domain.VendorPlex)

	registry := mediaclient.NewRegistry()
	registry.MustRegister(domain.VendorJellyfin, jf.Constructor(), jf.Caps)
	registry.MustRegister(domain.VendorPlex, px.Constructor(), px.Caps)
	registry.Seal()

	clients := service.NewClientFactory(registry, nil, time.Second, nil, nil)
	interactions := interaction.DefaultRegistry()

	services := &Services{
		Invitations: service.NewInvitationService(st, nil),
		Wizards:     service.NewWizardService(st, interactions, nil),
		Servers:     service.NewServerService(st, clients, testRetry, nil),
		Redemptions: service.NewRedemptionService(st, sessions, clients, interactions, nil, nil,
			service.RedemptionConfig{Retry: testRetry, Timeout: 5 * time.Second, IdempotencySecret: []byte("test-secret")}, nil),
		Accounts: service.NewAccountService(st, clients, testRetry, nil),
		Sweeper: service.NewSweeper(st, clients, nil, service.SweeperConfig{
			Interval:        time.Hour,
			Action:          service.ExpiryDisable,
			DisableFallback: service.FallbackReport,
		}, nil),
		Interactions: interactions,
	}

	o := Options{Version: "test", AdminToken: testAdminToken}
	for _, fn := range opts {
		fn(&o)
	}

	srv := NewServer(st, sessions, services, o, nil)
	return &testServer{
		server:   srv,
		api:      humatest.Wrap(t, srv.API()),
		jellyfin: jf,
		plex:     px,
	}
}

// envelope is the decoded response wrapper with data left raw.
type envelope struct {
	V       int             `json:"v"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	require.Equal(t, response.Version, env.V)
	return env
}

// decodeData unmarshals the data of a successful response into T.
func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success, resp.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// decodeFailure returns the envelope of a failed response.
func decodeFailure(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	env := decodeEnvelope(t, resp)
	require.False(t, env.Success, resp.Body.String())
	return env
}

func (ts *testServer) createServer(t *testing.T, name, vendor string) ServerResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/admin/servers", adminAuth, map[string]any{
		"name":       name,
		"type":       vendor,
		"url":        "http://" + name + ".local",
		"credential": "secret",
	})
	require.Equal(t, 201, resp.Code, resp.Body.String())
	return decodeData[ServerResponse](t, resp)
}

func (ts *testServer) createWizard(t *testing.T, name string, steps ...map[string]any) *domain.Wizard {
	t.Helper()
	if steps == nil {
		steps = []map[string]any{}
	}
	resp := ts.api.Post("/api/v1/admin/wizards", adminAuth, map[string]any{
		"name":  name,
		"steps": steps,
	})
	require.Equal(t, 201, resp.Code, resp.Body.String())
	w := decodeData[domain.Wizard](t, resp)
	return &w
}

func (ts *testServer) createInvitation(t *testing.T, body map[string]any) InvitationResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/admin/invitations", adminAuth, body)
	require.Equal(t, 201, resp.Code, resp.Body.String())
	return decodeData[InvitationResponse](t, resp)
}

func clickStep(title string) map[string]any {
	return map[string]any{"title": title, "interaction_type": "click", "config": map[string]any{}}
}
