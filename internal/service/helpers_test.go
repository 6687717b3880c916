package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/mediaclient/mediaclienttest"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/store/sqlite"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var testRetry = mediaclient.RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

// testClock is a settable clock shared by every service in a testEnv.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires every service against a real sqlite store, an in-memory
// session store and fake vendors registered in a real registry.
type testEnv struct {
	store    *sqlite.Store
	sessions *progress.Store
	clock    *testClock
	jellyfin *mediaclienttest.Fake
	plex     *mediaclienttest.Fake
	clients  *ClientFactory

	invitations *InvitationService
	wizards     *WizardService
	servers     *ServerService
	redemptions *RedemptionService
	accounts    *AccountService
}

// newTestEnv builds an environment. plexCaps, when given, replaces the plex
// fake's capabilities.
func newTestEnv(t *testing.T, plexCaps ...mediaclient.Capability) *testEnv {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions, err := progress.OpenInMemory(time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	jf := mediaclienttest.New(domain.VendorJellyfin)
	px := mediaclienttest.New(domain.VendorPlex)
	if len(plexCaps) > 0 {
		px.Caps = mediaclient.NewCapabilitySet(plexCaps...)
	}

	registry := mediaclient.NewRegistry()
	registry.MustRegister(domain.VendorJellyfin, jf.Constructor(), jf.Caps)
	registry.MustRegister(domain.VendorPlex, px.Constructor(), px.Caps)
	registry.Seal()

	clock := &testClock{now: testStart}
	clients := NewClientFactory(registry, nil, time.Second, nil, nil)

	env := &testEnv{
		store:       st,
		sessions:    sessions,
		clock:       clock,
		jellyfin:    jf,
		plex:        px,
		clients:     clients,
		invitations: NewInvitationService(st, nil),
		wizards:     NewWizardService(st, interaction.DefaultRegistry(), nil),
		servers:     NewServerService(st, clients, testRetry, nil),
		redemptions: NewRedemptionService(st, sessions, clients, interaction.DefaultRegistry(), nil, nil,
			RedemptionConfig{Retry: testRetry, Timeout: 5 * time.Second, IdempotencySecret: []byte("test-secret")}, nil),
		accounts: NewAccountService(st, clients, testRetry, nil),
	}
	env.invitations.now = clock.Now
	env.wizards.now = clock.Now
	env.servers.now = clock.Now
	env.redemptions.now = clock.Now
	env.accounts.now = clock.Now
	return env
}

func (e *testEnv) newSweeper(cfg SweeperConfig) *Sweeper {
	s := NewSweeper(e.store, e.clients, nil, cfg, nil)
	s.now = e.clock.Now
	return s
}

func (e *testEnv) addServer(t *testing.T, name string, vendor domain.VendorType) *domain.MediaServer {
	t.Helper()
	srv, err := e.servers.Create(context.Background(), CreateServerRequest{
		Name:       name,
		Type:       vendor,
		URL:        "http://" + name + ".local",
		Credential: "secret",
	})
	require.NoError(t, err)
	return srv
}

func (e *testEnv) addInvitation(t *testing.T, req CreateInvitationRequest) *domain.Invitation {
	t.Helper()
	inv, err := e.invitations.Create(context.Background(), req)
	require.NoError(t, err)
	return inv
}

func (e *testEnv) addWizard(t *testing.T, name string, steps ...StepInput) *domain.Wizard {
	t.Helper()
	w, err := e.wizards.Save(context.Background(), SaveWizardRequest{Name: name, Steps: steps})
	require.NoError(t, err)
	return w
}

func (e *testEnv) invitation(t *testing.T, invitationID string) *domain.Invitation {
	t.Helper()
	inv, err := e.store.GetInvitation(context.Background(), invitationID)
	require.NoError(t, err)
	return inv
}

func (e *testEnv) users(t *testing.T) []*domain.User {
	t.Helper()
	users, err := e.store.ListUsers(context.Background())
	require.NoError(t, err)
	return users
}

func clickStep(title string) StepInput {
	return StepInput{Title: title, InteractionType: "click", Config: json.RawMessage(`{}`)}
}

func timerStep(title string, seconds int) StepInput {
	cfg, _ := json.Marshal(map[string]int{"duration_seconds": seconds})
	return StepInput{Title: title, InteractionType: "timer", Config: cfg}
}

var clicked = json.RawMessage(`{"acknowledged": true}`)

func intPtr(v int) *int { return &v }

func serverResult(t *testing.T, v *RedemptionView, serverID string) ServerResult {
	t.Helper()
	for _, r := range v.Servers {
		if r.ServerID == serverID {
			return r
		}
	}
	t.Fatalf("no result for server %s", serverID)
	return ServerResult{}
}

// redeem runs a code through Begin and Provision and returns the result.
func (e *testEnv) redeem(t *testing.T, code, username string) *RedemptionView {
	t.Helper()
	ctx := context.Background()
	view, err := e.redemptions.Begin(ctx, code)
	require.NoError(t, err)
	view, err = e.redemptions.Provision(ctx, view.ID, AccountRequest{Username: username, Password: "pw"})
	require.NoError(t, err)
	return view
}

func (e *testEnv) userOn(t *testing.T, serverID string) *domain.User {
	t.Helper()
	for _, u := range e.users(t) {
		if u.ServerID == serverID {
			return u
		}
	}
	t.Fatalf("no user on server %s", serverID)
	return nil
}
