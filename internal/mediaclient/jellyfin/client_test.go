package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

const testKey = "test-api-key"

// fakeJellyfin is a minimal in-memory Jellyfin user API.
type fakeJellyfin struct {
	mu       sync.Mutex
	users    map[string]*user
	nextID   int
	failNext int // status to return on the next request, 0 = none
	creates  int
}

func newFakeJellyfin() *fakeJellyfin {
	return &fakeJellyfin{users: make(map[string]*user)}
}

func (f *fakeJellyfin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get(authHeader) != testKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failNext != 0 {
		w.WriteHeader(f.failNext)
		f.failNext = 0
		return
	}

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && path == "/Users":
		out := make([]user, 0, len(f.users))
		for _, u := range f.users {
			out = append(out, *u)
		}
		_ = json.NewEncoder(w).Encode(out)

	case r.Method == http.MethodPost && path == "/Users/New":
		var req newUserRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.creates++
		f.nextID++
		u := &user{ID: fmt.Sprintf("u%d", f.nextID), Name: req.Name, Policy: policy{"AuthenticationProviderId": "default"}}
		f.users[u.ID] = u
		_ = json.NewEncoder(w).Encode(u)

	case r.Method == http.MethodGet && path == "/Library/MediaFolders":
		_, _ = w.Write([]byte(`{"Items":[{"Id":"lib-movies","Name":"Movies","CollectionType":"movies"},{"Id":"lib-tv","Name":"Shows","CollectionType":"tvshows"}]}`))

	case strings.HasPrefix(path, "/Users/"):
		rest := strings.TrimPrefix(path, "/Users/")
		id, sub, _ := strings.Cut(rest, "/")
		u, ok := f.users[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case r.Method == http.MethodGet && sub == "":
			_ = json.NewEncoder(w).Encode(u)
		case r.Method == http.MethodPost && sub == "Policy":
			var p policy
			_ = json.NewDecoder(r.Body).Decode(&p)
			u.Policy = p
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && sub == "":
			delete(f.users, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeJellyfin) get(id string) *user {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeJellyfin) counts() (users, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), f.creates
}

func newTestClient(t *testing.T, fake *fakeJellyfin) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := New(mediaclient.Config{ServerID: "srv-jf", BaseURL: server.URL, Credential: testKey}, Options{})
	require.NoError(t, err)
	return client
}

func TestClient_CreateAccount(t *testing.T) {
	fake := newFakeJellyfin()
	client := newTestClient(t, fake)

	acct, err := client.CreateAccount(context.Background(), mediaclient.ProvisionRequest{
		IdempotencyToken: "tok-1",
		Username:         "alice",
		Password:         "secret",
		Email:            "alice@example.com",
		LibraryIDs:       []string{"lib-movies"},
		Permissions:      domain.Permissions{AllowDownloads: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.Equal(t, "alice@example.com", acct.Email)

	stored := fake.get(acct.ID)
	require.NotNil(t, stored)
	assert.Equal(t, false, stored.Policy["EnableAllFolders"])
	assert.Equal(t, []any{"lib-movies"}, stored.Policy["EnabledFolders"])
	assert.Equal(t, true, stored.Policy["EnableContentDownloading"])
	assert.Equal(t, false, stored.Policy["EnableLiveTvAccess"])
	assert.Equal(t, "default", stored.Policy["AuthenticationProviderId"], "unmanaged policy fields are preserved")
}

func TestClient_CreateAccount_RetryWithSameTokenIsIdempotent(t *testing.T) {
	fake := newFakeJellyfin()
	client := newTestClient(t, fake)
	req := mediaclient.ProvisionRequest{IdempotencyToken: "tok-1", Username: "bob"}

	first, err := client.CreateAccount(context.Background(), req)
	require.NoError(t, err)

	second, err := client.CreateAccount(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	_, creates := fake.counts()
	assert.Equal(t, 1, creates)
}

func TestClient_CreateAccount_NameCollision(t *testing.T) {
	fake := newFakeJellyfin()
	client := newTestClient(t, fake)

	_, err := client.CreateAccount(context.Background(), mediaclient.ProvisionRequest{IdempotencyToken: "tok-1", Username: "carol"})
	require.NoError(t, err)

	_, err = client.CreateAccount(context.Background(), mediaclient.ProvisionRequest{IdempotencyToken: "tok-2", Username: "Carol"})
	var ve *mediaclient.VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, mediaclient.KindConflict, ve.Kind)
	assert.False(t, ve.Retryable)
	_, creates := fake.counts()
	assert.Equal(t, 1, creates)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  mediaclient.ErrorKind
		retryable bool
	}{
		{"server error", http.StatusServiceUnavailable, mediaclient.KindUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, mediaclient.KindRateLimited, true},
		{"bad request", http.StatusBadRequest, mediaclient.KindInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeJellyfin()
			fake.failNext = tt.status
			client := newTestClient(t, fake)

			_, err := client.ListLibraries(context.Background())
			var ve *mediaclient.VendorError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantKind, ve.Kind)
			assert.Equal(t, tt.retryable, ve.Retryable)
			assert.Equal(t, domain.VendorJellyfin, ve.Vendor)
		})
	}
}

func TestClient_BadCredential(t *testing.T) {
	server := httptest.NewServer(newFakeJellyfin())
	defer server.Close()

	client, err := New(mediaclient.Config{BaseURL: server.URL, Credential: "wrong"}, Options{})
	require.NoError(t, err)

	_, err = client.ListLibraries(context.Background())
	var ve *mediaclient.VendorError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, mediaclient.KindAuth, ve.Kind)
	assert.False(t, ve.Retryable)
}

func TestClient_ListLibraries(t *testing.T) {
	client := newTestClient(t, newFakeJellyfin())

	libs, err := client.ListLibraries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []mediaclient.LibraryInfo{
		{ExternalID: "lib-movies", Name: "Movies", Kind: "movies"},
		{ExternalID: "lib-tv", Name: "Shows", Kind: "tvshows"},
	}, libs)
}

func TestClient_DisableEnableDelete(t *testing.T) {
	fake := newFakeJellyfin()
	client := newTestClient(t, fake)
	ctx := context.Background()

	acct, err := client.CreateAccount(ctx, mediaclient.ProvisionRequest{Username: "dave"})
	require.NoError(t, err)

	require.NoError(t, client.DisableAccount(ctx, acct.ID))
	assert.Equal(t, true, fake.get(acct.ID).Policy["IsDisabled"])

	require.NoError(t, client.EnableAccount(ctx, acct.ID))
	assert.Equal(t, false, fake.get(acct.ID).Policy["IsDisabled"])

	require.NoError(t, client.SetLibraryAccess(ctx, acct.ID, nil))
	assert.Equal(t, true, fake.get(acct.ID).Policy["EnableAllFolders"])

	require.NoError(t, client.DeleteAccount(ctx, acct.ID))
	users, _ := fake.counts()
	assert.Zero(t, users)

	err = client.DeleteAccount(ctx, acct.ID)
	assert.Equal(t, mediaclient.KindNotFound, mediaclient.KindOf(err))
}

func TestRegister(t *testing.T) {
	r := mediaclient.NewRegistry()
	require.NoError(t, Register(r, Options{}))

	caps, err := r.GetCapabilities(domain.VendorJellyfin)
	require.NoError(t, err)
	assert.True(t, caps.Has(mediaclient.CapDisableAccount))

	_, err = r.CreateClient(domain.VendorJellyfin, mediaclient.Config{BaseURL: "http://jellyfin.local"})
	assert.Error(t, err, "missing credential")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(mediaclient.Config{Credential: "k"}, Options{})
	assert.Error(t, err)

	_, err = New(mediaclient.Config{BaseURL: "http://x"}, Options{})
	assert.Error(t, err)
}
