package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/metrics"
	"github.com/invitarr/invitarr-server/internal/ratelimit"
)

// ClientFactory builds vendor clients for stored media servers.
// Clients are cached per server while its URL and credential are unchanged;
// the vendor clients are safe for concurrent use.
type ClientFactory struct {
	registry *mediaclient.Registry
	limiter  *ratelimit.KeyedRateLimiter
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedClient
}

type cachedClient struct {
	url        string
	credential string
	client     mediaclient.Client
}

// NewClientFactory creates a factory. limiter and m may be nil.
func NewClientFactory(registry *mediaclient.Registry, limiter *ratelimit.KeyedRateLimiter, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *ClientFactory {
	return &ClientFactory{
		registry: registry,
		limiter:  limiter,
		timeout:  timeout,
		metrics:  m,
		logger:   orDiscard(logger),
		cache:    make(map[string]cachedClient),
	}
}

// Registry returns the vendor registry.
func (f *ClientFactory) Registry() *mediaclient.Registry {
	return f.registry
}

// Capabilities returns the declared capabilities of the server's vendor.
func (f *ClientFactory) Capabilities(server *domain.MediaServer) (mediaclient.CapabilitySet, error) {
	return f.registry.GetCapabilities(server.Type)
}

// For returns a client for server.
func (f *ClientFactory) For(server *domain.MediaServer) (mediaclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.cache[server.ID]; ok && c.url == server.URL && c.credential == server.Credential {
		return c.client, nil
	}

	logger := f.logger.With("server_id", server.ID, "vendor", string(server.Type))
	client, err := f.registry.CreateClient(server.Type, mediaclient.ConfigFor(server, f.timeout, f.limiter, logger))
	if err != nil {
		return nil, err
	}
	client = &instrumentedClient{Client: client, vendor: string(server.Type), metrics: f.metrics}
	f.cache[server.ID] = cachedClient{url: server.URL, credential: server.Credential, client: client}
	return client, nil
}

// Forget drops the cached client and rate bucket for a server whose
// connection details changed.
func (f *ClientFactory) Forget(serverID string) {
	f.mu.Lock()
	delete(f.cache, serverID)
	f.mu.Unlock()
	if f.limiter != nil {
		f.limiter.Forget(serverID)
	}
}

// instrumentedClient records every vendor operation in metrics.
type instrumentedClient struct {
	mediaclient.Client
	vendor  string
	metrics *metrics.Metrics
}

func (c *instrumentedClient) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		if mediaclient.IsCapabilityUnsupported(err) {
			result = "unsupported"
		} else {
			result = string(mediaclient.KindOf(err))
		}
	}
	c.metrics.VendorCall(c.vendor, op, result, time.Since(start))
}

func (c *instrumentedClient) CreateAccount(ctx context.Context, req mediaclient.ProvisionRequest) (*mediaclient.ExternalAccount, error) {
	start := time.Now()
	acct, err := c.Client.CreateAccount(ctx, req)
	c.observe("create_account", start, err)
	return acct, err
}

func (c *instrumentedClient) SetLibraryAccess(ctx context.Context, externalID string, libraryIDs []string) error {
	start := time.Now()
	err := c.Client.SetLibraryAccess(ctx, externalID, libraryIDs)
	c.observe("set_library_access", start, err)
	return err
}

func (c *instrumentedClient) SetPermissions(ctx context.Context, externalID string, perms domain.Permissions) error {
	start := time.Now()
	err := c.Client.SetPermissions(ctx, externalID, perms)
	c.observe("set_permissions", start, err)
	return err
}

func (c *instrumentedClient) DisableAccount(ctx context.Context, externalID string) error {
	start := time.Now()
	err := c.Client.DisableAccount(ctx, externalID)
	c.observe("disable_account", start, err)
	return err
}

func (c *instrumentedClient) EnableAccount(ctx context.Context, externalID string) error {
	start := time.Now()
	err := c.Client.EnableAccount(ctx, externalID)
	c.observe("enable_account", start, err)
	return err
}

func (c *instrumentedClient) DeleteAccount(ctx context.Context, externalID string) error {
	start := time.Now()
	err := c.Client.DeleteAccount(ctx, externalID)
	c.observe("delete_account", start, err)
	return err
}

func (c *instrumentedClient) ListLibraries(ctx context.Context) ([]mediaclient.LibraryInfo, error) {
	start := time.Now()
	libs, err := c.Client.ListLibraries(ctx)
	c.observe("list_libraries", start, err)
	return libs, err
}
