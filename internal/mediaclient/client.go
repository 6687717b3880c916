// Package mediaclient defines the vendor-agnostic contract for external media
// server account APIs, the capability model, normalized vendor errors and the
// registry that maps vendor types to client constructors.
package mediaclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/ratelimit"
)

// Client is implemented once per vendor.
//
// Every method may fail with a *VendorError. Partial-update and lifecycle
// methods fail with a *CapabilityUnsupportedError when the vendor lacks the
// primitive; callers decide on the fallback.
type Client interface {
	// Capabilities is pure and performs no I/O.
	Capabilities() CapabilitySet

	// CreateAccount provisions an account. A retried call carrying the same
	// IdempotencyToken must not provision a second account.
	CreateAccount(ctx context.Context, req ProvisionRequest) (*ExternalAccount, error)

	// SetLibraryAccess replaces the set of libraries the account can see.
	// A nil slice grants every library.
	SetLibraryAccess(ctx context.Context, externalID string, libraryIDs []string) error

	SetPermissions(ctx context.Context, externalID string, perms domain.Permissions) error
	DisableAccount(ctx context.Context, externalID string) error
	EnableAccount(ctx context.Context, externalID string) error
	DeleteAccount(ctx context.Context, externalID string) error

	// ListLibraries is read-only and is the source for library sync.
	ListLibraries(ctx context.Context) ([]LibraryInfo, error)
}

// ProvisionRequest describes the account to create.
type ProvisionRequest struct {
	IdempotencyToken string
	Username         string
	Password         string
	Email            string

	// LibraryIDs are vendor library identifiers. nil grants all libraries.
	LibraryIDs  []string
	Permissions domain.Permissions
}

// ExternalAccount is the vendor's view of a created account.
type ExternalAccount struct {
	ID       string
	Username string
	Email    string
}

// LibraryInfo is a library as reported by the vendor.
type LibraryInfo struct {
	ExternalID string
	Name       string
	Kind       string
}

// Config is what a vendor constructor receives for one media server.
// Credential material is opaque to everything but the vendor client.
type Config struct {
	ServerID   string
	BaseURL    string
	Credential string
	Timeout    time.Duration

	// Limiter is shared across clients and keyed by ServerID. May be nil.
	Limiter *ratelimit.KeyedRateLimiter
	Logger  *slog.Logger
}

// ConfigFor builds a Config for a stored media server.
func ConfigFor(server *domain.MediaServer, timeout time.Duration, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) Config {
	return Config{
		ServerID:   server.ID,
		BaseURL:    server.URL,
		Credential: server.Credential,
		Timeout:    timeout,
		Limiter:    limiter,
		Logger:     logger,
	}
}

// Constructor creates a client for one media server.
type Constructor func(cfg Config) (Client, error)
