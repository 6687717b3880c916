// Package jellyfin implements the media client contract against the Jellyfin
// user administration API.
//
// Jellyfin has native disable (policy IsDisabled) but no idempotent create, so
// CreateAccount does a lookup-before-create by username and consults a
// process-wide ledger to tell a retry from a name collision.
package jellyfin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

const (
	vendor     = domain.VendorJellyfin
	authHeader = "X-Emby-Token"
)

// Capabilities declared at registration.
var Capabilities = mediaclient.NewCapabilitySet(mediaclient.AllCapabilities...)

// Options configures every Jellyfin client built by the registry.
type Options struct {
	// Ledger is shared between clients. A fresh one is created when nil.
	Ledger *mediaclient.Ledger
}

// Register adds the Jellyfin vendor to r.
func Register(r *mediaclient.Registry, opts Options) error {
	if opts.Ledger == nil {
		opts.Ledger = mediaclient.NewLedger()
	}
	return r.Register(vendor, func(cfg mediaclient.Config) (mediaclient.Client, error) {
		return New(cfg, opts)
	}, Capabilities)
}

// Client talks to one Jellyfin server. It holds no per-call state besides the
// shared ledger and is safe for concurrent use.
type Client struct {
	http     *resty.Client
	serverID string
	ledger   *mediaclient.Ledger
	logger   *slog.Logger
}

// New creates a client for the server described by cfg.
func New(cfg mediaclient.Config, opts Options) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jellyfin: base URL is required")
	}
	if cfg.Credential == "" {
		return nil, fmt.Errorf("jellyfin: API key is required")
	}
	if opts.Ledger == nil {
		opts.Ledger = mediaclient.NewLedger()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	httpClient := mediaclient.NewRESTClient(vendor, cfg.BaseURL, cfg).
		SetHeader(authHeader, cfg.Credential)

	return &Client{
		http:     httpClient,
		serverID: cfg.ServerID,
		ledger:   opts.Ledger,
		logger:   logger,
	}, nil
}

// Capabilities implements mediaclient.Client.
func (c *Client) Capabilities() mediaclient.CapabilitySet {
	return Capabilities
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	c.logger.Debug("jellyfin request", "op", op, "method", method, "path", path)
	return mediaclient.Do(req, vendor, op, method, path, out)
}

// CreateAccount implements mediaclient.Client.
func (c *Client) CreateAccount(ctx context.Context, req mediaclient.ProvisionRequest) (*mediaclient.ExternalAccount, error) {
	const op = "create_account"

	existing, err := c.findUserByName(ctx, op, req.Username)
	if err != nil {
		return nil, err
	}

	var u *user
	switch {
	case existing != nil && c.ledger.Owns(c.serverID, req.IdempotencyToken, req.Username):
		c.logger.Info("jellyfin account already created by earlier attempt", "username", req.Username)
		u = existing
	case existing != nil:
		return nil, &mediaclient.VendorError{
			Vendor:        vendor,
			Op:            op,
			Kind:          mediaclient.KindConflict,
			StatusCode:    http.StatusConflict,
			VendorMessage: "username already exists",
		}
	default:
		c.ledger.Remember(c.serverID, req.IdempotencyToken, req.Username)
		var created user
		body := newUserRequest{Name: req.Username, Password: req.Password}
		if err := c.do(ctx, op, http.MethodPost, "/Users/New", body, &created); err != nil {
			return nil, err
		}
		u = &created
	}

	err = c.updatePolicy(ctx, op, u.ID, func(p policy) {
		applyLibraries(p, req.LibraryIDs)
		applyPermissions(p, req.Permissions)
		p["IsDisabled"] = false
	})
	if err != nil {
		return nil, err
	}

	return &mediaclient.ExternalAccount{ID: u.ID, Username: u.Name, Email: req.Email}, nil
}

// SetLibraryAccess implements mediaclient.Client.
func (c *Client) SetLibraryAccess(ctx context.Context, externalID string, libraryIDs []string) error {
	return c.updatePolicy(ctx, "set_library_access", externalID, func(p policy) {
		applyLibraries(p, libraryIDs)
	})
}

// SetPermissions implements mediaclient.Client.
func (c *Client) SetPermissions(ctx context.Context, externalID string, perms domain.Permissions) error {
	return c.updatePolicy(ctx, "set_permissions", externalID, func(p policy) {
		applyPermissions(p, perms)
	})
}

// DisableAccount implements mediaclient.Client.
func (c *Client) DisableAccount(ctx context.Context, externalID string) error {
	return c.updatePolicy(ctx, "disable_account", externalID, func(p policy) {
		p["IsDisabled"] = true
	})
}

// EnableAccount implements mediaclient.Client.
func (c *Client) EnableAccount(ctx context.Context, externalID string) error {
	return c.updatePolicy(ctx, "enable_account", externalID, func(p policy) {
		p["IsDisabled"] = false
	})
}

// DeleteAccount implements mediaclient.Client.
func (c *Client) DeleteAccount(ctx context.Context, externalID string) error {
	return c.do(ctx, "delete_account", http.MethodDelete, "/Users/"+externalID, nil, nil)
}

// ListLibraries implements mediaclient.Client.
func (c *Client) ListLibraries(ctx context.Context) ([]mediaclient.LibraryInfo, error) {
	var resp mediaFoldersResponse
	if err := c.do(ctx, "list_libraries", http.MethodGet, "/Library/MediaFolders", nil, &resp); err != nil {
		return nil, err
	}

	libs := make([]mediaclient.LibraryInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		libs = append(libs, mediaclient.LibraryInfo{
			ExternalID: item.ID,
			Name:       item.Name,
			Kind:       item.CollectionType,
		})
	}
	return libs, nil
}

func (c *Client) findUserByName(ctx context.Context, op, name string) (*user, error) {
	var users []user
	if err := c.do(ctx, op, http.MethodGet, "/Users", nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		// Jellyfin usernames are case-insensitive.
		if strings.EqualFold(users[i].Name, name) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// updatePolicy reads the full policy, applies mutate and writes it back.
// Jellyfin resets any field missing from the posted policy.
func (c *Client) updatePolicy(ctx context.Context, op, userID string, mutate func(policy)) error {
	var u user
	if err := c.do(ctx, op, http.MethodGet, "/Users/"+userID, nil, &u); err != nil {
		return err
	}
	p := u.Policy
	if p == nil {
		p = policy{}
	}
	mutate(p)
	return c.do(ctx, op, http.MethodPost, "/Users/"+userID+"/Policy", p, nil)
}

func applyLibraries(p policy, libraryIDs []string) {
	if libraryIDs == nil {
		p["EnableAllFolders"] = true
		p["EnabledFolders"] = []string{}
		return
	}
	p["EnableAllFolders"] = false
	p["EnabledFolders"] = libraryIDs
}

// applyPermissions maps the vendor-agnostic set. Jellyfin has no mobile
// upload toggle, so AllowMobileUploads is ignored.
func applyPermissions(p policy, perms domain.Permissions) {
	p["EnableContentDownloading"] = perms.AllowDownloads
	p["EnableLiveTvAccess"] = perms.AllowLiveTV
}
