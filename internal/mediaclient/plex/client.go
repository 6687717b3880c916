// Package plex implements the media client contract against Plex.
//
// Plex accounts belong to their owners; "creating an account" means sharing a
// server with an invited email address through plex.tv. There is no disable
// primitive, so DisableAccount and EnableAccount are not declared.
package plex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
)

const (
	vendor = domain.VendorPlex

	// DefaultAccountURL is the plex.tv API base.
	DefaultAccountURL = "https://plex.tv"

	tokenHeader    = "X-Plex-Token"
	clientIDHeader = "X-Plex-Client-Identifier"
	productHeader  = "X-Plex-Product"
	productName    = "invitarr"
)

// Capabilities declared at registration.
var Capabilities = mediaclient.NewCapabilitySet(
	mediaclient.CapCreateAccount,
	mediaclient.CapDeleteAccount,
	mediaclient.CapSetLibraryAccess,
	mediaclient.CapSetPermissions,
)

// Options configures every Plex client built by the registry.
type Options struct {
	AccountURL string // plex.tv base; DefaultAccountURL when empty
	ClientID   string // X-Plex-Client-Identifier
	Ledger     *mediaclient.Ledger
}

// Register adds the Plex vendor to r.
func Register(r *mediaclient.Registry, opts Options) error {
	if opts.Ledger == nil {
		opts.Ledger = mediaclient.NewLedger()
	}
	return r.Register(vendor, func(cfg mediaclient.Config) (mediaclient.Client, error) {
		return New(cfg, opts)
	}, Capabilities)
}

// Client talks to one Plex Media Server and to plex.tv on behalf of its owner.
type Client struct {
	server   *resty.Client
	account  *resty.Client
	serverID string
	ledger   *mediaclient.Ledger
	logger   *slog.Logger

	mu        sync.Mutex // guards machineID
	machineID string
}

// New creates a client for the server described by cfg. The credential is the
// owner's Plex token.
func New(cfg mediaclient.Config, opts Options) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("plex: server URL is required")
	}
	if cfg.Credential == "" {
		return nil, fmt.Errorf("plex: token is required")
	}
	if opts.AccountURL == "" {
		opts.AccountURL = DefaultAccountURL
	}
	if opts.ClientID == "" {
		opts.ClientID = productName
	}
	if opts.Ledger == nil {
		opts.Ledger = mediaclient.NewLedger()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	headers := map[string]string{
		tokenHeader:    cfg.Credential,
		clientIDHeader: opts.ClientID,
		productHeader:  productName,
	}

	return &Client{
		server:   mediaclient.NewRESTClient(vendor, cfg.BaseURL, cfg).SetHeaders(headers),
		account:  mediaclient.NewRESTClient(vendor, opts.AccountURL, cfg).SetHeaders(headers),
		serverID: cfg.ServerID,
		ledger:   opts.Ledger,
		logger:   logger,
	}, nil
}

// Capabilities implements mediaclient.Client.
func (c *Client) Capabilities() mediaclient.CapabilitySet {
	return Capabilities
}

func (c *Client) do(ctx context.Context, rc *resty.Client, op, method, path string, body, out any) error {
	req := rc.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	c.logger.Debug("plex request", "op", op, "method", method, "path", path)
	return mediaclient.Do(req, vendor, op, method, path, out)
}

// machineIdentifier resolves the server's plex.tv identity and caches it.
func (c *Client) machineIdentifier(ctx context.Context, op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machineID != "" {
		return c.machineID, nil
	}

	var resp identityResponse
	if err := c.do(ctx, c.server, op, http.MethodGet, "/identity", nil, &resp); err != nil {
		return "", err
	}
	if resp.MediaContainer.MachineIdentifier == "" {
		return "", &mediaclient.VendorError{Vendor: vendor, Op: op, Kind: mediaclient.KindUnknown, VendorMessage: "empty machine identifier"}
	}
	c.machineID = resp.MediaContainer.MachineIdentifier
	return c.machineID, nil
}

// CreateAccount shares the server with req.Email. A share that already exists
// for the same email is adopted only when this token created it.
func (c *Client) CreateAccount(ctx context.Context, req mediaclient.ProvisionRequest) (*mediaclient.ExternalAccount, error) {
	const op = "create_account"

	if req.Email == "" {
		return nil, &mediaclient.VendorError{
			Vendor:        vendor,
			Op:            op,
			Kind:          mediaclient.KindInvalidRequest,
			VendorMessage: "plex invitations require an email address",
		}
	}
	sections, err := sectionIDs(op, req.LibraryIDs)
	if err != nil {
		return nil, err
	}
	machineID, err := c.machineIdentifier(ctx, op)
	if err != nil {
		return nil, err
	}

	existing, err := c.findShare(ctx, op, machineID, req.Email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if !c.ledger.Owns(c.serverID, req.IdempotencyToken, req.Email) {
			return nil, &mediaclient.VendorError{
				Vendor:        vendor,
				Op:            op,
				Kind:          mediaclient.KindConflict,
				StatusCode:    http.StatusConflict,
				VendorMessage: "server already shared with this email",
			}
		}
		c.logger.Info("plex share already created by earlier attempt", "share_id", existing.ID)
		update := sharedServerUpdate{LibrarySectionIDs: sections, Settings: toSettings(req.Permissions)}
		if err := c.do(ctx, c.account, op, http.MethodPut, sharePath(existing.ID), update, nil); err != nil {
			return nil, err
		}
		return c.externalAccount(existing, req), nil
	}

	c.ledger.Remember(c.serverID, req.IdempotencyToken, req.Email)
	body := sharedServerRequest{
		MachineIdentifier: machineID,
		LibrarySectionIDs: sections,
		Settings:          toSettings(req.Permissions),
		InvitedEmail:      req.Email,
	}
	var created sharedServer
	if err := c.do(ctx, c.account, op, http.MethodPost, "/api/v2/shared_servers", body, &created); err != nil {
		return nil, err
	}
	return c.externalAccount(&created, req), nil
}

func (c *Client) externalAccount(s *sharedServer, req mediaclient.ProvisionRequest) *mediaclient.ExternalAccount {
	username := s.Invited.Username
	if username == "" {
		username = req.Username
	}
	return &mediaclient.ExternalAccount{
		ID:       strconv.FormatInt(s.ID, 10),
		Username: username,
		Email:    req.Email,
	}
}

// SetLibraryAccess implements mediaclient.Client.
func (c *Client) SetLibraryAccess(ctx context.Context, externalID string, libraryIDs []string) error {
	const op = "set_library_access"
	sections, err := sectionIDs(op, libraryIDs)
	if err != nil {
		return err
	}
	share, err := c.getShare(ctx, op, externalID)
	if err != nil {
		return err
	}
	update := sharedServerUpdate{LibrarySectionIDs: sections, Settings: share.Settings}
	return c.do(ctx, c.account, op, http.MethodPut, sharePath(share.ID), update, nil)
}

// SetPermissions implements mediaclient.Client.
func (c *Client) SetPermissions(ctx context.Context, externalID string, perms domain.Permissions) error {
	const op = "set_permissions"
	share, err := c.getShare(ctx, op, externalID)
	if err != nil {
		return err
	}
	update := sharedServerUpdate{LibrarySectionIDs: share.LibrarySectionIDs, Settings: toSettings(perms)}
	return c.do(ctx, c.account, op, http.MethodPut, sharePath(share.ID), update, nil)
}

// DisableAccount is not supported by Plex.
func (c *Client) DisableAccount(context.Context, string) error {
	return &mediaclient.CapabilityUnsupportedError{Vendor: vendor, Capability: mediaclient.CapDisableAccount}
}

// EnableAccount is not supported by Plex.
func (c *Client) EnableAccount(context.Context, string) error {
	return &mediaclient.CapabilityUnsupportedError{Vendor: vendor, Capability: mediaclient.CapEnableAccount}
}

// DeleteAccount revokes the share, removing the user's access to this server.
func (c *Client) DeleteAccount(ctx context.Context, externalID string) error {
	id, err := parseShareID("delete_account", externalID)
	if err != nil {
		return err
	}
	return c.do(ctx, c.account, "delete_account", http.MethodDelete, sharePath(id), nil, nil)
}

// ListLibraries implements mediaclient.Client.
func (c *Client) ListLibraries(ctx context.Context) ([]mediaclient.LibraryInfo, error) {
	var resp sectionsResponse
	if err := c.do(ctx, c.server, "list_libraries", http.MethodGet, "/library/sections", nil, &resp); err != nil {
		return nil, err
	}

	libs := make([]mediaclient.LibraryInfo, 0, len(resp.MediaContainer.Directory))
	for _, d := range resp.MediaContainer.Directory {
		libs = append(libs, mediaclient.LibraryInfo{ExternalID: d.Key, Name: d.Title, Kind: d.Type})
	}
	return libs, nil
}

func (c *Client) findShare(ctx context.Context, op, machineID, email string) (*sharedServer, error) {
	var shares []sharedServer
	if err := c.do(ctx, c.account, op, http.MethodGet, "/api/v2/shared_servers", nil, &shares); err != nil {
		return nil, err
	}
	for i := range shares {
		if shares[i].MachineIdentifier == machineID && strings.EqualFold(shares[i].InvitedEmail, email) {
			return &shares[i], nil
		}
	}
	return nil, nil
}

func (c *Client) getShare(ctx context.Context, op, externalID string) (*sharedServer, error) {
	id, err := parseShareID(op, externalID)
	if err != nil {
		return nil, err
	}
	var share sharedServer
	if err := c.do(ctx, c.account, op, http.MethodGet, sharePath(id), nil, &share); err != nil {
		return nil, err
	}
	return &share, nil
}

func sharePath(id int64) string {
	return "/api/v2/shared_servers/" + strconv.FormatInt(id, 10)
}

func parseShareID(op, externalID string) (int64, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return 0, &mediaclient.VendorError{Vendor: vendor, Op: op, Kind: mediaclient.KindInvalidRequest, VendorMessage: "malformed share id", Err: err}
	}
	return id, nil
}

// sectionIDs converts library keys to Plex section IDs. nil (all libraries)
// is sent as an empty list, which Plex treats as every section.
func sectionIDs(op string, libraryIDs []string) ([]int, error) {
	ids := make([]int, 0, len(libraryIDs))
	for _, key := range libraryIDs {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, &mediaclient.VendorError{Vendor: vendor, Op: op, Kind: mediaclient.KindInvalidRequest, VendorMessage: "malformed library section key " + key, Err: err}
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func toSettings(p domain.Permissions) shareSettings {
	s := shareSettings{AllowSync: p.AllowDownloads, AllowCameraUpload: p.AllowMobileUploads}
	if p.AllowLiveTV {
		s.AllowTuners = 1
	}
	return s
}
