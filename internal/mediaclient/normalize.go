package mediaclient

import (
	"context"

	"github.com/invitarr/invitarr-server/internal/domain"
)

// normalizingClient enforces declared capabilities and error normalization
// around a vendor implementation.
type normalizingClient struct {
	vendor domain.VendorType
	caps   CapabilitySet
	inner  Client
}

func (c *normalizingClient) Capabilities() CapabilitySet {
	return c.caps
}

func (c *normalizingClient) require(capability Capability) error {
	if !c.caps.Has(capability) {
		return &CapabilityUnsupportedError{Vendor: c.vendor, Capability: capability}
	}
	return nil
}

func (c *normalizingClient) CreateAccount(ctx context.Context, req ProvisionRequest) (*ExternalAccount, error) {
	if err := c.require(CapCreateAccount); err != nil {
		return nil, err
	}
	acct, err := c.inner.CreateAccount(ctx, req)
	if err != nil {
		return nil, Normalize(c.vendor, "create_account", err)
	}
	return acct, nil
}

func (c *normalizingClient) SetLibraryAccess(ctx context.Context, externalID string, libraryIDs []string) error {
	if err := c.require(CapSetLibraryAccess); err != nil {
		return err
	}
	return Normalize(c.vendor, "set_library_access", c.inner.SetLibraryAccess(ctx, externalID, libraryIDs))
}

func (c *normalizingClient) SetPermissions(ctx context.Context, externalID string, perms domain.Permissions) error {
	if err := c.require(CapSetPermissions); err != nil {
		return err
	}
	return Normalize(c.vendor, "set_permissions", c.inner.SetPermissions(ctx, externalID, perms))
}

func (c *normalizingClient) DisableAccount(ctx context.Context, externalID string) error {
	if err := c.require(CapDisableAccount); err != nil {
		return err
	}
	return Normalize(c.vendor, "disable_account", c.inner.DisableAccount(ctx, externalID))
}

func (c *normalizingClient) EnableAccount(ctx context.Context, externalID string) error {
	if err := c.require(CapEnableAccount); err != nil {
		return err
	}
	return Normalize(c.vendor, "enable_account", c.inner.EnableAccount(ctx, externalID))
}

func (c *normalizingClient) DeleteAccount(ctx context.Context, externalID string) error {
	if err := c.require(CapDeleteAccount); err != nil {
		return err
	}
	return Normalize(c.vendor, "delete_account", c.inner.DeleteAccount(ctx, externalID))
}

func (c *normalizingClient) ListLibraries(ctx context.Context) ([]LibraryInfo, error) {
	libs, err := c.inner.ListLibraries(ctx)
	if err != nil {
		return nil, Normalize(c.vendor, "list_libraries", err)
	}
	return libs, nil
}
