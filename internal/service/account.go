package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/store"
)

// AccountService applies partial updates to provisioned accounts.
// Each change touches one attribute on the vendor and then the local record;
// no full reconciliation is attempted.
type AccountService struct {
	store   store.Store
	clients *ClientFactory
	retry   mediaclient.RetryPolicy
	logger  *slog.Logger
	now     Clock
}

// NewAccountService creates a new account service.
func NewAccountService(s store.Store, clients *ClientFactory, retry mediaclient.RetryPolicy, logger *slog.Logger) *AccountService {
	if retry.MaxAttempts <= 0 {
		retry = mediaclient.DefaultRetryPolicy
	}
	return &AccountService{
		store:   s,
		clients: clients,
		retry:   retry,
		logger:  orDiscard(logger),
		now:     systemClock,
	}
}

// List returns every provisioned user.
func (s *AccountService) List(ctx context.Context) ([]*domain.User, error) {
	return s.store.ListUsers(ctx)
}

// Get returns a user by ID.
func (s *AccountService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return u, nil
}

// UpdatePermissions changes the account's permissions on its server.
func (s *AccountService) UpdatePermissions(ctx context.Context, userID string, perms domain.Permissions) (*domain.User, error) {
	u, client, err := s.target(ctx, userID, mediaclient.CapSetPermissions)
	if err != nil {
		return nil, err
	}

	// Setting permissions is idempotent, so transient failures are retried.
	if _, err := mediaclient.RetryErr(ctx, s.retry, func(ctx context.Context) error {
		return client.SetPermissions(ctx, u.ExternalID, perms)
	}); err != nil {
		return nil, fmt.Errorf("set permissions: %w", err)
	}

	u.Permissions = perms
	return s.save(ctx, u, "Account permissions updated")
}

// UpdateLibraries replaces the libraries the account can see. libraryIDs are
// local library IDs of the user's server; an empty list grants every library.
func (s *AccountService) UpdateLibraries(ctx context.Context, userID string, libraryIDs []string) (*domain.User, error) {
	u, client, err := s.target(ctx, userID, mediaclient.CapSetLibraryAccess)
	if err != nil {
		return nil, err
	}

	external, err := s.externalLibraryIDs(ctx, u.ServerID, dedupe(libraryIDs))
	if err != nil {
		return nil, err
	}

	if err := client.SetLibraryAccess(ctx, u.ExternalID, external); err != nil {
		return nil, fmt.Errorf("set library access: %w", err)
	}

	u.LibraryIDs = external
	return s.save(ctx, u, "Account libraries updated")
}

// SetEnabled disables or re-enables the account on its server.
func (s *AccountService) SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.User, error) {
	capability := mediaclient.CapDisableAccount
	if enabled {
		capability = mediaclient.CapEnableAccount
	}
	u, client, err := s.target(ctx, userID, capability)
	if err != nil {
		return nil, err
	}

	if enabled {
		err = client.EnableAccount(ctx, u.ExternalID)
	} else {
		err = client.DisableAccount(ctx, u.ExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", capability, err)
	}

	u.Status = domain.UserDisabled
	if enabled {
		u.Status = domain.UserActive
	}
	return s.save(ctx, u, "Account status updated")
}

// Delete removes the account from its server and deletes the local record.
// An account the vendor no longer knows counts as deleted.
func (s *AccountService) Delete(ctx context.Context, userID string) error {
	u, client, err := s.target(ctx, userID, mediaclient.CapDeleteAccount)
	if err != nil {
		return err
	}
	if err := deleteRemote(ctx, client, u.ExternalID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := s.store.DeleteUser(ctx, u.ID); err != nil {
		return notFound(err, "user", userID)
	}
	s.logger.Info("Account deleted", "user_id", u.ID, "server_id", u.ServerID)
	return nil
}

// target loads the user and a client for its server that supports capability.
func (s *AccountService) target(ctx context.Context, userID string, capability mediaclient.Capability) (*domain.User, mediaclient.Client, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, notFound(err, "user", userID)
	}
	server, err := s.store.GetMediaServer(ctx, u.ServerID)
	if err != nil {
		return nil, nil, notFound(err, "server", u.ServerID)
	}
	caps, err := s.clients.Capabilities(server)
	if err != nil {
		return nil, nil, err
	}
	if !caps.Has(capability) {
		return nil, nil, &mediaclient.CapabilityUnsupportedError{Vendor: server.Type, Capability: capability}
	}
	client, err := s.clients.For(server)
	if err != nil {
		return nil, nil, err
	}
	return u, client, nil
}

func (s *AccountService) externalLibraryIDs(ctx context.Context, serverID string, libraryIDs []string) ([]string, error) {
	if len(libraryIDs) == 0 {
		return nil, nil
	}
	libs, err := s.store.FindLibrariesByIDs(ctx, libraryIDs)
	if err != nil {
		return nil, fmt.Errorf("find libraries: %w", err)
	}
	found := make([]string, 0, len(libs))
	external := make([]string, 0, len(libs))
	for _, lib := range libs {
		if lib.ServerID != serverID {
			return nil, domainerrors.Validationf("library %s belongs to another server", lib.ID)
		}
		found = append(found, lib.ID)
		external = append(external, lib.ExternalID)
	}
	if missing := missingIDs(libraryIDs, found); len(missing) > 0 {
		return nil, domainerrors.Validationf("unknown library in %v", missing)
	}
	return external, nil
}

func (s *AccountService) save(ctx context.Context, u *domain.User, msg string) (*domain.User, error) {
	u.Stamp(s.now())
	if err := s.store.UpdateUser(ctx, u); err != nil {
		// The vendor already changed; the local record is now behind.
		s.logger.Error("Vendor updated but user record not saved", "user_id", u.ID, "error", err)
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info(msg, "user_id", u.ID, "server_id", u.ServerID)
	return u, nil
}

// deleteRemote deletes an account, treating not_found as already deleted.
func deleteRemote(ctx context.Context, client mediaclient.Client, externalID string) error {
	err := client.DeleteAccount(ctx, externalID)
	if err != nil && mediaclient.KindOf(err) == mediaclient.KindNotFound {
		return nil
	}
	return err
}
