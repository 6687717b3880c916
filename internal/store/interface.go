// Package store defines the persistence operations the invitation core
// depends on. The core never issues queries; it calls these named operations.
package store

import (
	"context"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
)

// InvitationStore persists invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	GetInvitation(ctx context.Context, id string) (*domain.Invitation, error)
	FindInvitationByCode(ctx context.Context, code string) (*domain.Invitation, error)
	ListInvitations(ctx context.Context) ([]*domain.Invitation, error)
	DisableInvitation(ctx context.Context, id string, now time.Time) error

	// AtomicIncrementUseCount takes one use of the invitation in a single
	// conditional update. It returns false, without error, when the
	// invitation is disabled, expired at now, or already at its limit.
	AtomicIncrementUseCount(ctx context.Context, code string, now time.Time) (bool, error)

	// ReleaseUseCount gives back a use taken by AtomicIncrementUseCount.
	ReleaseUseCount(ctx context.Context, code string, now time.Time) error
}

// MediaServerStore persists media servers and their synced libraries.
type MediaServerStore interface {
	CreateMediaServer(ctx context.Context, server *domain.MediaServer) error
	UpdateMediaServer(ctx context.Context, server *domain.MediaServer) error
	GetMediaServer(ctx context.Context, id string) (*domain.MediaServer, error)
	// FindMediaServersByIDs returns the servers that exist, in the order of ids.
	FindMediaServersByIDs(ctx context.Context, ids []string) ([]*domain.MediaServer, error)
	ListMediaServers(ctx context.Context) ([]*domain.MediaServer, error)

	// ReplaceLibraries makes libs the complete library set of serverID.
	// Libraries keep their local ID across syncs, keyed by external ID.
	ReplaceLibraries(ctx context.Context, serverID string, libs []*domain.Library) error
	ListLibraries(ctx context.Context, serverID string) ([]*domain.Library, error)
	FindLibrariesByIDs(ctx context.Context, ids []string) ([]*domain.Library, error)
}

// WizardStore persists wizards. Steps are always replaced as a whole.
type WizardStore interface {
	SaveWizard(ctx context.Context, w *domain.Wizard) error
	FindWizardWithSteps(ctx context.Context, id string) (*domain.Wizard, error)
	ListWizards(ctx context.Context) ([]*domain.Wizard, error)
}

// UserStore persists created accounts and identities.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
	// ListExpiredUsers returns users whose expiry is at or before now.
	ListExpiredUsers(ctx context.Context, now time.Time) ([]*domain.User, error)

	// GetOrCreateIdentity returns the identity for identity.Email, inserting
	// identity when none exists yet.
	GetOrCreateIdentity(ctx context.Context, identity *domain.Identity) (*domain.Identity, error)
}

// Store composes every persistence operation.
type Store interface {
	InvitationStore
	MediaServerStore
	WizardStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
