// Package service implements the invitation server's use cases: authoring of
// invitations, wizards and media servers, the redemption state machine,
// account maintenance and the expiration sweeper.
package service

import (
	"errors"
	"log/slog"
	"time"

	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/store"
	"github.com/invitarr/invitarr-server/internal/validation"
)

// validate is the shared request validator.
var validate = validation.New()

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

// notFound converts store.ErrNotFound into a domain not found error.
func notFound(err error, what, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFoundf("%s %s not found", what, id)
	}
	return err
}
