package service

import (
	"errors"
	"fmt"

	"github.com/invitarr/invitarr-server/internal/domain"
)

// InvitationInvalidError is returned when a code cannot be redeemed.
// Reason is always one of not_found, expired, disabled or exhausted.
type InvitationInvalidError struct {
	Reason domain.InvitationReason
}

func (e *InvitationInvalidError) Error() string {
	return fmt.Sprintf("invitation invalid: %s", e.Reason)
}

// Message returns the text shown to the redeemer.
func (e *InvitationInvalidError) Message() string {
	return e.Reason.Message()
}

// InvitationReasonOf returns the rejection reason carried by err.
func InvitationReasonOf(err error) (domain.InvitationReason, bool) {
	var ie *InvitationInvalidError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
