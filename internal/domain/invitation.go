package domain

import "time"

// InvitationReason explains why an invitation cannot be redeemed.
type InvitationReason string

// Rejection reasons, in the order they are checked.
const (
	ReasonNotFound  InvitationReason = "not_found"
	ReasonExpired   InvitationReason = "expired"
	ReasonDisabled  InvitationReason = "disabled"
	ReasonExhausted InvitationReason = "exhausted"
)

// Message returns the user-facing text for a rejection reason.
func (r InvitationReason) Message() string {
	switch r {
	case ReasonNotFound:
		return "This invitation code does not exist."
	case ReasonExpired:
		return "This invitation has expired."
	case ReasonDisabled:
		return "This invitation has been disabled."
	case ReasonExhausted:
		return "This invitation has already been used the maximum number of times."
	default:
		return "This invitation cannot be used."
	}
}

// Invitation is a code that grants access to one or more media servers.
type Invitation struct {
	Record
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = never
	MaxUses   *int       `json:"max_uses,omitempty"`   // nil = unlimited
	UseCount  int        `json:"use_count"`
	Enabled   bool       `json:"enabled"`

	ServerIDs  []string `json:"server_ids"`
	LibraryIDs []string `json:"library_ids"` // empty = all libraries

	PreWizardID  string `json:"pre_wizard_id,omitempty"`
	PostWizardID string `json:"post_wizard_id,omitempty"`

	// AccessDuration bounds the lifetime of accounts created from this invitation.
	// nil = accounts never expire.
	AccessDuration *time.Duration `json:"access_duration,omitempty"`
	Permissions    Permissions    `json:"permissions"`
}

// IsExpired reports whether the invitation expired at or before now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// IsExhausted reports whether the use limit has been reached.
func (i *Invitation) IsExhausted() bool {
	return i.MaxUses != nil && i.UseCount >= *i.MaxUses
}

// Redeemability returns the first failing check in the order
// expired, disabled, exhausted. An empty reason means the invitation is redeemable.
func (i *Invitation) Redeemability(now time.Time) InvitationReason {
	switch {
	case i.IsExpired(now):
		return ReasonExpired
	case !i.Enabled:
		return ReasonDisabled
	case i.IsExhausted():
		return ReasonExhausted
	default:
		return ""
	}
}

// AccountExpiry derives the expiration of an account created at now.
func (i *Invitation) AccountExpiry(now time.Time) *time.Time {
	if i.AccessDuration == nil || *i.AccessDuration <= 0 {
		return nil
	}
	t := now.Add(*i.AccessDuration).UTC()
	return &t
}
