package domain

import "time"

// UserStatus is the local view of the account state on the vendor.
type UserStatus string

// User statuses.
const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User links a local record to exactly one account on one MediaServer.
// Users are only created as a side effect of a successful redemption.
type User struct {
	Record
	ServerID     string      `json:"server_id"`
	InvitationID string      `json:"invitation_id"`
	IdentityID   string      `json:"identity_id,omitempty"`
	ExternalID   string      `json:"external_id"`
	Username     string      `json:"username"`
	Email        string      `json:"email,omitempty"`
	Permissions  Permissions `json:"permissions"`
	LibraryIDs   []string    `json:"library_ids"` // Vendor library IDs the account can see; empty = all
	Status       UserStatus  `json:"status"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
}

// IsExpired reports whether the account's access window closed at or before now.
func (u *User) IsExpired(now time.Time) bool {
	return u.ExpiresAt != nil && !now.Before(*u.ExpiresAt)
}

// Identity groups the Users that belong to the same person across servers.
// It is used for display only.
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
