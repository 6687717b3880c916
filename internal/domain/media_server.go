package domain

import "time"

// VendorType identifies an external media platform.
// The set is closed: a new value is only meaningful once a client for it has
// been registered with the media client registry.
type VendorType string

// Known vendor types.
const (
	VendorPlex     VendorType = "plex"
	VendorJellyfin VendorType = "jellyfin"
)

// String implements fmt.Stringer.
func (v VendorType) String() string {
	return string(v)
}

// MediaServer is a configured external backend that invitations grant access to.
// The core orchestration only reads servers; admins create and edit them.
type MediaServer struct {
	Record
	Name    string     `json:"name"`
	Type    VendorType `json:"type"`
	URL     string     `json:"url"`
	Enabled bool       `json:"enabled"`

	// Credential is owned by the vendor client (API key, account token).
	// It is never serialized.
	Credential string `json:"-"`
}

// Library is a content collection that belongs to one MediaServer.
type Library struct {
	ID         string    `json:"id"`
	ServerID   string    `json:"server_id"`
	ExternalID string    `json:"external_id"` // Vendor identifier (Jellyfin folder ID, Plex section key)
	Name       string    `json:"name"`
	Kind       string    `json:"kind"` // movies, tvshows, music, ...
	SyncedAt   time.Time `json:"synced_at"`
}
