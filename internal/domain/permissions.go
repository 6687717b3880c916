package domain

// Permissions is the vendor-agnostic permission set the server controls on
// created accounts. Vendors map these onto their own policy objects.
type Permissions struct {
	AllowDownloads     bool `json:"allow_downloads"`
	AllowLiveTV        bool `json:"allow_live_tv"`
	AllowMobileUploads bool `json:"allow_mobile_uploads"`
}
