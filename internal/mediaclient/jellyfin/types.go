package jellyfin

// policy is kept as a map so fields this client does not manage survive a
// read-modify-write.
type policy map[string]any

type user struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Policy policy `json:"Policy,omitempty"`
}

type newUserRequest struct {
	Name     string `json:"Name"`
	Password string `json:"Password,omitempty"`
}

type mediaFolder struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
}

type mediaFoldersResponse struct {
	Items []mediaFolder `json:"Items"`
}
