package plex

type identityResponse struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
	} `json:"MediaContainer"`
}

type directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type sectionsResponse struct {
	MediaContainer struct {
		Directory []directory `json:"Directory"`
	} `json:"MediaContainer"`
}

type shareSettings struct {
	AllowSync         bool `json:"allowSync"`
	AllowCameraUpload bool `json:"allowCameraUpload"`
	AllowTuners       int  `json:"allowTuners"`
}

type sharedServerRequest struct {
	MachineIdentifier string        `json:"machineIdentifier"`
	LibrarySectionIDs []int         `json:"librarySectionIds"`
	Settings          shareSettings `json:"settings"`
	InvitedEmail      string        `json:"invitedEmail"`
}

type sharedServerUpdate struct {
	LibrarySectionIDs []int         `json:"librarySectionIds"`
	Settings          shareSettings `json:"settings"`
}

type invitedUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type sharedServer struct {
	ID                int64         `json:"id"`
	MachineIdentifier string        `json:"machineIdentifier"`
	InvitedEmail      string        `json:"invitedEmail"`
	LibrarySectionIDs []int         `json:"librarySectionIds"`
	Settings          shareSettings `json:"settings"`
	Invited           invitedUser   `json:"invited"`
}
