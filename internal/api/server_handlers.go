package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/service"
)

func (s *Server) registerServerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listVendors",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/vendors",
		Summary:     "List vendors",
		Description: "Returns every registered vendor type with its capabilities",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleListVendors)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createServer",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/servers",
		Summary:       "Register server",
		Description:   "Registers a media server of a known vendor type",
		Tags:          []string{"Servers"},
		Security:      adminSecurity,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateServer)

	huma.Register(s.api, huma.Operation{
		OperationID: "listServers",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/servers",
		Summary:     "List servers",
		Description: "Returns every registered media server",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleListServers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getServer",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/servers/{id}",
		Summary:     "Get server",
		Description: "Returns a media server by ID",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleGetServer)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateServer",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/servers/{id}",
		Summary:     "Update server",
		Description: "Changes name, URL, credential or enabled flag. Omitted fields are kept.",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleUpdateServer)

	huma.Register(s.api, huma.Operation{
		OperationID: "getServerCapabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/servers/{id}/capabilities",
		Summary:     "Get server capabilities",
		Description: "Reports what the server's vendor supports without contacting it",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleServerCapabilities)

	huma.Register(s.api, huma.Operation{
		OperationID: "listServerLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/servers/{id}/libraries",
		Summary:     "List libraries",
		Description: "Returns the libraries last synced from the server",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleListLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncServerLibraries",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/servers/{id}/libraries/sync",
		Summary:     "Sync libraries",
		Description: "Replaces the stored libraries with what the server reports",
		Tags:        []string{"Servers"},
		Security:    adminSecurity,
	}, s.handleSyncLibraries)
}

// === DTOs ===

// VendorResponse describes one registered vendor type.
type VendorResponse struct {
	Type         domain.VendorType        `json:"type" doc:"Vendor type"`
	Capabilities []mediaclient.Capability `json:"capabilities" doc:"Declared capabilities"`
}

// ListVendorsResponse contains the registered vendors.
type ListVendorsResponse struct {
	Vendors []VendorResponse `json:"vendors" doc:"Registered vendors"`
}

// ListVendorsOutput wraps the vendor list for Huma.
type ListVendorsOutput struct {
	Body ListVendorsResponse
}

// AdminInput carries only the admin authorization header.
type AdminInput struct {
	Authorization string `header:"Authorization"`
}

// CreateServerRequest is the request body for registering a server.
type CreateServerRequest struct {
	Name       string `json:"name" minLength:"1" maxLength:"100" doc:"Display name"`
	Type       string `json:"type" minLength:"1" doc:"Vendor type, e.g. jellyfin or plex"`
	URL        string `json:"url" minLength:"1" doc:"Base URL of the server"`
	Credential string `json:"credential" minLength:"1" doc:"API key or account token"`
}

// CreateServerInput wraps the create server request for Huma.
type CreateServerInput struct {
	Authorization string `header:"Authorization"`
	Body          CreateServerRequest
}

// UpdateServerRequest is the request body for changing a server.
type UpdateServerRequest struct {
	Name       *string `json:"name,omitempty" doc:"Display name"`
	URL        *string `json:"url,omitempty" doc:"Base URL of the server"`
	Credential *string `json:"credential,omitempty" doc:"API key or account token"`
	Enabled    *bool   `json:"enabled,omitempty" doc:"Whether invitations may target the server"`
}

// UpdateServerInput wraps the update server request for Huma.
type UpdateServerInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Server ID"`
	Body          UpdateServerRequest
}

// ServerIDInput identifies a server.
type ServerIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Server ID"`
}

// ServerResponse contains server data in API responses. The credential is
// never returned.
type ServerResponse struct {
	ID        string            `json:"id" doc:"Server ID"`
	Name      string            `json:"name" doc:"Display name"`
	Type      domain.VendorType `json:"type" doc:"Vendor type"`
	URL       string            `json:"url" doc:"Base URL"`
	Enabled   bool              `json:"enabled" doc:"Whether invitations may target the server"`
	CreatedAt time.Time         `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time         `json:"updated_at" doc:"Last update time"`
}

// ServerOutput wraps the server response for Huma.
type ServerOutput struct {
	Body ServerResponse
}

// ListServersResponse contains a list of servers.
type ListServersResponse struct {
	Servers []ServerResponse `json:"servers" doc:"Registered servers"`
}

// ListServersOutput wraps the list servers response for Huma.
type ListServersOutput struct {
	Body ListServersResponse
}

// ServerCapabilitiesOutput wraps a server's capabilities for Huma.
type ServerCapabilitiesOutput struct {
	Body service.ServerCapabilities
}

// LibrariesResponse contains a server's libraries.
type LibrariesResponse struct {
	Libraries []*domain.Library `json:"libraries" doc:"Libraries on the server"`
}

// LibrariesOutput wraps the libraries response for Huma.
type LibrariesOutput struct {
	Body LibrariesResponse
}

func toServerResponse(server *domain.MediaServer) ServerResponse {
	return ServerResponse{
		ID:        server.ID,
		Name:      server.Name,
		Type:      server.Type,
		URL:       server.URL,
		Enabled:   server.Enabled,
		CreatedAt: server.CreatedAt,
		UpdatedAt: server.UpdatedAt,
	}
}

func librariesOutput(libs []*domain.Library) *LibrariesOutput {
	if libs == nil {
		libs = []*domain.Library{}
	}
	return &LibrariesOutput{Body: LibrariesResponse{Libraries: libs}}
}

// === Handlers ===

func (s *Server) handleListVendors(_ context.Context, input *AdminInput) (*ListVendorsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	caps := s.services.Servers.VendorCapabilities()
	vendors := make([]VendorResponse, 0, len(caps))
	for vendor, list := range caps {
		vendors = append(vendors, VendorResponse{Type: vendor, Capabilities: list})
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i].Type < vendors[j].Type })

	return &ListVendorsOutput{Body: ListVendorsResponse{Vendors: vendors}}, nil
}

func (s *Server) handleCreateServer(ctx context.Context, input *CreateServerInput) (*ServerOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	server, err := s.services.Servers.Create(ctx, service.CreateServerRequest{
		Name:       input.Body.Name,
		Type:       domain.VendorType(input.Body.Type),
		URL:        input.Body.URL,
		Credential: input.Body.Credential,
	})
	if err != nil {
		return nil, err
	}
	return &ServerOutput{Body: toServerResponse(server)}, nil
}

func (s *Server) handleListServers(ctx context.Context, input *AdminInput) (*ListServersOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	servers, err := s.services.Servers.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]ServerResponse, len(servers))
	for i, server := range servers {
		resp[i] = toServerResponse(server)
	}
	return &ListServersOutput{Body: ListServersResponse{Servers: resp}}, nil
}

func (s *Server) handleGetServer(ctx context.Context, input *ServerIDInput) (*ServerOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	server, err := s.services.Servers.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ServerOutput{Body: toServerResponse(server)}, nil
}

func (s *Server) handleUpdateServer(ctx context.Context, input *UpdateServerInput) (*ServerOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	server, err := s.services.Servers.Update(ctx, input.ID, service.UpdateServerRequest{
		Name:       input.Body.Name,
		URL:        input.Body.URL,
		Credential: input.Body.Credential,
		Enabled:    input.Body.Enabled,
	})
	if err != nil {
		return nil, err
	}
	return &ServerOutput{Body: toServerResponse(server)}, nil
}

func (s *Server) handleServerCapabilities(ctx context.Context, input *ServerIDInput) (*ServerCapabilitiesOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	caps, err := s.services.Servers.Capabilities(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ServerCapabilitiesOutput{Body: *caps}, nil
}

func (s *Server) handleListLibraries(ctx context.Context, input *ServerIDInput) (*LibrariesOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	libs, err := s.services.Servers.Libraries(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return librariesOutput(libs), nil
}

func (s *Server) handleSyncLibraries(ctx context.Context, input *ServerIDInput) (*LibrariesOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	libs, err := s.services.Servers.SyncLibraries(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return librariesOutput(libs), nil
}
