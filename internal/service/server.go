package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/id"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/store"
)

// ServerService manages media servers and their library lists.
type ServerService struct {
	store   store.MediaServerStore
	clients *ClientFactory
	retry   mediaclient.RetryPolicy
	logger  *slog.Logger
	now     Clock
}

// NewServerService creates a new server service.
func NewServerService(s store.MediaServerStore, clients *ClientFactory, retry mediaclient.RetryPolicy, logger *slog.Logger) *ServerService {
	return &ServerService{store: s, clients: clients, retry: retry, logger: orDiscard(logger), now: systemClock}
}

// CreateServerRequest contains the data needed to register a media server.
type CreateServerRequest struct {
	Name       string            `json:"name" validate:"required,max=100"`
	Type       domain.VendorType `json:"type" validate:"required"`
	URL        string            `json:"url" validate:"required,url"`
	Credential string            `json:"credential" validate:"required"`
}

// UpdateServerRequest changes a registered server. Nil fields are left as
// they are. The vendor type cannot change.
type UpdateServerRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	URL        *string `json:"url,omitempty" validate:"omitempty,url"`
	Credential *string `json:"credential,omitempty" validate:"omitempty,min=1"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// ServerCapabilities pairs a server with its vendor's declared capabilities.
type ServerCapabilities struct {
	ServerID     string                   `json:"server_id"`
	Vendor       domain.VendorType        `json:"vendor"`
	Capabilities []mediaclient.Capability `json:"capabilities"`
}

// Create registers a server. The vendor type must be registered.
func (s *ServerService) Create(ctx context.Context, req CreateServerRequest) (*domain.MediaServer, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.clients.Registry().GetCapabilities(req.Type); err != nil {
		return nil, err
	}

	serverID, err := id.Generate("srv")
	if err != nil {
		return nil, fmt.Errorf("generate server ID: %w", err)
	}
	server := &domain.MediaServer{
		Record:     domain.Record{ID: serverID},
		Name:       strings.TrimSpace(req.Name),
		Type:       req.Type,
		URL:        strings.TrimRight(req.URL, "/"),
		Credential: req.Credential,
		Enabled:    true,
	}
	server.Stamp(s.now())

	if err := s.store.CreateMediaServer(ctx, server); err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	s.logger.Info("Media server created", "server_id", server.ID, "vendor", server.Type)
	return server, nil
}

// Update applies req to a server. A disabled server is skipped by
// provisioning and library sync; its accounts are left untouched.
func (s *ServerService) Update(ctx context.Context, serverID string, req UpdateServerRequest) (*domain.MediaServer, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	server, err := s.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		server.Name = strings.TrimSpace(*req.Name)
	}
	connection := server.URL + "\x00" + server.Credential
	if req.URL != nil {
		server.URL = strings.TrimRight(*req.URL, "/")
	}
	if req.Credential != nil {
		server.Credential = *req.Credential
	}
	if req.Enabled != nil {
		server.Enabled = *req.Enabled
	}
	server.Stamp(s.now())

	if err := s.store.UpdateMediaServer(ctx, server); err != nil {
		return nil, notFound(err, "server", serverID)
	}
	if server.URL+"\x00"+server.Credential != connection {
		s.clients.Forget(server.ID)
	}

	s.logger.Info("Media server updated", "server_id", server.ID, "enabled", server.Enabled)
	return server, nil
}

// Get returns a server by ID.
func (s *ServerService) Get(ctx context.Context, serverID string) (*domain.MediaServer, error) {
	server, err := s.store.GetMediaServer(ctx, serverID)
	if err != nil {
		return nil, notFound(err, "server", serverID)
	}
	return server, nil
}

// List returns all servers.
func (s *ServerService) List(ctx context.Context) ([]*domain.MediaServer, error) {
	return s.store.ListMediaServers(ctx)
}

// Capabilities reports what the server's vendor can do, without contacting it.
func (s *ServerService) Capabilities(ctx context.Context, serverID string) (*ServerCapabilities, error) {
	server, err := s.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	caps, err := s.clients.Capabilities(server)
	if err != nil {
		return nil, err
	}
	return &ServerCapabilities{ServerID: server.ID, Vendor: server.Type, Capabilities: caps.List()}, nil
}

// VendorCapabilities lists every registered vendor with its capabilities.
func (s *ServerService) VendorCapabilities() map[domain.VendorType][]mediaclient.Capability {
	registry := s.clients.Registry()
	out := make(map[domain.VendorType][]mediaclient.Capability)
	for _, vendor := range registry.Vendors() {
		caps, err := registry.GetCapabilities(vendor)
		if err != nil {
			continue
		}
		out[vendor] = caps.List()
	}
	return out
}

// Libraries returns the stored libraries of a server.
func (s *ServerService) Libraries(ctx context.Context, serverID string) ([]*domain.Library, error) {
	if _, err := s.Get(ctx, serverID); err != nil {
		return nil, err
	}
	return s.store.ListLibraries(ctx, serverID)
}

// SyncLibraries replaces the stored libraries with what the vendor reports.
func (s *ServerService) SyncLibraries(ctx context.Context, serverID string) ([]*domain.Library, error) {
	server, err := s.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.For(server)
	if err != nil {
		return nil, err
	}

	infos, _, err := mediaclient.Retry(ctx, s.retry, client.ListLibraries)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}

	now := s.now()
	libs := make([]*domain.Library, 0, len(infos))
	for _, info := range infos {
		libID, err := id.Generate("lib")
		if err != nil {
			return nil, fmt.Errorf("generate library ID: %w", err)
		}
		libs = append(libs, &domain.Library{
			ID:         libID,
			ServerID:   server.ID,
			ExternalID: info.ExternalID,
			Name:       info.Name,
			Kind:       info.Kind,
			SyncedAt:   now,
		})
	}

	if err := s.store.ReplaceLibraries(ctx, server.ID, libs); err != nil {
		return nil, fmt.Errorf("replace libraries: %w", err)
	}

	s.logger.Info("Libraries synced", "server_id", server.ID, "count", len(libs))
	return s.store.ListLibraries(ctx, server.ID)
}

// SyncAll syncs every enabled server and returns the per-server errors.
func (s *ServerService) SyncAll(ctx context.Context) map[string]error {
	servers, err := s.store.ListMediaServers(ctx)
	if err != nil {
		return map[string]error{"": err}
	}
	failures := make(map[string]error)
	for _, server := range servers {
		if !server.Enabled {
			continue
		}
		if _, err := s.SyncLibraries(ctx, server.ID); err != nil {
			s.logger.Warn("Library sync failed", "server_id", server.ID, "error", err)
			failures[server.ID] = err
		}
	}
	return failures
}
