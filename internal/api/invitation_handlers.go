package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/service"
)

func (s *Server) registerInvitationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "checkInvitation",
		Method:      http.MethodGet,
		Path:        "/api/v1/invitations/{code}",
		Summary:     "Check invitation code",
		Description: "Reports whether a code can be redeemed and, if not, why",
		Tags:        []string{"Redemption"},
	}, s.handleCheckInvitation)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createInvitation",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/invitations",
		Summary:       "Create invitation",
		Description:   "Creates an invitation code targeting one or more media servers",
		Tags:          []string{"Invitations"},
		Security:      adminSecurity,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateInvitation)

	huma.Register(s.api, huma.Operation{
		OperationID: "listInvitations",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/invitations",
		Summary:     "List invitations",
		Description: "Returns every invitation, newest first",
		Tags:        []string{"Invitations"},
		Security:    adminSecurity,
	}, s.handleListInvitations)

	huma.Register(s.api, huma.Operation{
		OperationID: "getInvitation",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/invitations/{id}",
		Summary:     "Get invitation",
		Description: "Returns an invitation by ID",
		Tags:        []string{"Invitations"},
		Security:    adminSecurity,
	}, s.handleGetInvitation)

	huma.Register(s.api, huma.Operation{
		OperationID: "disableInvitation",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/invitations/{id}/disable",
		Summary:     "Disable invitation",
		Description: "Stops further redemptions; existing accounts are untouched",
		Tags:        []string{"Invitations"},
		Security:    adminSecurity,
	}, s.handleDisableInvitation)
}

// === DTOs ===

// CheckInvitationInput contains the code to check.
type CheckInvitationInput struct {
	Code string `path:"code" maxLength:"64" doc:"Invitation code, case-insensitive"`
}

// CheckInvitationOutput wraps the public invitation view for Huma.
type CheckInvitationOutput struct {
	Body service.InvitationCheck
}

// PermissionsBody is the permission set granted to created accounts.
type PermissionsBody struct {
	AllowDownloads     bool `json:"allow_downloads,omitempty" doc:"Allow media downloads"`
	AllowLiveTV        bool `json:"allow_live_tv,omitempty" doc:"Allow live TV access"`
	AllowMobileUploads bool `json:"allow_mobile_uploads,omitempty" doc:"Allow camera uploads from mobile"`
}

func (p PermissionsBody) domain() domain.Permissions {
	return domain.Permissions{
		AllowDownloads:     p.AllowDownloads,
		AllowLiveTV:        p.AllowLiveTV,
		AllowMobileUploads: p.AllowMobileUploads,
	}
}

// CreateInvitationRequest is the request body for creating an invitation.
type CreateInvitationRequest struct {
	Code                  string          `json:"code,omitempty" doc:"Custom code; generated when empty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty" doc:"When the code stops working; never when empty"`
	MaxUses               *int            `json:"max_uses,omitempty" doc:"Maximum redemptions; unlimited when empty"`
	ServerIDs             []string        `json:"server_ids" minItems:"1" doc:"Target media servers"`
	LibraryIDs            []string        `json:"library_ids,omitempty" doc:"Libraries to grant; all when empty"`
	PreWizardID           string          `json:"pre_wizard_id,omitempty" doc:"Wizard completed before accounts are created"`
	PostWizardID          string          `json:"post_wizard_id,omitempty" doc:"Wizard shown after accounts are created"`
	AccessDurationSeconds *int64          `json:"access_duration_seconds,omitempty" doc:"Account lifetime; unlimited when empty"`
	Permissions           PermissionsBody `json:"permissions,omitempty" doc:"Permissions for created accounts"`
}

// CreateInvitationInput wraps the create invitation request for Huma.
type CreateInvitationInput struct {
	Authorization string `header:"Authorization"`
	Body          CreateInvitationRequest
}

// InvitationResponse contains invitation data in API responses.
type InvitationResponse struct {
	ID                    string             `json:"id" doc:"Invitation ID"`
	Code                  string             `json:"code" doc:"Redeemable code"`
	ExpiresAt             *time.Time         `json:"expires_at,omitempty" doc:"Expiry time"`
	MaxUses               *int               `json:"max_uses,omitempty" doc:"Maximum redemptions"`
	UseCount              int                `json:"use_count" doc:"Redemptions so far"`
	Enabled               bool               `json:"enabled" doc:"Whether the code can be redeemed"`
	ServerIDs             []string           `json:"server_ids" doc:"Target media servers"`
	LibraryIDs            []string           `json:"library_ids" doc:"Granted libraries; all when empty"`
	PreWizardID           string             `json:"pre_wizard_id,omitempty" doc:"Pre-redemption wizard"`
	PostWizardID          string             `json:"post_wizard_id,omitempty" doc:"Post-redemption wizard"`
	AccessDurationSeconds *int64             `json:"access_duration_seconds,omitempty" doc:"Account lifetime"`
	Permissions           domain.Permissions `json:"permissions" doc:"Permissions for created accounts"`
	CreatedAt             time.Time          `json:"created_at" doc:"Creation time"`
	UpdatedAt             time.Time          `json:"updated_at" doc:"Last update time"`
}

// InvitationOutput wraps the invitation response for Huma.
type InvitationOutput struct {
	Body InvitationResponse
}

// ListInvitationsInput contains parameters for listing invitations.
type ListInvitationsInput struct {
	Authorization string `header:"Authorization"`
}

// ListInvitationsResponse contains a list of invitations.
type ListInvitationsResponse struct {
	Invitations []InvitationResponse `json:"invitations" doc:"List of invitations"`
}

// ListInvitationsOutput wraps the list invitations response for Huma.
type ListInvitationsOutput struct {
	Body ListInvitationsResponse
}

// InvitationIDInput identifies an invitation.
type InvitationIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Invitation ID"`
}

func toInvitationResponse(inv *domain.Invitation) InvitationResponse {
	resp := InvitationResponse{
		ID:           inv.ID,
		Code:         inv.Code,
		ExpiresAt:    inv.ExpiresAt,
		MaxUses:      inv.MaxUses,
		UseCount:     inv.UseCount,
		Enabled:      inv.Enabled,
		ServerIDs:    nonNil(inv.ServerIDs),
		LibraryIDs:   nonNil(inv.LibraryIDs),
		PreWizardID:  inv.PreWizardID,
		PostWizardID: inv.PostWizardID,
		Permissions:  inv.Permissions,
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
	}
	if inv.AccessDuration != nil {
		seconds := int64(inv.AccessDuration.Seconds())
		resp.AccessDurationSeconds = &seconds
	}
	return resp
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// === Handlers ===

func (s *Server) handleCheckInvitation(ctx context.Context, input *CheckInvitationInput) (*CheckInvitationOutput, error) {
	check, err := s.services.Invitations.Check(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	return &CheckInvitationOutput{Body: *check}, nil
}

func (s *Server) handleCreateInvitation(ctx context.Context, input *CreateInvitationInput) (*InvitationOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	inv, err := s.services.Invitations.Create(ctx, service.CreateInvitationRequest{
		Code:                  input.Body.Code,
		ExpiresAt:             input.Body.ExpiresAt,
		MaxUses:               input.Body.MaxUses,
		ServerIDs:             input.Body.ServerIDs,
		LibraryIDs:            input.Body.LibraryIDs,
		PreWizardID:           input.Body.PreWizardID,
		PostWizardID:          input.Body.PostWizardID,
		AccessDurationSeconds: input.Body.AccessDurationSeconds,
		Permissions:           input.Body.Permissions.domain(),
	})
	if err != nil {
		return nil, err
	}
	return &InvitationOutput{Body: toInvitationResponse(inv)}, nil
}

func (s *Server) handleListInvitations(ctx context.Context, input *ListInvitationsInput) (*ListInvitationsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	invitations, err := s.services.Invitations.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]InvitationResponse, len(invitations))
	for i, inv := range invitations {
		resp[i] = toInvitationResponse(inv)
	}
	return &ListInvitationsOutput{Body: ListInvitationsResponse{Invitations: resp}}, nil
}

func (s *Server) handleGetInvitation(ctx context.Context, input *InvitationIDInput) (*InvitationOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	inv, err := s.services.Invitations.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &InvitationOutput{Body: toInvitationResponse(inv)}, nil
}

func (s *Server) handleDisableInvitation(ctx context.Context, input *InvitationIDInput) (*InvitationOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Invitations.Disable(ctx, input.ID); err != nil {
		return nil, err
	}
	inv, err := s.services.Invitations.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &InvitationOutput{Body: toInvitationResponse(inv)}, nil
}
