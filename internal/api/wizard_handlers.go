package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/service"
)

func (s *Server) registerWizardRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createWizard",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/wizards",
		Summary:       "Create wizard",
		Description:   "Creates a wizard. Every step config is checked against its interaction type.",
		Tags:          []string{"Wizards"},
		Security:      adminSecurity,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateWizard)

	huma.Register(s.api, huma.Operation{
		OperationID: "replaceWizard",
		Method:      http.MethodPut,
		Path:        "/api/v1/admin/wizards/{id}",
		Summary:     "Replace wizard",
		Description: "Replaces a wizard's name and its complete step list",
		Tags:        []string{"Wizards"},
		Security:    adminSecurity,
	}, s.handleReplaceWizard)

	huma.Register(s.api, huma.Operation{
		OperationID: "listWizards",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/wizards",
		Summary:     "List wizards",
		Description: "Returns every wizard with its steps",
		Tags:        []string{"Wizards"},
		Security:    adminSecurity,
	}, s.handleListWizards)

	huma.Register(s.api, huma.Operation{
		OperationID: "getWizard",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/wizards/{id}",
		Summary:     "Get wizard",
		Description: "Returns a wizard with its steps",
		Tags:        []string{"Wizards"},
		Security:    adminSecurity,
	}, s.handleGetWizard)

	huma.Register(s.api, huma.Operation{
		OperationID: "listInteractionTypes",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/interactions",
		Summary:     "List interaction types",
		Description: "Returns the interaction types a step can use",
		Tags:        []string{"Wizards"},
		Security:    adminSecurity,
	}, s.handleListInteractionTypes)

	huma.Register(s.api, huma.Operation{
		OperationID: "validateInteractionConfig",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/interactions/validate-config",
		Summary:     "Validate step config",
		Description: "Checks a step config against its interaction type and returns the canonical form",
		Tags:        []string{"Wizards"},
		Security:    adminSecurity,
	}, s.handleValidateInteractionConfig)
}

// === DTOs ===

// WizardStepRequest is one authored step.
type WizardStepRequest struct {
	ID              string          `json:"id,omitempty" doc:"Existing step ID to keep"`
	Title           string          `json:"title" minLength:"1" maxLength:"200" doc:"Step title"`
	Body            string          `json:"body,omitempty" doc:"Markdown or HTML body"`
	InteractionType string          `json:"interaction_type" minLength:"1" doc:"Interaction type"`
	Config          json.RawMessage `json:"config,omitempty" doc:"Interaction-specific configuration"`
}

// SaveWizardRequest is the request body for creating or replacing a wizard.
type SaveWizardRequest struct {
	Name  string              `json:"name" minLength:"1" maxLength:"100" doc:"Wizard name"`
	Steps []WizardStepRequest `json:"steps" maxItems:"50" doc:"Complete ordered step list"`
}

// CreateWizardInput wraps the create wizard request for Huma.
type CreateWizardInput struct {
	Authorization string `header:"Authorization"`
	Body          SaveWizardRequest
}

// ReplaceWizardInput wraps the replace wizard request for Huma.
type ReplaceWizardInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Wizard ID"`
	Body          SaveWizardRequest
}

// WizardIDInput identifies a wizard.
type WizardIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Wizard ID"`
}

// WizardOutput wraps a wizard for Huma.
type WizardOutput struct {
	Body domain.Wizard
}

// ListWizardsResponse contains a list of wizards.
type ListWizardsResponse struct {
	Wizards []*domain.Wizard `json:"wizards" doc:"Wizards"`
}

// ListWizardsOutput wraps the list wizards response for Huma.
type ListWizardsOutput struct {
	Body ListWizardsResponse
}

// InteractionTypesResponse lists the supported interaction types.
type InteractionTypesResponse struct {
	Types []interaction.Type `json:"types" doc:"Interaction types"`
}

// InteractionTypesOutput wraps the interaction types for Huma.
type InteractionTypesOutput struct {
	Body InteractionTypesResponse
}

// ValidateConfigRequest is a step config to check.
type ValidateConfigRequest struct {
	InteractionType string          `json:"interaction_type" minLength:"1" doc:"Interaction type"`
	Config          json.RawMessage `json:"config,omitempty" doc:"Configuration to check"`
}

// ValidateConfigInput wraps the config validation request for Huma.
type ValidateConfigInput struct {
	Authorization string `header:"Authorization"`
	Body          ValidateConfigRequest
}

// ValidateConfigResponse returns the canonical config.
type ValidateConfigResponse struct {
	InteractionType string          `json:"interaction_type" doc:"Interaction type"`
	Config          json.RawMessage `json:"config" doc:"Canonical configuration"`
}

// ValidateConfigOutput wraps the config validation response for Huma.
type ValidateConfigOutput struct {
	Body ValidateConfigResponse
}

func (r SaveWizardRequest) service(id string) service.SaveWizardRequest {
	steps := make([]service.StepInput, len(r.Steps))
	for i, st := range r.Steps {
		steps[i] = service.StepInput{
			ID:              st.ID,
			Title:           st.Title,
			Body:            st.Body,
			InteractionType: st.InteractionType,
			Config:          st.Config,
		}
	}
	return service.SaveWizardRequest{ID: id, Name: r.Name, Steps: steps}
}

// === Handlers ===

func (s *Server) handleCreateWizard(ctx context.Context, input *CreateWizardInput) (*WizardOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	w, err := s.services.Wizards.Save(ctx, input.Body.service(""))
	if err != nil {
		return nil, err
	}
	return &WizardOutput{Body: *w}, nil
}

func (s *Server) handleReplaceWizard(ctx context.Context, input *ReplaceWizardInput) (*WizardOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	// Replacing must not create a wizard under a caller-chosen ID.
	if _, err := s.services.Wizards.Get(ctx, input.ID); err != nil {
		return nil, err
	}

	w, err := s.services.Wizards.Save(ctx, input.Body.service(input.ID))
	if err != nil {
		return nil, err
	}
	return &WizardOutput{Body: *w}, nil
}

func (s *Server) handleListWizards(ctx context.Context, input *AdminInput) (*ListWizardsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	wizards, err := s.services.Wizards.List(ctx)
	if err != nil {
		return nil, err
	}
	if wizards == nil {
		wizards = []*domain.Wizard{}
	}
	return &ListWizardsOutput{Body: ListWizardsResponse{Wizards: wizards}}, nil
}

func (s *Server) handleGetWizard(ctx context.Context, input *WizardIDInput) (*WizardOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	w, err := s.services.Wizards.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &WizardOutput{Body: *w}, nil
}

func (s *Server) handleListInteractionTypes(_ context.Context, input *AdminInput) (*InteractionTypesOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}
	return &InteractionTypesOutput{Body: InteractionTypesResponse{Types: s.services.Interactions.Types()}}, nil
}

func (s *Server) handleValidateInteractionConfig(_ context.Context, input *ValidateConfigInput) (*ValidateConfigOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	canonical, err := s.services.Interactions.CanonicalConfig(input.Body.InteractionType, input.Body.Config)
	if err != nil {
		return nil, err
	}
	return &ValidateConfigOutput{Body: ValidateConfigResponse{
		InteractionType: input.Body.InteractionType,
		Config:          canonical,
	}}, nil
}
