package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/service"
)

func (s *Server) registerRedemptionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "beginRedemption",
		Method:        http.MethodPost,
		Path:          "/api/v1/redemptions",
		Summary:       "Begin redemption",
		Description:   "Starts redeeming an invitation code and returns the first step",
		Tags:          []string{"Redemption"},
		DefaultStatus: http.StatusCreated,
	}, s.handleBeginRedemption)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRedemption",
		Method:      http.MethodGet,
		Path:        "/api/v1/redemptions/{id}",
		Summary:     "Get redemption",
		Description: "Returns the current state of a redemption",
		Tags:        []string{"Redemption"},
	}, s.handleGetRedemption)

	huma.Register(s.api, huma.Operation{
		OperationID: "validateStep",
		Method:      http.MethodPost,
		Path:        "/api/v1/redemptions/{id}/steps/validate",
		Summary:     "Validate step",
		Description: "Validates a response to the current wizard step and advances on success",
		Tags:        []string{"Redemption"},
	}, s.handleValidateStep)

	huma.Register(s.api, huma.Operation{
		OperationID: "provisionRedemption",
		Method:      http.MethodPost,
		Path:        "/api/v1/redemptions/{id}/provision",
		Summary:     "Create accounts",
		Description: "Creates an account on every target server. Returns 202 when provisioning is still running.",
		Tags:        []string{"Redemption"},
	}, s.handleProvision)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRedemptions",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/redemptions",
		Summary:     "List redemptions",
		Description: "Returns live redemption sessions, optionally filtered by state",
		Tags:        []string{"Redemption Admin"},
		Security:    adminSecurity,
	}, s.handleListRedemptions)

	huma.Register(s.api, huma.Operation{
		OperationID: "retryRedemptionServer",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/redemptions/{id}/servers/{serverID}/retry",
		Summary:     "Retry server",
		Description: "Re-runs account creation on one server that failed",
		Tags:        []string{"Redemption Admin"},
		Security:    adminSecurity,
	}, s.handleRetryServer)
}

// === DTOs ===

// BeginRedemptionRequest is the request body for starting a redemption.
type BeginRedemptionRequest struct {
	Code string `json:"code" minLength:"1" maxLength:"64" doc:"Invitation code"`
}

// BeginRedemptionInput wraps the begin request for Huma.
type BeginRedemptionInput struct {
	Body BeginRedemptionRequest
}

// RedemptionOutput wraps a redemption view for Huma.
type RedemptionOutput struct {
	Body service.RedemptionView
}

// RedemptionIDInput identifies a redemption.
type RedemptionIDInput struct {
	ID string `path:"id" doc:"Redemption ID"`
}

// ValidateStepRequest is a response to one wizard step.
type ValidateStepRequest struct {
	StepID    string          `json:"step_id" minLength:"1" doc:"Step being answered"`
	Response  json.RawMessage `json:"response" doc:"Interaction-specific response"`
	StartedAt string          `json:"started_at,omitempty" doc:"Timing token from the step view"`
}

// ValidateStepInput wraps the step validation request for Huma.
type ValidateStepInput struct {
	ID   string `path:"id" doc:"Redemption ID"`
	Body ValidateStepRequest
}

// ValidateStepOutput wraps the step result for Huma.
type ValidateStepOutput struct {
	Body service.StepResult
}

// ProvisionRequest carries the account details chosen by the invitee.
type ProvisionRequest struct {
	Username string `json:"username" minLength:"1" maxLength:"64" doc:"Username for the new accounts"`
	Password string `json:"password,omitempty" maxLength:"256" doc:"Password for the new accounts"`
	Email    string `json:"email,omitempty" doc:"Contact email"`
}

// ProvisionInput wraps the provision request for Huma.
type ProvisionInput struct {
	ID   string `path:"id" doc:"Redemption ID"`
	Body ProvisionRequest
}

// ProvisionOutput carries the redemption view and a status that reflects
// whether provisioning has finished.
type ProvisionOutput struct {
	Status int
	Body   service.RedemptionView
}

// ListRedemptionsInput contains parameters for listing redemptions.
type ListRedemptionsInput struct {
	Authorization string   `header:"Authorization"`
	State         []string `query:"state" doc:"Only return sessions in these states"`
}

// ListRedemptionsResponse contains a list of redemptions.
type ListRedemptionsResponse struct {
	Redemptions []*service.RedemptionView `json:"redemptions" doc:"Live redemption sessions"`
}

// ListRedemptionsOutput wraps the list response for Huma.
type ListRedemptionsOutput struct {
	Body ListRedemptionsResponse
}

// RetryServerRequest is the request body for retrying one server.
type RetryServerRequest struct {
	Password string `json:"password,omitempty" maxLength:"256" doc:"Password for the account"`
}

// RetryServerInput wraps the retry request for Huma.
type RetryServerInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Redemption ID"`
	ServerID      string `path:"serverID" doc:"Server to retry"`
	Body          RetryServerRequest
}

// === Handlers ===

func (s *Server) handleBeginRedemption(ctx context.Context, input *BeginRedemptionInput) (*RedemptionOutput, error) {
	view, err := s.services.Redemptions.Begin(ctx, input.Body.Code)
	if err != nil {
		return nil, err
	}
	return &RedemptionOutput{Body: *view}, nil
}

func (s *Server) handleGetRedemption(ctx context.Context, input *RedemptionIDInput) (*RedemptionOutput, error) {
	view, err := s.services.Redemptions.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &RedemptionOutput{Body: *view}, nil
}

func (s *Server) handleValidateStep(ctx context.Context, input *ValidateStepInput) (*ValidateStepOutput, error) {
	result, err := s.services.Redemptions.SubmitStep(ctx, input.ID, service.StepSubmission{
		StepID:    input.Body.StepID,
		Response:  input.Body.Response,
		StartedAt: input.Body.StartedAt,
	})
	if err != nil {
		return nil, err
	}
	return &ValidateStepOutput{Body: *result}, nil
}

func (s *Server) handleProvision(ctx context.Context, input *ProvisionInput) (*ProvisionOutput, error) {
	view, err := s.services.Redemptions.Provision(ctx, input.ID, service.AccountRequest{
		Username: input.Body.Username,
		Password: input.Body.Password,
		Email:    input.Body.Email,
	})
	if err != nil {
		return nil, err
	}

	status := http.StatusOK
	if view.State == progress.StateUnknown || view.State == progress.StateProvisioning {
		status = http.StatusAccepted
	}
	return &ProvisionOutput{Status: status, Body: *view}, nil
}

func (s *Server) handleListRedemptions(ctx context.Context, input *ListRedemptionsInput) (*ListRedemptionsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	states := make([]progress.State, 0, len(input.State))
	for _, st := range input.State {
		if st != "" {
			states = append(states, progress.State(st))
		}
	}

	views, err := s.services.Redemptions.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []*service.RedemptionView{}
	}
	return &ListRedemptionsOutput{Body: ListRedemptionsResponse{Redemptions: views}}, nil
}

func (s *Server) handleRetryServer(ctx context.Context, input *RetryServerInput) (*RedemptionOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	view, err := s.services.Redemptions.RetryServer(ctx, input.ID, input.ServerID, input.Body.Password)
	if err != nil {
		return nil, err
	}
	return &RedemptionOutput{Body: *view}, nil
}
