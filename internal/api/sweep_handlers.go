package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/service"
)

func (s *Server) registerSweepRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "runSweep",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/sweep",
		Summary:     "Run expiration sweep",
		Description: "Processes every account whose access window has closed and reports what was done",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleRunSweep)
}

// SweepOutput wraps the sweep report for Huma.
type SweepOutput struct {
	Body service.SweepReport
}

func (s *Server) handleRunSweep(ctx context.Context, input *AdminInput) (*SweepOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	report, err := s.services.Sweeper.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	return &SweepOutput{Body: *report}, nil
}
