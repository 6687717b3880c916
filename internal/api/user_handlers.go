package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/users",
		Summary:     "List users",
		Description: "Returns every account created through an invitation",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleListUsers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/users/{id}",
		Summary:     "Get user",
		Description: "Returns an account by ID",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleGetUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateUserPermissions",
		Method:      http.MethodPut,
		Path:        "/api/v1/admin/users/{id}/permissions",
		Summary:     "Update permissions",
		Description: "Sets the account's permissions on its server",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleUpdateUserPermissions)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateUserLibraries",
		Method:      http.MethodPut,
		Path:        "/api/v1/admin/users/{id}/libraries",
		Summary:     "Update libraries",
		Description: "Replaces the libraries the account can see. An empty list grants all.",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleUpdateUserLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID: "enableUser",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/users/{id}/enable",
		Summary:     "Enable user",
		Description: "Re-enables the account on its server",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleEnableUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "disableUser",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/users/{id}/disable",
		Summary:     "Disable user",
		Description: "Disables the account on its server",
		Tags:        []string{"Users"},
		Security:    adminSecurity,
	}, s.handleDisableUser)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteUser",
		Method:        http.MethodDelete,
		Path:          "/api/v1/admin/users/{id}",
		Summary:       "Delete user",
		Description:   "Deletes the account from its server and removes the local record",
		Tags:          []string{"Users"},
		Security:      adminSecurity,
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteUser)
}

// === DTOs ===

// UserIDInput identifies a user.
type UserIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
}

// UserOutput wraps a user for Huma.
type UserOutput struct {
	Body domain.User
}

// ListUsersResponse contains a list of users.
type ListUsersResponse struct {
	Users []*domain.User `json:"users" doc:"Provisioned accounts"`
}

// ListUsersOutput wraps the list users response for Huma.
type ListUsersOutput struct {
	Body ListUsersResponse
}

// UpdateUserPermissionsInput wraps the permissions request for Huma.
type UpdateUserPermissionsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
	Body          PermissionsBody
}

// UpdateUserLibrariesRequest is the request body for changing library access.
type UpdateUserLibrariesRequest struct {
	LibraryIDs []string `json:"library_ids" doc:"Local library IDs; empty grants all"`
}

// UpdateUserLibrariesInput wraps the libraries request for Huma.
type UpdateUserLibrariesInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
	Body          UpdateUserLibrariesRequest
}

// === Handlers ===

func (s *Server) handleListUsers(ctx context.Context, input *AdminInput) (*ListUsersOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	users, err := s.services.Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*domain.User{}
	}
	return &ListUsersOutput{Body: ListUsersResponse{Users: users}}, nil
}

func (s *Server) handleGetUser(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	u, err := s.services.Accounts.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: *u}, nil
}

func (s *Server) handleUpdateUserPermissions(ctx context.Context, input *UpdateUserPermissionsInput) (*UserOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	u, err := s.services.Accounts.UpdatePermissions(ctx, input.ID, input.Body.domain())
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: *u}, nil
}

func (s *Server) handleUpdateUserLibraries(ctx context.Context, input *UpdateUserLibrariesInput) (*UserOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	u, err := s.services.Accounts.UpdateLibraries(ctx, input.ID, input.Body.LibraryIDs)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: *u}, nil
}

func (s *Server) handleEnableUser(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
	return s.setUserEnabled(ctx, input, true)
}

func (s *Server) handleDisableUser(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
	return s.setUserEnabled(ctx, input, false)
}

func (s *Server) setUserEnabled(ctx context.Context, input *UserIDInput, enabled bool) (*UserOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	u, err := s.services.Accounts.SetEnabled(ctx, input.ID, enabled)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: *u}, nil
}

func (s *Server) handleDeleteUser(ctx context.Context, input *UserIDInput) (*struct{}, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Accounts.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}
