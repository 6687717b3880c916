package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/service"
	"github.com/invitarr/invitarr-server/internal/store"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// VendorErrorDetails describes a failed vendor call. The vendor's own
// message is never included.
type VendorErrorDetails struct {
	Vendor    string `json:"vendor"`
	Operation string `json:"operation"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		if apiErr := toAPIError(err); apiErr != nil {
			return apiErr
		}
	}

	// Request validation failures carry huma error details.
	var details []*huma.ErrorDetail
	for _, err := range errs {
		var d huma.ErrorDetailer
		if errors.As(err, &d) {
			details = append(details, d.ErrorDetail())
		}
	}

	apiErr := &APIError{
		status:  status,
		Code:    statusToCode(status),
		Message: message,
	}
	if len(details) > 0 {
		apiErr.Details = details
	}
	return apiErr
}

// toAPIError converts a typed error into its API form, or returns nil when
// err is not one the API knows how to describe.
func toAPIError(err error) *APIError {
	var (
		invalidErr    *service.InvitationInvalidError
		stepErr       *interaction.StepValidationError
		schemaErr     *interaction.ConfigurationSchemaError
		unknownVendor *mediaclient.UnknownVendorTypeError
		unsupported   *mediaclient.CapabilityUnsupportedError
		vendorErr     *mediaclient.VendorError
		domainErr     *domainerrors.Error
	)

	switch {
	case errors.As(err, &invalidErr):
		return &APIError{
			status:  http.StatusUnprocessableEntity,
			Code:    string(domainerrors.CodeInvitationInvalid),
			Message: invalidErr.Message(),
			Details: map[string]string{"reason": string(invalidErr.Reason)},
		}
	case errors.As(err, &stepErr):
		return &APIError{
			status:  http.StatusUnprocessableEntity,
			Code:    string(domainerrors.CodeStepValidation),
			Message: stepErr.Reason,
			Details: map[string]string{"step_id": stepErr.StepID},
		}
	case errors.As(err, &schemaErr):
		return &APIError{
			status:  http.StatusBadRequest,
			Code:    string(domainerrors.CodeConfigurationSchema),
			Message: schemaErr.Error(),
			Details: map[string]any{"type": schemaErr.Type, "fields": schemaErr.Fields},
		}
	case errors.As(err, &unknownVendor):
		return &APIError{
			status:  http.StatusBadRequest,
			Code:    string(domainerrors.CodeUnknownVendor),
			Message: unknownVendor.Error(),
			Details: map[string]string{"vendor": string(unknownVendor.Vendor)},
		}
	case errors.As(err, &unsupported):
		return &APIError{
			status:  http.StatusUnprocessableEntity,
			Code:    string(domainerrors.CodeCapabilityUnsupported),
			Message: unsupported.Error(),
			Details: map[string]string{"vendor": string(unsupported.Vendor), "capability": string(unsupported.Capability)},
		}
	case errors.As(err, &vendorErr):
		return &APIError{
			status:  vendorStatus(vendorErr.Kind),
			Code:    string(domainerrors.CodeVendor),
			Message: fmt.Sprintf("%s %s failed: %s", vendorErr.Vendor, vendorErr.Op, vendorErr.Kind),
			Details: VendorErrorDetails{
				Vendor:    string(vendorErr.Vendor),
				Operation: vendorErr.Op,
				Kind:      string(vendorErr.Kind),
				Retryable: vendorErr.Retryable,
			},
		}
	case errors.As(err, &domainErr):
		return &APIError{
			status:  domainErr.HTTPStatus(),
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}
	case errors.Is(err, store.ErrNotFound):
		return &APIError{
			status:  http.StatusNotFound,
			Code:    string(domainerrors.CodeNotFound),
			Message: "resource not found",
		}
	case errors.Is(err, store.ErrAlreadyExists):
		return &APIError{
			status:  http.StatusConflict,
			Code:    string(domainerrors.CodeAlreadyExists),
			Message: "resource already exists",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{
			status:  http.StatusGatewayTimeout,
			Code:    string(domainerrors.CodeInternal),
			Message: "request timed out",
		}
	}
	return nil
}

// vendorStatus picks the gateway status for a vendor failure category.
func vendorStatus(kind mediaclient.ErrorKind) int {
	switch kind {
	case mediaclient.KindTimeout:
		return http.StatusGatewayTimeout
	case mediaclient.KindRateLimited, mediaclient.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusUnauthorized:
		return string(domainerrors.CodeUnauthorized)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	default:
		return string(domainerrors.CodeInternal)
	}
}
