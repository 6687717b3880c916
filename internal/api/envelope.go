package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/invitarr/invitarr-server/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the shared envelope.
// Errors keep their code, message and details; everything else becomes data.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case *APIError:
		return response.Failure(body.Code, body.Message, body.Details), nil
	case response.Envelope, *response.Envelope:
		return v, nil
	default:
		return response.Success(v), nil
	}
}
