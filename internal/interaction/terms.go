package interaction

import (
	"encoding/json"
	"time"
)

// TermsConfig configures acceptance of terms of service.
type TermsConfig struct {
	TermsURL string `json:"terms_url,omitempty" validate:"omitempty,url"`
	Version  string `json:"version,omitempty" validate:"max=32"`
}

// InteractionType implements Config.
func (TermsConfig) InteractionType() Type { return TypeTerms }

type termsResponse struct {
	Accepted   bool       `json:"accepted"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

type termsValidator struct{}

func (termsValidator) Type() Type { return TypeTerms }

func (termsValidator) ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg TermsConfig
	if err := parseInto(TypeTerms, raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate only checks the acceptance flag. The acceptance timestamp is
// recorded by the caller but not constrained.
func (termsValidator) Validate(_ Config, response json.RawMessage, _ *time.Time, _ time.Time) Result {
	var r termsResponse
	if !decodeResponse(response, &r) {
		return Fail(reasonMalformed)
	}
	if !r.Accepted {
		return Fail("You must accept the terms to continue.")
	}
	return Pass()
}
