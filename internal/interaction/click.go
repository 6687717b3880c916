package interaction

import (
	"encoding/json"
	"time"
)

// ClickConfig configures a simple acknowledgment step.
type ClickConfig struct {
	ButtonLabel string `json:"button_label,omitempty" validate:"max=64"`
}

// InteractionType implements Config.
func (ClickConfig) InteractionType() Type { return TypeClick }

type clickResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

type clickValidator struct{}

func (clickValidator) Type() Type { return TypeClick }

func (clickValidator) ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg ClickConfig
	if err := parseInto(TypeClick, raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (clickValidator) Validate(_ Config, response json.RawMessage, _ *time.Time, _ time.Time) Result {
	var r clickResponse
	if !decodeResponse(response, &r) {
		return Fail(reasonMalformed)
	}
	if !r.Acknowledged {
		return Fail("Please confirm to continue.")
	}
	return Pass()
}
