package interaction

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TimerConfig requires the user to stay on a step for a minimum duration.
type TimerConfig struct {
	DurationSeconds int `json:"duration_seconds" validate:"gt=0,lte=86400"`
}

// InteractionType implements Config.
func (TimerConfig) InteractionType() Type { return TypeTimer }

// Duration returns the configured wait.
func (c TimerConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

type timerValidator struct{}

func (timerValidator) Type() Type { return TypeTimer }

func (timerValidator) ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg TimerConfig
	if err := parseInto(TypeTimer, raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails closed: without a server-anchored start time the elapsed
// time cannot be verified.
func (timerValidator) Validate(cfg Config, _ json.RawMessage, startedAt *time.Time, now time.Time) Result {
	c := cfg.(TimerConfig)
	if startedAt == nil || startedAt.IsZero() {
		return Fail("The start time of this step is unknown, so the wait cannot be verified.")
	}

	elapsed := now.Sub(*startedAt)
	if elapsed < c.Duration() {
		remaining := int(math.Ceil((c.Duration() - elapsed).Seconds()))
		return Fail(fmt.Sprintf("Please wait %d more seconds.", remaining))
	}
	return Pass()
}
