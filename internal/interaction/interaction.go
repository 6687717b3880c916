// Package interaction validates user responses to guided wizard steps.
//
// Each interaction type owns a strongly typed configuration, parsed and
// schema-checked when a wizard is authored, and a pure validation function
// applied when a step is submitted. The Registry maps type keys to
// validators; callers never special-case a type by name.
package interaction

import (
	"bytes"
	"encoding/json"
	"time"
)

// Type identifies an interaction.
type Type string

// Built-in interaction types.
const (
	TypeClick     Type = "click"
	TypeTimer     Type = "timer"
	TypeTerms     Type = "terms"
	TypeTextInput Type = "text_input"
	TypeQuiz      Type = "quiz"
)

// Config is the typed configuration of one interaction type.
type Config interface {
	InteractionType() Type
}

// Result is the outcome of validating a response.
type Result struct {
	Valid bool
	// Pending is set by interaction types that finish out of band.
	// None of the built-in types use it.
	Pending bool
	Reason  string
}

// Pass is the valid result.
func Pass() Result {
	return Result{Valid: true}
}

// Fail is an invalid result with a user-facing reason.
func Fail(reason string) Result {
	return Result{Reason: reason}
}

// Validator implements one interaction type. Implementations are stateless.
type Validator interface {
	Type() Type

	// ParseConfig strictly decodes and schema-checks raw. It fails with a
	// *ConfigurationSchemaError.
	ParseConfig(raw json.RawMessage) (Config, error)

	// Validate checks response against cfg. startedAt is the server-anchored
	// time the step was presented, nil when unknown.
	Validate(cfg Config, response json.RawMessage, startedAt *time.Time, now time.Time) Result
}

// decodeStrict decodes raw into v, rejecting unknown fields and trailing data.
// An empty document decodes as {}.
func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// decodeResponse decodes a submitted response leniently; clients may send
// extra fields such as timestamps.
func decodeResponse(raw json.RawMessage, v any) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

const reasonMalformed = "The response could not be read."
