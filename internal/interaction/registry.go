package interaction

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Registry maps interaction types to validators. It is built once and never
// mutated, so it is safe for concurrent use without locking.
type Registry struct {
	validators map[Type]Validator
}

// NewRegistry builds a registry from the given validators. Registering the
// same type twice is an error.
func NewRegistry(validators ...Validator) (*Registry, error) {
	r := &Registry{validators: make(map[Type]Validator, len(validators))}
	for _, v := range validators {
		if _, exists := r.validators[v.Type()]; exists {
			return nil, fmt.Errorf("interaction: duplicate validator for %q", v.Type())
		}
		r.validators[v.Type()] = v
	}
	return r, nil
}

// BuiltinValidators returns the validators for the five built-in types.
func BuiltinValidators() []Validator {
	return []Validator{
		clickValidator{},
		timerValidator{},
		termsValidator{},
		textInputValidator{},
		quizValidator{},
	}
}

// DefaultRegistry returns a registry holding the built-in validators.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinValidators()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the validator for t.
func (r *Registry) Lookup(t Type) (Validator, bool) {
	v, ok := r.validators[t]
	return v, ok
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.validators))
	for t := range r.validators {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) validator(interactionType string) (Validator, error) {
	v, ok := r.validators[Type(interactionType)]
	if !ok {
		return nil, schemaError(Type(interactionType), "interaction_type", "is not a known interaction type")
	}
	return v, nil
}

// ParseConfig parses raw as the configuration of interactionType.
func (r *Registry) ParseConfig(interactionType string, raw json.RawMessage) (Config, error) {
	v, err := r.validator(interactionType)
	if err != nil {
		return nil, err
	}
	return v.ParseConfig(raw)
}

// CanonicalConfig validates raw and returns its canonical encoding: the typed
// configuration re-encoded, so that what is stored is exactly what the
// validator accepted.
func (r *Registry) CanonicalConfig(interactionType string, raw json.RawMessage) (json.RawMessage, error) {
	cfg, err := r.ParseConfig(interactionType, raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", interactionType, err)
	}
	return out, nil
}

// Validate checks a response against a stored step configuration.
func (r *Registry) Validate(interactionType string, rawConfig, response json.RawMessage, startedAt *time.Time, now time.Time) (Result, error) {
	v, err := r.validator(interactionType)
	if err != nil {
		return Result{}, err
	}
	cfg, err := v.ParseConfig(rawConfig)
	if err != nil {
		return Result{}, err
	}
	return v.Validate(cfg, response, startedAt, now), nil
}
