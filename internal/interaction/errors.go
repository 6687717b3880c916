package interaction

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var errTrailingData = errors.New("unexpected data after configuration object")

// ConfigurationSchemaError reports a step configuration that does not match
// the schema of its interaction type. Fields maps JSON paths to messages.
type ConfigurationSchemaError struct {
	Type   string
	Fields map[string]string
}

func (e *ConfigurationSchemaError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return fmt.Sprintf("invalid %s configuration: %s", e.Type, strings.Join(parts, "; "))
}

// StepValidationError reports a response that did not satisfy its step.
type StepValidationError struct {
	StepID string
	Reason string
}

func (e *StepValidationError) Error() string {
	return fmt.Sprintf("step %s: %s", e.StepID, e.Reason)
}

func schemaError(t Type, field, msg string) *ConfigurationSchemaError {
	return &ConfigurationSchemaError{Type: string(t), Fields: map[string]string{field: msg}}
}
