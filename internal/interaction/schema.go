package interaction

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/invitarr/invitarr-server/internal/validation"
)

// schema checks `validate` tags on config structs. Rules are registered once
// here; the validator is read-only afterwards.
var schema = newSchema()

func newSchema() *validation.Validator {
	v := validation.New()
	v.RegisterStructRule(textInputRule, TextInputConfig{})
	v.RegisterStructRule(quizQuestionRule, QuizQuestion{})
	return v
}

func textInputRule(sl validator.StructLevel) {
	c := sl.Current().Interface().(TextInputConfig)
	if c.MinLength != nil && c.MaxLength != nil && *c.MaxLength < *c.MinLength {
		sl.ReportError(c.MaxLength, "max_length", "MaxLength", "gtefield", "min_length")
	}
}

func quizQuestionRule(sl validator.StructLevel) {
	q := sl.Current().Interface().(QuizQuestion)
	if len(q.Options) > 0 && q.CorrectAnswerIndex >= len(q.Options) {
		sl.ReportError(q.CorrectAnswerIndex, "correct_answer_index", "CorrectAnswerIndex", "ltfield", "the number of options")
	}
}

// parseInto strictly decodes raw into cfg and checks it against its tags.
func parseInto(t Type, raw json.RawMessage, cfg any) error {
	if err := decodeStrict(raw, cfg); err != nil {
		return decodeSchemaError(t, err)
	}
	fields, err := schema.FieldErrors(cfg)
	if err != nil {
		return schemaError(t, "config", err.Error())
	}
	if len(fields) > 0 {
		return &ConfigurationSchemaError{Type: string(t), Fields: fields}
	}
	return nil
}

func decodeSchemaError(t Type, err error) *ConfigurationSchemaError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return schemaError(t, typeErr.Field, "must be of type "+typeErr.Type.String())
	}
	if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return schemaError(t, strings.Trim(name, `"`), "is not a recognized field")
	}
	return schemaError(t, "config", "is not a valid JSON object")
}
