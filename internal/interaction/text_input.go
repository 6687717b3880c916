package interaction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TextInputConfig configures a free-text answer. Lengths count characters
// after NFC normalization.
type TextInputConfig struct {
	MinLength      *int   `json:"min_length,omitempty" validate:"omitempty,gte=0"`
	MaxLength      *int   `json:"max_length,omitempty" validate:"omitempty,gte=0"`
	Required       bool   `json:"required"`
	ExpectedPhrase string `json:"expected_phrase,omitempty" validate:"max=500"`
	CaseSensitive  *bool  `json:"case_sensitive,omitempty"` // default true
	Placeholder    string `json:"placeholder,omitempty" validate:"max=200"`
}

// InteractionType implements Config.
func (TextInputConfig) InteractionType() Type { return TypeTextInput }

func (c TextInputConfig) caseSensitive() bool {
	return c.CaseSensitive == nil || *c.CaseSensitive
}

type textInputResponse struct {
	Text string `json:"text"`
}

type textInputValidator struct{}

func (textInputValidator) Type() Type { return TypeTextInput }

func (textInputValidator) ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg TextInputConfig
	if err := parseInto(TypeTextInput, raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (textInputValidator) Validate(cfg Config, response json.RawMessage, _ *time.Time, _ time.Time) Result {
	c := cfg.(TextInputConfig)

	text, ok := readText(response)
	if !ok {
		return Fail(reasonMalformed)
	}
	text = norm.NFC.String(text)
	length := utf8.RuneCountInString(text)

	if c.Required && strings.TrimSpace(text) == "" {
		return Fail("A response is required.")
	}
	if c.MinLength != nil && length < *c.MinLength {
		return Fail(fmt.Sprintf("The response must be at least %d characters.", *c.MinLength))
	}
	if c.MaxLength != nil && length > *c.MaxLength {
		return Fail(fmt.Sprintf("The response must be at most %d characters.", *c.MaxLength))
	}
	if c.ExpectedPhrase != "" && !phraseMatches(text, c.ExpectedPhrase, c.caseSensitive()) {
		return Fail("The response does not match the expected phrase.")
	}
	return Pass()
}

// readText accepts either {"text": "..."} or a bare JSON string.
func readText(response json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(response, &s) == nil {
		return s, true
	}
	var r textInputResponse
	if !decodeResponse(response, &r) {
		return "", false
	}
	return r.Text, true
}

func phraseMatches(got, want string, caseSensitive bool) bool {
	got = strings.TrimSpace(got)
	want = strings.TrimSpace(norm.NFC.String(want))
	if caseSensitive {
		return got == want
	}
	fold := cases.Fold()
	return fold.String(got) == fold.String(want)
}
