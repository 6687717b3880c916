package interaction

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question           string   `json:"question" validate:"required,max=500"`
	Options            []string `json:"options" validate:"min=2,max=20,dive,required"`
	CorrectAnswerIndex int      `json:"correct_answer_index" validate:"gte=0"`
}

// QuizConfig configures one or more questions. With several questions the
// quiz passes when the share of correct answers reaches PassPercentage;
// zero requires every answer to be correct.
//
// A single question may be authored flat (question, options,
// correct_answer_index at the top level); the flat form is kept on output.
type QuizConfig struct {
	Questions      []QuizQuestion `json:"questions" validate:"required,min=1,max=50,dive"`
	PassPercentage int            `json:"pass_percentage,omitempty" validate:"gte=0,lte=100"`

	flat bool
}

// InteractionType implements Config.
func (QuizConfig) InteractionType() Type { return TypeQuiz }

type quizFlat struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correct_answer_index"`
	PassPercentage     int      `json:"pass_percentage,omitempty"`
}

// quizPlain has QuizConfig's fields without its methods.
type quizPlain struct {
	Questions      []QuizQuestion `json:"questions"`
	PassPercentage int            `json:"pass_percentage,omitempty"`
}

// MarshalJSON writes the form the quiz was authored in.
func (c QuizConfig) MarshalJSON() ([]byte, error) {
	if c.flat && len(c.Questions) == 1 {
		q := c.Questions[0]
		return json.Marshal(quizFlat{
			Question:           q.Question,
			Options:            q.Options,
			CorrectAnswerIndex: q.CorrectAnswerIndex,
			PassPercentage:     c.PassPercentage,
		})
	}
	return json.Marshal(quizPlain{Questions: c.Questions, PassPercentage: c.PassPercentage})
}

// Flat reports whether the quiz was authored in the single-question form.
func (c QuizConfig) Flat() bool {
	return c.flat
}

type quizResponse struct {
	AnswerIndex *int  `json:"answer_index"`
	Answers     []int `json:"answers"`
}

type quizValidator struct{}

func (quizValidator) Type() Type { return TypeQuiz }

func (quizValidator) ParseConfig(raw json.RawMessage) (Config, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, schemaError(TypeQuiz, "config", "is not a valid JSON object")
	}

	var cfg QuizConfig
	if _, isFlat := probe["question"]; isFlat {
		var f quizFlat
		if err := decodeStrict(raw, &f); err != nil {
			return nil, decodeSchemaError(TypeQuiz, err)
		}
		cfg = QuizConfig{
			Questions: []QuizQuestion{{
				Question:           f.Question,
				Options:            f.Options,
				CorrectAnswerIndex: f.CorrectAnswerIndex,
			}},
			PassPercentage: f.PassPercentage,
			flat:           true,
		}
	} else {
		var p quizPlain
		if err := decodeStrict(raw, &p); err != nil {
			return nil, decodeSchemaError(TypeQuiz, err)
		}
		cfg = QuizConfig{Questions: p.Questions, PassPercentage: p.PassPercentage}
	}

	fields, err := schema.FieldErrors(cfg)
	if err != nil {
		return nil, schemaError(TypeQuiz, "config", err.Error())
	}
	if len(fields) > 0 {
		return nil, &ConfigurationSchemaError{Type: string(TypeQuiz), Fields: fields}
	}
	return cfg, nil
}

func (quizValidator) Validate(cfg Config, response json.RawMessage, _ *time.Time, _ time.Time) Result {
	c := cfg.(QuizConfig)

	var r quizResponse
	if !decodeResponse(response, &r) {
		return Fail(reasonMalformed)
	}
	answers := r.Answers
	if answers == nil && r.AnswerIndex != nil {
		answers = []int{*r.AnswerIndex}
	}
	if len(answers) != len(c.Questions) {
		return Fail("Please answer every question.")
	}

	correct := 0
	for i, q := range c.Questions {
		if answers[i] == q.CorrectAnswerIndex {
			correct++
		}
	}

	total := len(c.Questions)
	if total == 1 {
		if correct == 1 {
			return Pass()
		}
		return Fail("That answer is not correct.")
	}

	required := c.PassPercentage
	if required == 0 {
		required = 100
	}
	if correct*100 >= required*total {
		return Pass()
	}
	return Fail(fmt.Sprintf("%d of %d answers are correct; %d%% are needed to pass.", correct, total, required))
}
