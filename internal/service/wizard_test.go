package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/interaction"
)

func TestWizardService_Save(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w, err := env.wizards.Save(ctx, SaveWizardRequest{
		Name: "  Onboarding ",
		Steps: []StepInput{
			{Title: "Welcome", Body: "<p>Hello <strong>world</strong></p>", InteractionType: "click", Config: json.RawMessage(`{"button_label":"Go"}`)},
			{Title: "Rules", Body: "Plain *markdown*", InteractionType: "terms", Config: json.RawMessage(`{"version":"v2"}`)},
			timerStep("Wait", 10),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", w.Name)
	require.Len(t, w.Steps, 3)
	for i, step := range w.Steps {
		assert.Equal(t, i, step.Position)
		assert.Equal(t, w.ID, step.WizardID)
		assert.NotEmpty(t, step.ID)
	}
	assert.Equal(t, "Hello **world**", w.Steps[0].Body)
	assert.Equal(t, "Plain *markdown*", w.Steps[1].Body)
	assert.JSONEq(t, `{"button_label":"Go"}`, string(w.Steps[0].Config))

	got, err := env.wizards.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Steps[2].ID, got.Steps[2].ID)
	assert.JSONEq(t, `{"duration_seconds":10}`, string(got.Steps[2].Config))
}

func TestWizardService_SaveReplacesSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.addWizard(t, "Flow", clickStep("One"), clickStep("Two"))
	created := w.CreatedAt

	env.clock.Advance(time.Minute)
	updated, err := env.wizards.Save(ctx, SaveWizardRequest{
		ID:    w.ID,
		Name:  "Flow v2",
		Steps: []StepInput{{ID: w.Steps[1].ID, Title: "Two", InteractionType: "click", Config: json.RawMessage(`{}`)}},
	})
	require.NoError(t, err)
	assert.True(t, updated.CreatedAt.Equal(created))
	assert.True(t, updated.UpdatedAt.After(created))

	got, err := env.wizards.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, w.Steps[1].ID, got.Steps[0].ID)
	assert.Equal(t, 0, got.Steps[0].Position)

	list, err := env.wizards.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWizardService_SaveRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("invalid step config", func(t *testing.T) {
		_, err := env.wizards.Save(ctx, SaveWizardRequest{
			Name: "Quiz",
			Steps: []StepInput{{
				Title:           "Quiz",
				InteractionType: "quiz",
				Config:          json.RawMessage(`{"questions":[{"question":"?","options":["a","b"],"correct_answer_index":5}],"pass_percentage":50}`),
			}},
		})
		var schemaErr *interaction.ConfigurationSchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "quiz", schemaErr.Type)
	})

	t.Run("unknown interaction type", func(t *testing.T) {
		_, err := env.wizards.Save(ctx, SaveWizardRequest{
			Name:  "Bad",
			Steps: []StepInput{{Title: "x", InteractionType: "captcha", Config: json.RawMessage(`{}`)}},
		})
		assert.Error(t, err)
	})

	t.Run("duplicate step ids", func(t *testing.T) {
		_, err := env.wizards.Save(ctx, SaveWizardRequest{
			Name: "Dupes",
			Steps: []StepInput{
				{ID: "step-a", Title: "A", InteractionType: "click", Config: json.RawMessage(`{}`)},
				{ID: "step-a", Title: "B", InteractionType: "click", Config: json.RawMessage(`{}`)},
			},
		})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := env.wizards.Save(ctx, SaveWizardRequest{})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	_, err := env.wizards.Get(ctx, "wiz-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
