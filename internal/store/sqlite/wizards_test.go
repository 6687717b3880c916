package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/store"
)

func TestSaveWizard_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := &domain.Wizard{
		Record: domain.Record{ID: "wiz-1", CreatedAt: testNow, UpdatedAt: testNow},
		Name:   "Onboarding",
		Steps: []domain.WizardStep{
			{ID: "st-2", Position: 1, Title: "Wait", InteractionType: "timer", Config: json.RawMessage(`{"duration_seconds":10}`)},
			{ID: "st-1", Position: 0, Title: "Welcome", Body: "**Hi**", InteractionType: "click", Config: json.RawMessage(`{"button_label":"Go"}`)},
			{ID: "st-3", Position: 2, Title: "Quiz", InteractionType: "quiz", Config: json.RawMessage(`{"question":"q","options":["a","b"],"correct_answer_index":1}`)},
		},
	}
	require.NoError(t, s.SaveWizard(ctx, w))

	got, err := s.FindWizardWithSteps(ctx, "wiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", got.Name)
	require.Len(t, got.Steps, 3)
	for i, step := range got.Steps {
		assert.Equal(t, i, step.Position)
		assert.Equal(t, "wiz-1", step.WizardID)
	}
	assert.Equal(t, "st-1", got.Steps[0].ID)
	assert.Equal(t, "**Hi**", got.Steps[0].Body)
	assert.Equal(t, `{"duration_seconds":10}`, string(got.Steps[1].Config))
	assert.Equal(t, `{"question":"q","options":["a","b"],"correct_answer_index":1}`, string(got.Steps[2].Config))
}

func TestSaveWizard_ReplacesSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := &domain.Wizard{
		Record: domain.Record{ID: "wiz-1", CreatedAt: testNow, UpdatedAt: testNow},
		Name:   "v1",
		Steps: []domain.WizardStep{
			{ID: "a", Position: 0, Title: "A", InteractionType: "click", Config: json.RawMessage(`{}`)},
			{ID: "b", Position: 1, Title: "B", InteractionType: "click", Config: json.RawMessage(`{}`)},
		},
	}
	require.NoError(t, s.SaveWizard(ctx, w))

	w.Name = "v2"
	w.Steps = []domain.WizardStep{
		{ID: "c", Position: 0, Title: "C", InteractionType: "terms", Config: json.RawMessage(`{}`)},
	}
	require.NoError(t, s.SaveWizard(ctx, w))

	got, err := s.FindWizardWithSteps(ctx, "wiz-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "c", got.Steps[0].ID)
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestSaveWizard_DuplicatePositionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := &domain.Wizard{
		Record: domain.Record{ID: "wiz-1", CreatedAt: testNow, UpdatedAt: testNow},
		Name:   "good",
		Steps:  []domain.WizardStep{{ID: "a", Position: 0, Title: "A", InteractionType: "click", Config: json.RawMessage(`{}`)}},
	}
	require.NoError(t, s.SaveWizard(ctx, good))

	bad := &domain.Wizard{
		Record: good.Record,
		Name:   "bad",
		Steps: []domain.WizardStep{
			{ID: "x", Position: 0, Title: "X", InteractionType: "click", Config: json.RawMessage(`{}`)},
			{ID: "y", Position: 0, Title: "Y", InteractionType: "click", Config: json.RawMessage(`{}`)},
		},
	}
	assert.ErrorIs(t, s.SaveWizard(ctx, bad), store.ErrAlreadyExists)

	got, err := s.FindWizardWithSteps(ctx, "wiz-1")
	require.NoError(t, err)
	assert.Equal(t, "good", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "a", got.Steps[0].ID)
}

func TestListWizards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		require.NoError(t, s.SaveWizard(ctx, &domain.Wizard{
			Record: domain.Record{ID: "wiz-" + name, CreatedAt: testNow, UpdatedAt: testNow},
			Name:   name,
		}))
	}

	got, err := s.ListWizards(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Name)
	assert.NotNil(t, got[0].Steps)

	_, err = s.FindWizardWithSteps(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
