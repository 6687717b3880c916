package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/id"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/store"
)

// htmlTagPattern matches common HTML tags to detect if a body contains HTML.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote|img)[\s>/]`)

// WizardService handles wizard authoring. Step configurations are checked
// against their interaction type's schema here, never at redemption time.
type WizardService struct {
	store        store.WizardStore
	interactions *interaction.Registry
	logger       *slog.Logger
	now          Clock
}

// NewWizardService creates a new wizard service.
func NewWizardService(s store.WizardStore, interactions *interaction.Registry, logger *slog.Logger) *WizardService {
	return &WizardService{store: s, interactions: interactions, logger: orDiscard(logger), now: systemClock}
}

// SaveWizardRequest describes a wizard and its complete step list.
// Steps are persisted in slice order.
type SaveWizardRequest struct {
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name" validate:"required,max=100"`
	Steps []StepInput `json:"steps" validate:"max=50,dive"`
}

// StepInput is one authored step. Body may be markdown or HTML; HTML is
// converted to markdown.
type StepInput struct {
	ID              string          `json:"id,omitempty"`
	Title           string          `json:"title" validate:"required,max=200"`
	Body            string          `json:"body"`
	InteractionType string          `json:"interaction_type" validate:"required"`
	Config          json.RawMessage `json:"config"`
}

// Save creates or fully replaces a wizard.
func (s *WizardService) Save(ctx context.Context, req SaveWizardRequest) (*domain.Wizard, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	w := &domain.Wizard{Record: domain.Record{ID: req.ID}, Name: strings.TrimSpace(req.Name)}
	if w.ID == "" {
		wizardID, err := id.Generate("wiz")
		if err != nil {
			return nil, fmt.Errorf("generate wizard ID: %w", err)
		}
		w.ID = wizardID
	} else {
		existing, err := s.store.FindWizardWithSteps(ctx, w.ID)
		switch {
		case err == nil:
			w.Record = existing.Record
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("find wizard: %w", err)
		}
	}

	seen := make(map[string]bool, len(req.Steps))
	w.Steps = make([]domain.WizardStep, 0, len(req.Steps))
	for i, in := range req.Steps {
		config, err := s.interactions.CanonicalConfig(in.InteractionType, in.Config)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		stepID := in.ID
		if stepID == "" {
			if stepID, err = id.Generate("step"); err != nil {
				return nil, fmt.Errorf("generate step ID: %w", err)
			}
		}
		if seen[stepID] {
			return nil, domainerrors.Validationf("duplicate step id %s", stepID)
		}
		seen[stepID] = true

		w.Steps = append(w.Steps, domain.WizardStep{
			ID:              stepID,
			WizardID:        w.ID,
			Position:        i,
			Title:           strings.TrimSpace(in.Title),
			Body:            bodyMarkdown(in.Body),
			InteractionType: in.InteractionType,
			Config:          config,
		})
	}

	w.Stamp(s.now())
	if err := s.store.SaveWizard(ctx, w); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.Conflict("a step id is already used by another wizard")
		}
		return nil, fmt.Errorf("save wizard: %w", err)
	}

	s.logger.Info("Wizard saved", "wizard_id", w.ID, "steps", len(w.Steps))
	return w, nil
}

// Get returns a wizard with its steps.
func (s *WizardService) Get(ctx context.Context, wizardID string) (*domain.Wizard, error) {
	w, err := s.store.FindWizardWithSteps(ctx, wizardID)
	if err != nil {
		return nil, notFound(err, "wizard", wizardID)
	}
	return w, nil
}

// List returns all wizards.
func (s *WizardService) List(ctx context.Context) ([]*domain.Wizard, error) {
	return s.store.ListWizards(ctx)
}

// bodyMarkdown converts HTML bodies to markdown. Anything else is returned trimmed.
func bodyMarkdown(body string) string {
	body = strings.TrimSpace(body)
	if body == "" || !htmlTagPattern.MatchString(strings.ToLower(body)) {
		return body
	}
	markdown, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return body
	}
	return strings.TrimSpace(markdown)
}
